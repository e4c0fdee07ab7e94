package digester

import (
	"encoding/hex"

	"github.com/go-git/go-git/v5/plumbing"
)

// BlobID returns the git blob id (SHA-1 of the
// "blob <len>\x00" header and content) of content as a
// lowercase hex string.
func BlobID(content []byte) string {
	return plumbing.ComputeHash(
		plumbing.BlobObject, content,
	).String()
}

// IsObjectID reports whether s is a full 40 character
// hex object id.
func IsObjectID(s string) bool {
	if len(s) != 2*len(plumbing.ZeroHash) {
		return false
	}

	_, err := hex.DecodeString(s)

	return err == nil
}
