package git

import (
	"time"

	"github.com/byte4ever/gitops_pr/gitops/changeset"
)

// ObjectKind is the type of object a tree entry points
// to.
type ObjectKind string

// Object kinds found in tree listings.
const (
	KindBlob   ObjectKind = "blob"
	KindTree   ObjectKind = "tree"
	KindCommit ObjectKind = "commit"
)

// KindForMode returns the object kind implied by mode.
func KindForMode(mode changeset.FileMode) ObjectKind {
	switch mode {
	case changeset.Dir:
		return KindTree
	case changeset.Submodule:
		return KindCommit
	default:
		return KindBlob
	}
}

// TreeEntry is one named entry of a directory listing.
type TreeEntry struct {
	Name string
	Mode changeset.FileMode
	ID   string
	Kind ObjectKind
}

// Identity is a commit author or committer.
type Identity struct {
	Name  string
	Email string
	When  time.Time
}

// Commit holds everything needed to create a commit
// object. Signature is empty for unsigned commits.
type Commit struct {
	Tree      string
	Parents   []string
	Message   string
	Author    Identity
	Committer Identity
	Signature string
}

// BranchRef locates a branch on a hosted repository.
// Head is the last known commit id, empty if unknown.
type BranchRef struct {
	Owner string
	Repo  string
	Name  string
	Head  string
}

// String returns "owner/repo:branch", omitting missing
// coordinates.
func (b BranchRef) String() string {
	switch {
	case b.Owner != "" && b.Repo != "":
		return b.Owner + "/" + b.Repo + ":" + b.Name
	case b.Repo != "":
		return b.Repo + ":" + b.Name
	default:
		return b.Name
	}
}
