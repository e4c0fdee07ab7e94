package commitmsg

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/byte4ever/gitops_pr/gitops/changeset"
)

const (
	begin = "--- gitops changes begin ---"
	end   = "--- gitops changes end ---"

	putPrefix    = "+ "
	deletePrefix = "- "
	morePrefix   = "... "
)

// MaxEntries caps the number of paths Generate lists.
const MaxEntries = 200

// Entry is one listed path.
type Entry struct {
	Path    string
	Deleted bool
}

// Generate produces a section listing the paths of
// changes between begin/end markers, puts prefixed with
// "+" and deletions with "-". Lists longer than
// MaxEntries are truncated with a count of the rest.
func Generate(changes []changeset.Change) string {
	var sb strings.Builder

	sb.WriteByte('\n')
	sb.WriteString(begin)
	sb.WriteByte('\n')

	for i, c := range changes {
		if i == MaxEntries {
			fmt.Fprintf(
				&sb, "%s%d more\n",
				morePrefix, len(changes)-MaxEntries,
			)

			break
		}

		if c.Deleted {
			sb.WriteString(deletePrefix)
		} else {
			sb.WriteString(putPrefix)
		}

		sb.WriteString(c.Path)
		sb.WriteByte('\n')
	}

	sb.WriteString(end)
	sb.WriteByte('\n')

	return sb.String()
}

// ExtractEntries reads back the section written by
// Generate. It returns nil when the section is missing
// or not terminated.
func ExtractEntries(msg string) []Entry {
	var entries []Entry

	betweenMarkers := false

	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimRight(line, "\r")

		switch {
		case line == begin:
			betweenMarkers = true
		case line == end:
			betweenMarkers = false
		case !betweenMarkers:
		case strings.HasPrefix(line, putPrefix):
			entries = append(entries, Entry{
				Path: strings.TrimPrefix(line, putPrefix),
			})
		case strings.HasPrefix(line, deletePrefix):
			entries = append(entries, Entry{
				Path:    strings.TrimPrefix(line, deletePrefix),
				Deleted: true,
			})
		}
	}

	if betweenMarkers {
		slog.Warn("unable to find end marker in change summary")

		return nil
	}

	return entries
}
