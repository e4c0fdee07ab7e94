package changeset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidPath is returned for paths that are empty,
// absolute, or contain empty, "." or ".." segments.
var ErrInvalidPath = errors.New("invalid change path")

// Change is a single path mutation. Deleted marks the
// path for removal and Content is then ignored.
type Change struct {
	Path    string
	Content []byte
	Mode    FileMode
	Deleted bool
}

// Put returns a change that writes content at path.
func Put(path string, content []byte, mode FileMode) Change {
	return Change{
		Path:    path,
		Content: content,
		Mode:    mode,
	}
}

// Delete returns a change that removes path.
func Delete(path string) Change {
	return Change{
		Path:    path,
		Deleted: true,
	}
}

// Segments splits the change path on "/".
func (c Change) Segments() []string {
	return strings.Split(c.Path, "/")
}

// Validate checks the path and, for non-deletions, the
// mode.
func (c Change) Validate() error {
	if err := ValidatePath(c.Path); err != nil {
		return err
	}

	if c.Deleted {
		return nil
	}

	switch {
	case c.Mode == Dir:
		return fmt.Errorf(
			"%s: directory mode is not a valid change",
			c.Path,
		)
	case c.Mode == Submodule && len(c.Content) == 0:
		return fmt.Errorf(
			"%s: submodule change needs a commit id",
			c.Path,
		)
	case !c.Mode.valid():
		return fmt.Errorf(
			"%s: invalid file mode %d",
			c.Path, int(c.Mode),
		)
	}

	return nil
}

// ValidatePath checks that path is a relative,
// slash-delimited path without empty, "." or ".."
// segments.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}

	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".", "..":
			return fmt.Errorf(
				"%w: %q", ErrInvalidPath, path,
			)
		}
	}

	return nil
}

// Set maps paths to changes. Create one with NewSet.
type Set map[string]Change

// NewSet builds a Set from changes. A path given twice
// keeps the later change.
func NewSet(changes ...Change) Set {
	s := make(Set, len(changes))

	for _, c := range changes {
		s.Add(c)
	}

	return s
}

// Add stores c, replacing any change for the same path.
func (s Set) Add(c Change) {
	s[c.Path] = c
}

// Changes returns the changes sorted by path.
func (s Set) Changes() []Change {
	out := make([]Change, 0, len(s))

	for _, c := range s {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})

	return out
}

// Paths returns the sorted list of paths in the set.
func (s Set) Paths() []string {
	paths := make([]string, 0, len(s))

	for p := range s {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	return paths
}

// Validate checks every change and joins the failures.
func (s Set) Validate() error {
	var errs []error

	for _, p := range s.Paths() {
		c := s[p]
		if c.Path != p {
			errs = append(errs, fmt.Errorf(
				"%w: key %q holds change for %q",
				ErrInvalidPath, p, c.Path,
			))

			continue
		}

		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Map returns a new Set with fn applied to every
// non-deleted change. fn must not change the path.
func (s Set) Map(fn func(Change) Change) Set {
	out := make(Set, len(s))

	for p, c := range s {
		if !c.Deleted {
			c = fn(c)
		}

		out[p] = c
	}

	return out
}
