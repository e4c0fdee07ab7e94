package git

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrNonFastForward is returned by ref stores and
	// transports rejecting a non fast-forward update.
	ErrNonFastForward = errors.New("non fast-forward update")
)

// NotFoundError reports a missing branch, commit or
// tree.
type NotFoundError struct {
	What string
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s %q not found: %v", e.What, e.Name, e.Err,
		)
	}

	return fmt.Sprintf("%s %q not found", e.What, e.Name)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// PathConflictError reports a change path that needs a
// directory where a file (or submodule) exists, or a
// file where a directory exists.
type PathConflictError struct {
	// Path is the full change path.
	Path string
	// At is the conflicting prefix of Path.
	At string
	// Existing is the kind found at At.
	Existing ObjectKind
}

func (e *PathConflictError) Error() string {
	if e.Existing == KindTree {
		return fmt.Sprintf(
			"path conflict on %q: %q is a directory",
			e.Path, e.At,
		)
	}

	return fmt.Sprintf(
		"path conflict on %q: %q is a %s, not a directory",
		e.Path, e.At, e.Existing,
	)
}

// ObjectWriteError reports a failed blob, tree or
// commit creation.
type ObjectWriteError struct {
	Kind ObjectKind
	// Path is the change path or directory being
	// written, empty for commits.
	Path string
	Err  error
}

func (e *ObjectWriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf(
			"writing %s object: %v", e.Kind, e.Err,
		)
	}

	return fmt.Sprintf(
		"writing %s object for %q: %v",
		e.Kind, e.Path, e.Err,
	)
}

func (e *ObjectWriteError) Unwrap() error { return e.Err }

// RefUpdateError reports a rejected or failed ref move.
type RefUpdateError struct {
	Ref            BranchRef
	Target         string
	NonFastForward bool
	Err            error
}

func (e *RefUpdateError) Error() string {
	reason := "failed"
	if e.NonFastForward {
		reason = "rejected (non fast-forward)"
	}

	return fmt.Sprintf(
		"updating %s to %s %s: %v",
		e.Ref, e.Target, reason, e.Err,
	)
}

func (e *RefUpdateError) Unwrap() error { return e.Err }

// TransportError reports a failure publishing a branch
// to its remote.
type TransportError struct {
	Remote string
	Branch string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Remote == "" {
		return fmt.Sprintf("pushing %s: %v", e.Branch, e.Err)
	}

	return fmt.Sprintf(
		"pushing %s to %s: %v", e.Branch, e.Remote, e.Err,
	)
}

func (e *TransportError) Unwrap() error { return e.Err }
