package refs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/byte4ever/gitops_pr/gitops/git"
)

// ErrEmptyTarget is returned when asked to move a ref to
// nothing.
var ErrEmptyTarget = errors.New("empty ref target")

// Updater moves branch references on a RefStore.
type Updater struct {
	Store git.RefStore
}

// Update points ref at head. Force overwrites the ref
// unconditionally.
func (u *Updater) Update(
	ctx context.Context,
	ref git.BranchRef,
	head string,
	force bool,
) error {
	const errCtx = "updating reference"

	if ref.Name == "" {
		return fmt.Errorf("%s: branch name must be set", errCtx)
	}

	if head == "" {
		return &git.RefUpdateError{
			Ref: ref, Err: ErrEmptyTarget,
		}
	}

	if err := u.Store.UpdateRef(ctx, ref.Name, head, force); err != nil {
		return &git.RefUpdateError{
			Ref:            ref,
			Target:         head,
			NonFastForward: errors.Is(err, git.ErrNonFastForward),
			Err:            err,
		}
	}

	slog.Info(
		"moved branch",
		"branch", ref.String(),
		"from", ref.Head,
		"to", head,
		"force", force,
	)

	return nil
}
