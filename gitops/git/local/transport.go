package local

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"

	"github.com/byte4ever/gitops_pr/gitops/git"
)

// Push sends refs/heads/<branch> and the objects it
// needs to the configured remote.
func (s *Store) Push(
	ctx context.Context,
	branch string,
	force bool,
) error {
	ref := "refs/heads/" + branch

	spec := config.RefSpec(ref + ":" + ref)
	if force {
		spec = "+" + spec
	}

	err := s.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: s.remoteName,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       s.auth,
	})

	switch {
	case err == nil:
		slog.Info(
			"pushed branch",
			"branch", branch,
			"remote", s.remoteName,
			"force", force,
		)

		return nil
	case errors.Is(err, gogit.NoErrAlreadyUpToDate):
		slog.Info(
			"remote already up to date",
			"branch", branch,
			"remote", s.remoteName,
		)

		return nil
	case errors.Is(err, gogit.ErrNonFastForwardUpdate),
		strings.Contains(err.Error(), "non-fast-forward"):
		err = errors.Join(git.ErrNonFastForward, err)
	}

	return &git.TransportError{
		Remote: s.remoteName,
		Branch: branch,
		Err:    err,
	}
}
