package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/byte4ever/gitops_pr/gitops/exec"
)

// Repo is a bare clone of a remote repository driven
// through the git CLI. Create with Clone and call Clean
// when done. Repo implements Transport so objects
// written into Dir (see the local package) can be
// published with the user's git credentials.
type Repo struct {
	// Dir is the filesystem location of the clone.
	Dir string
	// RemoteName is the name of the upstream remote.
	RemoteName string
}

// Clone makes a bare, blobless clone of repo into dir
// holding only primaryBranch. Pass the full repository
// URL as repo (e.g. "https://github.com/org/repo.git").
// mirrorDir is an optional local mirror used as a
// reference clone.
//
//nolint:gosec // file paths originate from CLI flags
func Clone(
	ctx context.Context,
	repo string,
	dir string,
	mirrorDir string,
	primaryBranch string,
) (*Repo, error) {
	const errCtx = "cloning repository"

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf(
			"%s: remove dir: %w", errCtx, err,
		)
	}

	remoteName := "origin"

	args := []string{
		"clone",
		"--bare",
		"--single-branch",
		"--branch", primaryBranch,
		"--filter=blob:none",
		"--no-tags",
		"--origin", remoteName,
	}

	if mirrorDir != "" {
		args = append(args, "--reference", mirrorDir)
	}

	args = append(args, repo, dir)

	if _, err := exec.Ex(ctx, "", "git", args...); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &Repo{
		Dir:        dir,
		RemoteName: remoteName,
	}, nil
}

// Clean removes the local clone directory.
func (r *Repo) Clean() error {
	const errCtx = "cleaning repository"

	if err := os.RemoveAll(r.Dir); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// FetchBranch fetches branch from the remote into the
// local branch of the same name. Returns false without
// error when the remote has no such branch.
func (r *Repo) FetchBranch(
	ctx context.Context,
	branch string,
) (bool, error) {
	const errCtx = "fetching branch"

	ref := "refs/heads/" + branch

	out, err := exec.Ex(
		ctx, r.Dir, "git",
		"ls-remote", "--heads", r.RemoteName, ref,
	)
	if err != nil {
		return false, fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	if strings.TrimSpace(out) == "" {
		slog.Info(
			"branch absent on remote",
			"branch", branch,
		)

		return false, nil
	}

	if _, err := exec.Ex(
		ctx, r.Dir, "git",
		"fetch", "--force",
		"--filter=blob:none", "--no-tags",
		r.RemoteName, "+"+ref+":"+ref,
	); err != nil {
		return false, fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	return true, nil
}

// Push publishes the local branch to the remote. Unless
// force is set the remote rejects non fast-forward
// updates, reported as a TransportError wrapping
// ErrNonFastForward.
func (r *Repo) Push(
	ctx context.Context,
	branch string,
	force bool,
) error {
	ref := "refs/heads/" + branch

	args := []string{"push", "--porcelain", r.RemoteName}
	if force {
		args = append(args, "--force")
	}

	args = append(args, ref+":"+ref)

	out, err := exec.Ex(ctx, r.Dir, "git", args...)
	if err == nil {
		slog.Info(
			"pushed branch",
			"branch", branch,
			"remote", r.RemoteName,
			"force", force,
		)

		return nil
	}

	if isRejected(out) {
		err = fmt.Errorf("%w: %w", ErrNonFastForward, err)
	}

	return &TransportError{
		Remote: r.RemoteName,
		Branch: branch,
		Err:    err,
	}
}

// isRejected reports whether git push output shows a
// non fast-forward rejection.
func isRejected(out string) bool {
	return strings.Contains(out, "[rejected]") ||
		strings.Contains(out, "non-fast-forward") ||
		strings.Contains(out, "fetch first")
}
