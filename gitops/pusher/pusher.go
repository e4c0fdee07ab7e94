package pusher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/byte4ever/gitops_pr/gitops/batch"
	"github.com/byte4ever/gitops_pr/gitops/chain"
	"github.com/byte4ever/gitops_pr/gitops/changeset"
	"github.com/byte4ever/gitops_pr/gitops/git"
	"github.com/byte4ever/gitops_pr/gitops/refs"
	"github.com/byte4ever/gitops_pr/gitops/tree"
)

// Options tune a single push.
type Options struct {
	// GroupSize is the number of changes per commit.
	// Zero uses batch.DefaultSize.
	GroupSize int
	// Force overwrites the branch even when the new
	// head does not descend from it.
	Force bool
}

// Request describes one push.
type Request struct {
	// Base is the commit the chain starts from. Empty
	// starts a new history.
	Base    string
	Changes []changeset.Change
	Branch  git.BranchRef
	Message string
	Options Options
}

// Result is the outcome of a push.
type Result struct {
	Head    string
	Commits []string
}

// Pusher commits changes and publishes them.
type Pusher struct {
	Objects git.ObjectStore
	Refs    git.RefStore
	// Transport publishes the branch once its ref moved.
	// Nil when the object store is the remote itself.
	Transport   git.Transport
	Signer      git.Signer
	Author      git.Identity
	Committer   git.Identity
	Parallelism int
	Now         func() time.Time
}

// Commit builds the commit chain of req without moving
// any ref.
func (p *Pusher) Commit(
	ctx context.Context,
	req Request,
) (Result, error) {
	const errCtx = "committing changes"

	size := req.Options.GroupSize
	if size == 0 {
		size = batch.DefaultSize
	}

	groups, err := batch.Partition(req.Changes, size)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	ch := &chain.Chainer{
		Store:     p.Objects,
		Trees:     tree.New(p.Objects, p.Parallelism),
		Signer:    p.Signer,
		Author:    p.Author,
		Committer: p.Committer,
		Now:       p.Now,
	}

	res, err := ch.CommitBatches(ctx, req.Base, groups, req.Message)
	if err != nil {
		return Result{Head: req.Base, Commits: res.Commits}, err
	}

	slog.Info(
		"built commit chain",
		"branch", req.Branch.String(),
		"base", req.Base,
		"head", res.Head,
		"commits", len(res.Commits),
		"changes", len(req.Changes),
	)

	return Result{Head: res.Head, Commits: res.Commits}, nil
}

// Push commits req, moves the branch to the new head and
// hands it to the transport. Nothing is done for an
// empty change list.
func (p *Pusher) Push(
	ctx context.Context,
	req Request,
) (Result, error) {
	if len(req.Changes) == 0 {
		slog.Info(
			"nothing to push",
			"branch", req.Branch.String(),
		)

		return Result{Head: req.Base}, nil
	}

	res, err := p.Commit(ctx, req)
	if err != nil {
		return res, err
	}

	force := req.Options.Force

	up := &refs.Updater{Store: p.Refs}
	if err := up.Update(ctx, req.Branch, res.Head, force); err != nil {
		return res, err
	}

	if p.Transport == nil {
		return res, nil
	}

	if err := p.Transport.Push(ctx, req.Branch.Name, force); err != nil {
		var te *git.TransportError
		if errors.As(err, &te) {
			return res, err
		}

		return res, &git.TransportError{
			Branch: req.Branch.Name,
			Err:    err,
		}
	}

	return res, nil
}
