package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/byte4ever/gitops_pr/gitops/changeset"
	"github.com/byte4ever/gitops_pr/gitops/git"
	"github.com/byte4ever/gitops_pr/gitops/tree"
)

// Chainer commits batches on top of a base commit.
type Chainer struct {
	// Store holds the commits and the trees they point
	// to.
	Store git.ObjectStore
	// Trees builds the tree of each batch. When nil a
	// builder with default parallelism is used.
	Trees *tree.Builder
	// Signer signs every commit when set.
	Signer    git.Signer
	Author    git.Identity
	Committer git.Identity
	// Now stamps identities with a zero When. Defaults to
	// time.Now.
	Now func() time.Time
}

// Result is the outcome of CommitBatches.
type Result struct {
	// Head is the last commit of the chain, or the base
	// when there was nothing to commit.
	Head string
	// Commits lists the created commits in order.
	Commits []string
}

// CommitBatches commits every batch in order, each on
// top of the previous one, starting from base. An empty
// base starts a new history from an empty tree.
func (c *Chainer) CommitBatches(
	ctx context.Context,
	base string,
	batches [][]changeset.Change,
	message string,
) (Result, error) {
	const errCtx = "committing batches"

	trees := c.Trees
	if trees == nil {
		trees = tree.New(c.Store, 0)
	}

	res := Result{
		Head:    base,
		Commits: make([]string, 0, len(batches)),
	}

	treeID := ""

	if base != "" {
		id, err := c.Store.CommitTree(ctx, base)
		if err != nil {
			return res, fmt.Errorf(
				"%s: resolving tree of %s: %w",
				errCtx, base, err,
			)
		}

		treeID = id
	}

	author, committer := c.identities()

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%s: %w", errCtx, err)
		}

		next, err := trees.Build(ctx, treeID, batch)
		if err != nil {
			return res, fmt.Errorf(
				"%s: batch %d/%d on tree %s: %w",
				errCtx, i+1, len(batches), treeID, err,
			)
		}

		commit := git.Commit{
			Tree:      next,
			Message:   message,
			Author:    author,
			Committer: committer,
		}

		if res.Head != "" {
			commit.Parents = []string{res.Head}
		}

		id, err := c.create(ctx, commit)
		if err != nil {
			return res, fmt.Errorf(
				"%s: batch %d/%d: %w",
				errCtx, i+1, len(batches), err,
			)
		}

		slog.Debug(
			"created commit",
			"batch", i+1,
			"of", len(batches),
			"commit", id,
			"tree", next,
			"changes", len(batch),
		)

		treeID = next
		res.Head = id
		res.Commits = append(res.Commits, id)
	}

	return res, nil
}

// create signs commit when a signer is set and stores
// it.
func (c *Chainer) create(
	ctx context.Context,
	commit git.Commit,
) (string, error) {
	if c.Signer != nil {
		sig, err := c.Signer.GenerateSignature(commit)
		if err != nil {
			return "", fmt.Errorf(
				"signing commit on tree %s: %w",
				commit.Tree, err,
			)
		}

		commit.Signature = sig
	}

	id, err := c.Store.CreateCommit(ctx, commit)
	if err != nil {
		return "", &git.ObjectWriteError{
			Kind: git.KindCommit,
			Err:  err,
		}
	}

	return id, nil
}

// identities returns author and committer with a
// timestamp. Both share one instant when unset.
func (c *Chainer) identities() (git.Identity, git.Identity) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	at := now().Truncate(time.Second)

	author, committer := c.Author, c.Committer
	if author.When.IsZero() {
		author.When = at
	}

	if committer.Name == "" && committer.Email == "" {
		committer.Name = author.Name
		committer.Email = author.Email
	}

	if committer.When.IsZero() {
		committer.When = at
	}

	return author, committer
}
