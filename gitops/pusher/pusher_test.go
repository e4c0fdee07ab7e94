package pusher_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/gitops_pr/gitops/batch"
	"github.com/byte4ever/gitops_pr/gitops/changeset"
	"github.com/byte4ever/gitops_pr/gitops/git"
	"github.com/byte4ever/gitops_pr/gitops/pusher"
)

func TestPush_batches_into_linear_chain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, base := seededStore(t, map[string]string{"README": "old"})
	tr := &recordingTransport{}

	p := &pusher.Pusher{
		Objects:   st,
		Refs:      st,
		Transport: tr,
		Author:    bot,
	}

	res, err := p.Push(ctx, pusher.Request{
		Base:    base,
		Changes: manyChanges(250),
		Branch:  git.BranchRef{Name: "main", Head: base},
		Message: "scale",
	})
	require.NoError(t, err)
	require.Len(t, res.Commits, 3)

	assert.Equal(t, res.Head, branchHead(t, st, "main"))

	history := parents(t, st, res.Head, base)
	assert.Equal(t, []string{
		res.Commits[2], res.Commits[1], res.Commits[0],
	}, history)

	assert.Equal(t, "replicas: 249\n",
		fileContent(t, st, res.Head, "manifests/m249.yaml"))
	assert.Equal(t, "old", fileContent(t, st, res.Head, "README"))

	// The first commit only carries the first batch.
	_, err = readCommit(t, st, res.Commits[0]).File("manifests/m100.yaml")
	require.Error(t, err)

	assert.Equal(t, []pushCall{{branch: "main"}}, tr.calls)
}

func TestPush_end_to_end_single_commit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, base := seededStore(t, map[string]string{"README": "old"})

	res, err := (&pusher.Pusher{Objects: st, Refs: st, Author: bot}).Push(
		ctx, pusher.Request{
			Base: base,
			Changes: []changeset.Change{
				changeset.Put("README", []byte("new"), changeset.Regular),
				changeset.Put("docs/a.md", []byte("hello"), changeset.Regular),
			},
			Branch:  git.BranchRef{Name: "main"},
			Message: "docs",
			Options: pusher.Options{GroupSize: batch.DefaultSize},
		},
	)
	require.NoError(t, err)
	require.Len(t, res.Commits, 1)

	assert.Equal(t, "new", fileContent(t, st, res.Head, "README"))
	assert.Equal(t, "hello", fileContent(t, st, res.Head, "docs/a.md"))
}

func TestPush_non_fast_forward_leaves_ref(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, base := seededStore(t, map[string]string{"README": "old"})
	tr := &recordingTransport{}

	p := &pusher.Pusher{Objects: st, Refs: st, Transport: tr, Author: bot}

	// Someone else moves main after we read base.
	raced, err := p.Push(ctx, pusher.Request{
		Base:    base,
		Changes: []changeset.Change{changeset.Put("other", []byte("x"), changeset.Regular)},
		Branch:  git.BranchRef{Name: "main"},
		Message: "race",
	})
	require.NoError(t, err)

	tr.calls = nil

	req := pusher.Request{
		Base:    base,
		Changes: []changeset.Change{changeset.Put("mine", []byte("y"), changeset.Regular)},
		Branch:  git.BranchRef{Name: "main", Head: base},
		Message: "mine",
	}

	_, err = p.Push(ctx, req)

	var re *git.RefUpdateError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.NonFastForward)
	assert.Equal(t, raced.Head, branchHead(t, st, "main"))
	assert.Empty(t, tr.calls)

	req.Options.Force = true

	res, err := p.Push(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, res.Head, branchHead(t, st, "main"))
	assert.Equal(t, []pushCall{{branch: "main", force: true}}, tr.calls)
}

func TestPush_conflict_short_circuits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, base := seededStore(t, map[string]string{"x": "file"})
	tr := &recordingTransport{}

	_, err := (&pusher.Pusher{
		Objects: st, Refs: st, Transport: tr,
	}).Push(ctx, pusher.Request{
		Base: base,
		Changes: []changeset.Change{
			changeset.Put("x/y", []byte("nested"), changeset.Regular),
		},
		Branch:  git.BranchRef{Name: "main"},
		Message: "conflict",
	})

	var pc *git.PathConflictError
	require.ErrorAs(t, err, &pc)
	assert.Equal(t, base, branchHead(t, st, "main"))
	assert.Empty(t, tr.calls)
}

func TestPush_transport_errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	typed := &git.TransportError{Remote: "origin", Branch: "main", Err: boom}

	tests := []struct {
		name   string
		err    error
		remote string
	}{
		{name: "plain error is wrapped", err: boom},
		{name: "typed error passes through", err: typed, remote: "origin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st, base := seededStore(t, map[string]string{"a": "x"})

			res, err := (&pusher.Pusher{
				Objects:   st,
				Refs:      st,
				Transport: &recordingTransport{err: tt.err},
			}).Push(context.Background(), pusher.Request{
				Base:    base,
				Changes: []changeset.Change{changeset.Delete("a")},
				Branch:  git.BranchRef{Name: "main"},
				Message: "rm",
			})

			var te *git.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, "main", te.Branch)
			assert.Equal(t, tt.remote, te.Remote)
			require.ErrorIs(t, err, boom)

			// The local ref already moved.
			assert.Equal(t, res.Head, branchHead(t, st, "main"))
		})
	}
}

func TestPush_invalid_group_size(t *testing.T) {
	t.Parallel()

	st, base := seededStore(t, map[string]string{"a": "x"})

	_, err := (&pusher.Pusher{Objects: st, Refs: st}).Push(
		context.Background(), pusher.Request{
			Base:    base,
			Changes: manyChanges(3),
			Branch:  git.BranchRef{Name: "main"},
			Message: "m",
			Options: pusher.Options{GroupSize: -1},
		},
	)
	require.ErrorIs(t, err, batch.ErrInvalidSize)
	assert.Equal(t, base, branchHead(t, st, "main"))
}

func TestPush_no_changes(t *testing.T) {
	t.Parallel()

	st, base := seededStore(t, map[string]string{"a": "x"})
	tr := &recordingTransport{}

	res, err := (&pusher.Pusher{Objects: st, Refs: st, Transport: tr}).Push(
		context.Background(), pusher.Request{
			Base:    base,
			Branch:  git.BranchRef{Name: "main"},
			Message: "m",
		},
	)
	require.NoError(t, err)
	assert.Equal(t, base, res.Head)
	assert.Empty(t, res.Commits)
	assert.Empty(t, tr.calls)
}

func TestPush_signs_commits(t *testing.T) {
	t.Parallel()

	st, base := seededStore(t, map[string]string{"a": "x"})

	res, err := (&pusher.Pusher{
		Objects: st,
		Refs:    st,
		Signer: git.SignerFunc(func(git.Commit) (string, error) {
			return "signature", nil
		}),
	}).Push(context.Background(), pusher.Request{
		Base:    base,
		Changes: manyChanges(3),
		Branch:  git.BranchRef{Name: "main"},
		Message: "m",
		Options: pusher.Options{GroupSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, res.Commits, 2)

	for _, id := range res.Commits {
		assert.Equal(
			t, "signature",
			strings.TrimSpace(readCommit(t, st, id).PGPSignature),
		)
	}
}
