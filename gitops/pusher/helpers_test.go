package pusher_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/gitops_pr/gitops/changeset"
	"github.com/byte4ever/gitops_pr/gitops/git"
	"github.com/byte4ever/gitops_pr/gitops/git/local"
	"github.com/byte4ever/gitops_pr/gitops/tree"
)

var (
	clock = time.Unix(1700000000, 0).UTC()
	bot   = git.Identity{Name: "Bot", Email: "bot@example.com"}
)

type pushCall struct {
	branch string
	force  bool
}

// recordingTransport records pushes and returns err.
type recordingTransport struct {
	mu    sync.Mutex
	calls []pushCall
	err   error
}

func (r *recordingTransport) Push(
	_ context.Context,
	branch string,
	force bool,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, pushCall{branch: branch, force: force})

	return r.err
}

// seededStore returns an in-memory store whose main
// branch holds files.
func seededStore(
	tb testing.TB,
	files map[string]string,
) (*local.Store, string) {
	tb.Helper()

	ctx := context.Background()

	st, err := local.NewInMemory()
	require.NoError(tb, err)

	set := changeset.NewSet()
	for p, c := range files {
		set.Add(changeset.Put(p, []byte(c), changeset.Regular))
	}

	tr, err := tree.New(st, 0).Build(ctx, "", set.Changes())
	require.NoError(tb, err)

	who := git.Identity{Name: "Seed", When: clock}

	head, err := st.CreateCommit(ctx, git.Commit{
		Tree: tr, Message: "seed", Author: who, Committer: who,
	})
	require.NoError(tb, err)
	require.NoError(tb, st.CreateBranch(ctx, "main", head))

	return st, head
}

func manyChanges(n int) []changeset.Change {
	out := make([]changeset.Change, 0, n)
	for i := range n {
		out = append(out, changeset.Put(
			fmt.Sprintf("manifests/m%03d.yaml", i),
			[]byte(fmt.Sprintf("replicas: %d\n", i)),
			changeset.Regular,
		))
	}

	return out
}

func branchHead(tb testing.TB, st *local.Store, name string) string {
	tb.Helper()

	head, err := st.BranchHead(context.Background(), name)
	require.NoError(tb, err)

	return head
}

func readCommit(
	tb testing.TB,
	st *local.Store,
	id string,
) *object.Commit {
	tb.Helper()

	c, err := st.Repository().CommitObject(plumbing.NewHash(id))
	require.NoError(tb, err)

	return c
}

func fileContent(
	tb testing.TB,
	st *local.Store,
	commit, path string,
) string {
	tb.Helper()

	f, err := readCommit(tb, st, commit).File(path)
	require.NoError(tb, err)

	s, err := f.Contents()
	require.NoError(tb, err)

	return s
}

// parents returns the first-parent history of id, id
// first, stopping at stop.
func parents(
	tb testing.TB,
	st *local.Store,
	id, stop string,
) []string {
	tb.Helper()

	var out []string

	for id != stop {
		out = append(out, id)

		c := readCommit(tb, st, id)
		require.Len(tb, c.ParentHashes, 1)

		id = c.ParentHashes[0].String()
	}

	return out
}
