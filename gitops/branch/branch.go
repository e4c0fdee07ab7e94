package branch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/byte4ever/gitops_pr/gitops/git"
)

// State describes the branches a push works with.
type State struct {
	BaseHead string
	// TargetHead is empty when the target does not exist
	// and was not created.
	TargetHead string
	// Existed is true when the target was found.
	Existed bool
	// Created is true when Ensure created the target.
	Created bool
}

// Manager resolves and creates branches on a
// BranchStore.
type Manager struct {
	Store git.BranchStore
}

// Resolve looks both branches up without creating
// anything. A missing base fails with an error matching
// git.ErrNotFound; a missing target is reported in the
// returned state.
func (m *Manager) Resolve(
	ctx context.Context,
	base string,
	target string,
) (State, error) {
	const errCtx = "resolving branches"

	var st State

	head, err := m.Store.BranchHead(ctx, base)
	if err != nil {
		return st, fmt.Errorf(
			"%s: base branch %s: %w", errCtx, base, err,
		)
	}

	st.BaseHead = head

	head, err = m.Store.BranchHead(ctx, target)

	switch {
	case errors.Is(err, git.ErrNotFound):
		return st, nil
	case err != nil:
		return st, fmt.Errorf(
			"%s: target branch %s: %w", errCtx, target, err,
		)
	}

	st.TargetHead = head
	st.Existed = true

	return st, nil
}

// Ensure resolves both branches and creates target at
// the base head when it does not exist yet.
func (m *Manager) Ensure(
	ctx context.Context,
	base string,
	target string,
) (State, error) {
	const errCtx = "ensuring branch"

	st, err := m.Resolve(ctx, base, target)
	if err != nil || st.Existed {
		return st, err
	}

	if err := m.Store.CreateBranch(ctx, target, st.BaseHead); err != nil {
		return st, fmt.Errorf(
			"%s: creating %s at %s: %w",
			errCtx, target, st.BaseHead, err,
		)
	}

	slog.Info(
		"created branch",
		"branch", target,
		"from", base,
		"head", st.BaseHead,
	)

	st.TargetHead = st.BaseHead
	st.Created = true

	return st, nil
}
