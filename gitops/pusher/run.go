package pusher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/byte4ever/gitops_pr/gitops/branch"
	"github.com/byte4ever/gitops_pr/gitops/changeset"
	"github.com/byte4ever/gitops_pr/gitops/commitmsg"
	"github.com/byte4ever/gitops_pr/gitops/git"
)

// Config holds all settings for a push run. Use a
// Config struct instead of many arguments.
type Config struct {
	// Store holds objects and branches. For the GitHub
	// store every write is already remote.
	Store git.Backend

	// Transport publishes the branch after its ref
	// moved. Nil for remote stores.
	Transport git.Transport

	// Provider opens or updates the pull request. Nil
	// skips that step.
	Provider git.GitProvider

	// Signer signs every commit when set.
	Signer git.Signer

	// Author and Committer of the commits. An empty
	// committer defaults to the author.
	Author    git.Identity
	Committer git.Identity

	// Owner and Repo only label the branch in logs and
	// errors.
	Owner string
	Repo  string

	// BaseBranch is the branch the target is created
	// from and the pull request targets.
	BaseBranch string

	// Branch receives the commits.
	Branch string

	// Changes is the change set to apply.
	Changes changeset.Set

	// Message is used for every commit.
	Message string

	// Force rebuilds the branch from the base head and
	// overwrites it. Without it an existing branch is
	// appended to and only fast-forwarded.
	Force bool

	// BatchSize is the number of changes per commit.
	BatchSize int

	// Parallelism bounds concurrent blob writes.
	Parallelism int

	// PRTitle defaults to the first line of Message.
	PRTitle string

	// PRBody is followed by the list of changed paths.
	PRBody string

	// DryRun builds the commits but moves no ref and
	// opens no pull request.
	DryRun bool
}

// Report tells what a run did.
type Report struct {
	Branches    branch.State
	Head        string
	Commits     []string
	PullRequest *git.PullRequest
}

func (cfg *Config) validate() error {
	var errs []error

	if cfg.Store == nil {
		errs = append(errs, errors.New("store must be set"))
	}

	if cfg.BaseBranch == "" {
		errs = append(errs, errors.New("base branch must be set"))
	}

	if cfg.Branch == "" {
		errs = append(errs, errors.New("branch must be set"))
	}

	if strings.TrimSpace(cfg.Message) == "" {
		errs = append(errs, errors.New("commit message must be set"))
	}

	if cfg.BatchSize < 0 {
		errs = append(errs, errors.New("batch size must not be negative"))
	}

	if err := cfg.Changes.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Run applies cfg.Changes to cfg.Branch and opens or
// updates the pull request into cfg.BaseBranch.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	const errCtx = "running push"

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", errCtx, err)
	}

	if len(cfg.Changes) == 0 {
		slog.Info("no changes to push", "branch", cfg.Branch)

		return &Report{}, nil
	}

	// Step 1: resolve the base and make sure the
	// target branch exists.
	mgr := &branch.Manager{Store: cfg.Store}

	ensure := mgr.Ensure
	if cfg.DryRun {
		ensure = mgr.Resolve
	}

	state, err := ensure(ctx, cfg.BaseBranch, cfg.Branch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 2: pick the commit the chain starts from.
	base := state.TargetHead
	if cfg.Force || base == "" {
		base = state.BaseHead
	}

	p := &Pusher{
		Objects:     cfg.Store,
		Refs:        cfg.Store,
		Transport:   cfg.Transport,
		Signer:      cfg.Signer,
		Author:      cfg.Author,
		Committer:   cfg.Committer,
		Parallelism: cfg.Parallelism,
	}

	changes := cfg.Changes.Changes()
	req := Request{
		Base:    base,
		Changes: changes,
		Branch: git.BranchRef{
			Owner: cfg.Owner,
			Repo:  cfg.Repo,
			Name:  cfg.Branch,
			Head:  state.TargetHead,
		},
		Message: cfg.Message,
		Options: Options{
			GroupSize: cfg.BatchSize,
			Force:     cfg.Force,
		},
	}

	report := &Report{Branches: state}

	// Step 3: commit and publish.
	if cfg.DryRun {
		res, err := p.Commit(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		report.Head, report.Commits = res.Head, res.Commits

		slog.Info(
			"dry run, branch left untouched",
			"branch", cfg.Branch,
			"head", res.Head,
		)

		return report, nil
	}

	res, err := p.Push(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	report.Head, report.Commits = res.Head, res.Commits

	// Step 4: pull request.
	if cfg.Provider == nil || cfg.Branch == cfg.BaseBranch {
		return report, nil
	}

	pr, err := cfg.Provider.EnsurePR(
		ctx,
		cfg.Branch,
		cfg.BaseBranch,
		prTitle(cfg),
		cfg.PRBody+commitmsg.Generate(changes),
	)
	if err != nil {
		return report, fmt.Errorf(
			"%s: pull request: %w", errCtx, err,
		)
	}

	report.PullRequest = pr

	return report, nil
}

func prTitle(cfg Config) string {
	if cfg.PRTitle != "" {
		return cfg.PRTitle
	}

	title, _, _ := strings.Cut(strings.TrimSpace(cfg.Message), "\n")

	return title
}
