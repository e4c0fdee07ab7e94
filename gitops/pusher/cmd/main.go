// Command gitops_pr applies a change manifest to a
// branch as a chain of commits and opens or updates the
// pull request into the base branch.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/byte4ever/gitops_pr/gitops/changeset"
	"github.com/byte4ever/gitops_pr/gitops/git"
	"github.com/byte4ever/gitops_pr/gitops/git/bitbucket"
	"github.com/byte4ever/gitops_pr/gitops/git/github"
	"github.com/byte4ever/gitops_pr/gitops/git/gitlab"
	"github.com/byte4ever/gitops_pr/gitops/git/local"
	"github.com/byte4ever/gitops_pr/gitops/pusher"
	"github.com/byte4ever/gitops_pr/gitops/signer"
	"github.com/byte4ever/gitops_pr/stamper"
)

// sliceFlag implements flag.Value for multi-value
// string flags (repeated --flag=val usage).
type sliceFlag []string

// String returns the flag value as a comma-separated
// string representation.
func (s *sliceFlag) String() string {
	if s == nil {
		return ""
	}

	return strings.Join(*s, ",")
}

// Set appends a value to the slice.
func (s *sliceFlag) Set(val string) error {
	*s = append(*s, val)

	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // CLI flag setup is inherently long
func run() error {
	const errCtx = "running gitops_pr"

	// Change flags.
	manifest := flag.String(
		"manifest", "",
		"YAML or JSON change manifest",
	)

	var stampFiles sliceFlag

	flag.Var(
		&stampFiles,
		"stamp_info_file",
		"Workspace status file for {{VAR}} stamping "+
			"(repeatable)",
	)

	// Object store flags.
	objectStore := flag.String(
		"object_store", "github",
		"Where objects are written: github or local",
	)
	localRepo := flag.String(
		"local_repo", "",
		"Existing local repository for the local store",
	)
	gitRepo := flag.String(
		"git_repo", "",
		"Remote repository URL cloned for the local store",
	)
	gitMirror := flag.String(
		"git_mirror", "",
		"Local git mirror for reference clones",
	)
	tmpDir := flag.String(
		"tmp_dir", os.TempDir(),
		"Temporary directory for clones",
	)
	pushWith := flag.String(
		"transport", "go-git",
		"How the local store publishes: go-git or cli",
	)
	gitUser := flag.String(
		"git_user", "",
		"HTTP user for go-git pushes",
	)
	gitToken := flag.String(
		"git_token", "",
		"HTTP password or token for go-git pushes",
	)

	// Branch and commit flags.
	baseBranch := flag.String(
		"base_branch", "main",
		"Branch the target is created from",
	)
	branchName := flag.String(
		"branch", "",
		"Branch receiving the commits",
	)
	message := flag.String(
		"message", "",
		"Commit message",
	)
	force := flag.Bool(
		"force", false,
		"Rebuild the branch from the base and overwrite it",
	)
	batchSize := flag.Int(
		"batch_size", 0,
		"Changes per commit (0 for the default)",
	)
	parallelism := flag.Int(
		"parallelism", 4,
		"Number of concurrent blob writes",
	)
	authorName := flag.String(
		"author_name", "gitops",
		"Commit author name",
	)
	authorEmail := flag.String(
		"author_email", "",
		"Commit author email",
	)
	committerName := flag.String(
		"committer_name", "",
		"Commit committer name (defaults to author)",
	)
	committerEmail := flag.String(
		"committer_email", "",
		"Commit committer email (defaults to author)",
	)

	// Signing flags.
	signKeyFile := flag.String(
		"sign_key_file", "",
		"Armored OpenPGP private key signing commits",
	)
	signPassphrase := flag.String(
		"sign_passphrase", "",
		"Passphrase of the signing key",
	)
	signCommand := flag.String(
		"sign_command", "",
		"Command reading a commit on stdin and printing "+
			"its signature",
	)

	// PR flags.
	prTitle := flag.String(
		"pr_title", "",
		"Pull request title (defaults to the first "+
			"message line)",
	)
	prBody := flag.String(
		"pr_body", "",
		"Body for created pull requests",
	)
	dryRun := flag.Bool(
		"dry_run", false,
		"Build commits without moving refs or "+
			"opening a PR",
	)

	// Git provider selection.
	gitServer := flag.String(
		"git_server", "github",
		"Git hosting platform: github, gitlab, "+
			"bitbucket or none",
	)

	// GitHub-specific flags.
	ghRepoOwner := flag.String(
		"github_repo_owner", "",
		"GitHub repository owner",
	)
	ghRepo := flag.String(
		"github_repo", "",
		"GitHub repository name",
	)
	ghToken := flag.String(
		"github_access_token", "",
		"GitHub personal access token",
	)
	ghEnterprise := flag.String(
		"github_enterprise_host", "",
		"GitHub Enterprise hostname",
	)

	// GitLab-specific flags.
	glHost := flag.String(
		"gitlab_host", "",
		"GitLab instance URL",
	)
	glRepo := flag.String(
		"gitlab_repo", "",
		"GitLab project path (org/project)",
	)
	glToken := flag.String(
		"gitlab_access_token", "",
		"GitLab personal access token",
	)

	// Bitbucket-specific flags.
	bbEndpoint := flag.String(
		"bitbucket_api_endpoint", "",
		"Bitbucket Server pull-requests REST URL",
	)
	bbUser := flag.String(
		"bitbucket_user", "",
		"Bitbucket API username",
	)
	bbPassword := flag.String(
		"bitbucket_password", "",
		"Bitbucket API password or token",
	)

	flag.Parse()

	ctx := context.Background()

	changes, err := loadChanges(*manifest, stampFiles)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	pf := providerFlags{
		ghRepoOwner:  *ghRepoOwner,
		ghRepo:       *ghRepo,
		ghToken:      *ghToken,
		ghEnterprise: *ghEnterprise,
		glHost:       *glHost,
		glRepo:       *glRepo,
		glToken:      *glToken,
		bbEndpoint:   *bbEndpoint,
		bbUser:       *bbUser,
		bbPassword:   *bbPassword,
	}

	// Build git provider from flags.
	provider, err := newGitProvider(*gitServer, pf)
	if err != nil {
		return fmt.Errorf(
			"%s: create provider: %w", errCtx, err,
		)
	}

	store, tr, cleanup, err := newStore(
		ctx,
		*objectStore,
		storeFlags{
			localRepo:  *localRepo,
			gitRepo:    *gitRepo,
			gitMirror:  *gitMirror,
			tmpDir:     *tmpDir,
			transport:  *pushWith,
			gitUser:    *gitUser,
			gitToken:   *gitToken,
			baseBranch: *baseBranch,
			branch:     *branchName,
		},
		pf,
	)
	if err != nil {
		return fmt.Errorf(
			"%s: create store: %w", errCtx, err,
		)
	}

	defer cleanup()

	sgn, err := newSigner(*signKeyFile, *signPassphrase, *signCommand)
	if err != nil {
		return fmt.Errorf(
			"%s: create signer: %w", errCtx, err,
		)
	}

	author := git.Identity{Name: *authorName, Email: *authorEmail}

	report, err := pusher.Run(ctx, pusher.Config{
		Store:       store,
		Transport:   tr,
		Provider:    provider,
		Signer:      sgn,
		Author:      author,
		Committer:   git.Identity{Name: *committerName, Email: *committerEmail},
		Owner:       *ghRepoOwner,
		Repo:        *ghRepo,
		BaseBranch:  *baseBranch,
		Branch:      *branchName,
		Changes:     changes,
		Message:     *message,
		Force:       *force,
		BatchSize:   *batchSize,
		Parallelism: *parallelism,
		PRTitle:     *prTitle,
		PRBody:      *prBody,
		DryRun:      *dryRun,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	logReport(report)

	return nil
}

// loadChanges reads the manifest and stamps its contents
// with the workspace status files.
func loadChanges(
	manifest string,
	stampFiles []string,
) (changeset.Set, error) {
	const errCtx = "loading changes"

	if manifest == "" {
		return nil, fmt.Errorf("%s: --manifest is required", errCtx)
	}

	set, err := changeset.LoadManifest(manifest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if len(stampFiles) == 0 {
		return set, nil
	}

	stamps, err := stamper.LoadStamps(stampFiles)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	set, err = stamper.StampChanges(set, stamps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return set, nil
}

func logReport(r *pusher.Report) {
	if r.Head == "" {
		slog.Info("nothing to do")

		return
	}

	slog.Info(
		"push complete",
		"head", r.Head,
		"commits", len(r.Commits),
		"branch_created", r.Branches.Created,
	)

	if pr := r.PullRequest; pr != nil {
		slog.Info(
			"pull request ready",
			"number", pr.Number,
			"url", pr.URL,
			"created", pr.Created,
		)
	}
}

// storeFlags bundles object store flag values.
type storeFlags struct {
	localRepo  string
	gitRepo    string
	gitMirror  string
	tmpDir     string
	transport  string
	gitUser    string
	gitToken   string
	baseBranch string
	branch     string
}

// newStore creates the object store and, for local
// stores, the transport publishing the branch. The
// returned cleanup removes any temporary clone.
// Pattern: Factory -- selects store implementation at
// runtime.
func newStore(
	ctx context.Context,
	kind string,
	sf storeFlags,
	pf providerFlags,
) (git.Backend, git.Transport, func(), error) {
	const errCtx = "creating object store"

	noop := func() {}

	switch kind {
	case "github":
		st, err := github.NewStore(github.Config{
			RepoOwner:      pf.ghRepoOwner,
			Repo:           pf.ghRepo,
			AccessToken:    pf.ghToken,
			EnterpriseHost: pf.ghEnterprise,
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		return st, nil, noop, nil

	case "local":
		rp, cleanup, err := localRepo(ctx, sf)
		if err != nil {
			return nil, nil, noop, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		var auth transport.AuthMethod
		if sf.gitToken != "" {
			auth = &githttp.BasicAuth{
				Username: sf.gitUser,
				Password: sf.gitToken,
			}
		}

		st, err := local.Open(rp.Dir, local.Config{
			RemoteName: rp.RemoteName,
			Auth:       auth,
		})
		if err != nil {
			cleanup()

			return nil, nil, noop, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		switch sf.transport {
		case "go-git":
			return st, st, cleanup, nil
		case "cli":
			return st, rp, cleanup, nil
		default:
			cleanup()

			return nil, nil, noop, fmt.Errorf(
				"%s: unknown transport %q",
				errCtx, sf.transport,
			)
		}

	default:
		return nil, nil, noop, fmt.Errorf(
			"%s: unknown store %q", errCtx, kind,
		)
	}
}

// localRepo returns the repository backing a local
// store: either the given directory or a fresh bare
// clone holding the base and target branches.
func localRepo(
	ctx context.Context,
	sf storeFlags,
) (*git.Repo, func(), error) {
	const errCtx = "preparing local repository"

	if sf.localRepo != "" {
		return &git.Repo{
			Dir:        sf.localRepo,
			RemoteName: "origin",
		}, func() {}, nil
	}

	if sf.gitRepo == "" {
		return nil, nil, fmt.Errorf(
			"%s: --local_repo or --git_repo is required",
			errCtx,
		)
	}

	dir, err := os.MkdirTemp(sf.tmpDir, "gitops_pr")
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	rp, err := git.Clone(
		ctx,
		sf.gitRepo,
		filepath.Join(dir, "repo"),
		sf.gitMirror,
		sf.baseBranch,
	)
	if err != nil {
		_ = os.RemoveAll(dir)

		return nil, nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("removing clone", "dir", dir, "error", err)
		}
	}

	if sf.branch != "" && sf.branch != sf.baseBranch {
		if _, err := rp.FetchBranch(ctx, sf.branch); err != nil {
			cleanup()

			return nil, nil, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return rp, cleanup, nil
}

// newSigner returns the commit signer selected by the
// flags, or nil when commits stay unsigned.
func newSigner(
	keyFile string,
	passphrase string,
	command string,
) (git.Signer, error) {
	const errCtx = "creating signer"

	switch {
	case keyFile != "" && command != "":
		return nil, fmt.Errorf(
			"%s: --sign_key_file and --sign_command "+
				"are exclusive",
			errCtx,
		)

	case keyFile != "":
		f, err := os.Open(keyFile) //nolint:gosec // CLI flag
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		defer f.Close() //nolint:errcheck

		s, err := signer.FromArmoredKey(f, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return s, nil

	case command != "":
		s, err := signer.ParseCommand(command)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return s, nil

	default:
		return nil, nil //nolint:nilnil // unsigned commits
	}
}

// providerFlags bundles provider-specific flag values
// to keep the factories under the 4-argument limit.
type providerFlags struct {
	ghRepoOwner  string
	ghRepo       string
	ghToken      string
	ghEnterprise string
	glHost       string
	glRepo       string
	glToken      string
	bbEndpoint   string
	bbUser       string
	bbPassword   string
}

// newGitProvider creates a git.GitProvider based on the
// server name. "none" disables pull requests.
// Pattern: Factory -- selects platform implementation
// at runtime.
func newGitProvider(
	server string,
	pf providerFlags,
) (git.GitProvider, error) {
	const errCtx = "creating git provider"

	switch server {
	case "none":
		return nil, nil //nolint:nilnil // no pull request

	case "github":
		p, err := github.NewProvider(github.Config{
			RepoOwner:      pf.ghRepoOwner,
			Repo:           pf.ghRepo,
			AccessToken:    pf.ghToken,
			EnterpriseHost: pf.ghEnterprise,
		})
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		return p, nil

	case "gitlab":
		p, err := gitlab.NewProvider(gitlab.Config{
			Host:        pf.glHost,
			Repo:        pf.glRepo,
			AccessToken: pf.glToken,
		})
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		return p, nil

	case "bitbucket":
		p, err := bitbucket.NewProvider(
			bitbucket.Config{
				APIEndpoint: pf.bbEndpoint,
				User:        pf.bbUser,
				Password:    pf.bbPassword,
			},
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		return p, nil

	default:
		return nil, fmt.Errorf(
			"%s: unknown server %q", errCtx, server,
		)
	}
}
