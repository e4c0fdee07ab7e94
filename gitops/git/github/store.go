package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/gitops_pr/gitops/changeset"
	"github.com/byte4ever/gitops_pr/gitops/git"
)

// EmptyTreeID is the id of the tree with no entries.
// GitHub refuses to create it but accepts it as a
// commit tree.
const EmptyTreeID = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Store is a git.Backend on the GitHub Git Data API.
type Store struct {
	client    *gh.Client
	repoOwner string
	repo      string
}

// NewStore validates cfg and returns a Store for the
// configured repository.
func NewStore(cfg Config) (*Store, error) {
	const errCtx = "creating github store"

	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &Store{
		client:    client,
		repoOwner: cfg.RepoOwner,
		repo:      cfg.Repo,
	}, nil
}

// CommitTree returns the tree id of commit id.
func (s *Store) CommitTree(
	ctx context.Context,
	id string,
) (string, error) {
	const errCtx = "reading commit"

	c, resp, err := s.client.Git.GetCommit(
		ctx, s.repoOwner, s.repo, id,
	)
	if hasStatus(resp, http.StatusNotFound) {
		return "", &git.NotFoundError{
			What: "commit", Name: id, Err: err,
		}
	}

	if err != nil {
		return "", fmt.Errorf("%s %s: %w", errCtx, id, err)
	}

	return c.GetTree().GetSHA(), nil
}

// ReadTree returns the entries of tree id.
func (s *Store) ReadTree(
	ctx context.Context,
	id string,
) ([]git.TreeEntry, error) {
	const errCtx = "reading tree"

	if id == EmptyTreeID {
		return nil, nil
	}

	tr, resp, err := s.client.Git.GetTree(
		ctx, s.repoOwner, s.repo, id, false,
	)
	if hasStatus(resp, http.StatusNotFound) {
		return nil, &git.NotFoundError{
			What: "tree", Name: id, Err: err,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", errCtx, id, err)
	}

	entries := make([]git.TreeEntry, 0, len(tr.Entries))

	for _, ent := range tr.Entries {
		mode, err := changeset.ParseFileMode(ent.GetMode())
		if err != nil {
			return nil, fmt.Errorf(
				"%s %s: entry %q: %w",
				errCtx, id, ent.GetPath(), err,
			)
		}

		entries = append(entries, git.TreeEntry{
			Name: ent.GetPath(),
			Mode: mode,
			ID:   ent.GetSHA(),
			Kind: git.ObjectKind(ent.GetType()),
		})
	}

	return entries, nil
}

// WriteBlob uploads content base64 encoded.
func (s *Store) WriteBlob(
	ctx context.Context,
	content []byte,
) (string, error) {
	const errCtx = "creating blob"

	b, _, err := s.client.Git.CreateBlob(
		ctx, s.repoOwner, s.repo, &gh.Blob{
			Content: gh.Ptr(
				base64.StdEncoding.EncodeToString(content),
			),
			Encoding: gh.Ptr("base64"),
		},
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Debug(
		"created blob",
		"sha", b.GetSHA(),
		"size", len(content),
	)

	return b.GetSHA(), nil
}

// WriteTree creates a tree holding exactly entries.
func (s *Store) WriteTree(
	ctx context.Context,
	entries []git.TreeEntry,
) (string, error) {
	const errCtx = "creating tree"

	if len(entries) == 0 {
		return EmptyTreeID, nil
	}

	listing := make([]*gh.TreeEntry, 0, len(entries))
	for _, ent := range entries {
		listing = append(listing, &gh.TreeEntry{
			Path: gh.Ptr(ent.Name),
			Mode: gh.Ptr(ent.Mode.Octal()),
			Type: gh.Ptr(string(ent.Kind)),
			SHA:  gh.Ptr(ent.ID),
		})
	}

	tr, _, err := s.client.Git.CreateTree(
		ctx, s.repoOwner, s.repo, "", listing,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Debug(
		"created tree",
		"sha", tr.GetSHA(),
		"entries", len(entries),
	)

	return tr.GetSHA(), nil
}

// CreateCommit creates c. A non-empty signature is sent
// along and verified by GitHub against the payload it
// rebuilds.
func (s *Store) CreateCommit(
	ctx context.Context,
	c git.Commit,
) (string, error) {
	const errCtx = "creating commit"

	commit := &gh.Commit{
		Message:   gh.Ptr(c.Message),
		Tree:      &gh.Tree{SHA: gh.Ptr(c.Tree)},
		Author:    author(c.Author),
		Committer: author(c.Committer),
	}

	for _, p := range c.Parents {
		commit.Parents = append(
			commit.Parents, &gh.Commit{SHA: gh.Ptr(p)},
		)
	}

	if c.Signature != "" {
		commit.Verification = &gh.SignatureVerification{
			Signature: gh.Ptr(c.Signature),
		}
	}

	created, _, err := s.client.Git.CreateCommit(
		ctx, s.repoOwner, s.repo, commit, nil,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return created.GetSHA(), nil
}

// UpdateRef moves refs/heads/<branch>. GitHub enforces
// the fast-forward rule when force is false.
func (s *Store) UpdateRef(
	ctx context.Context,
	branch string,
	target string,
	force bool,
) error {
	const errCtx = "updating ref"

	_, resp, err := s.client.Git.UpdateRef(
		ctx, s.repoOwner, s.repo, &gh.Reference{
			Ref:    gh.Ptr(branchRef(branch)),
			Object: &gh.GitObject{SHA: gh.Ptr(target)},
		}, force,
	)

	switch {
	case err == nil:
		return nil
	case hasStatus(resp, http.StatusUnprocessableEntity) &&
		isNotFastForward(err):
		return fmt.Errorf(
			"%s %s: %w: %w",
			errCtx, branch, git.ErrNonFastForward, err,
		)
	case hasStatus(resp, http.StatusNotFound):
		return fmt.Errorf(
			"%s: %w", errCtx,
			&git.NotFoundError{What: "branch", Name: branch, Err: err},
		)
	}

	return fmt.Errorf("%s %s: %w", errCtx, branch, err)
}

// BranchHead returns the commit refs/heads/<branch>
// points to.
func (s *Store) BranchHead(
	ctx context.Context,
	branch string,
) (string, error) {
	const errCtx = "resolving branch"

	ref, resp, err := s.client.Git.GetRef(
		ctx, s.repoOwner, s.repo, "heads/"+branch,
	)
	if hasStatus(resp, http.StatusNotFound) {
		return "", &git.NotFoundError{
			What: "branch", Name: branch, Err: err,
		}
	}

	if err != nil {
		return "", fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	return ref.GetObject().GetSHA(), nil
}

// CreateBranch creates refs/heads/<branch> at target.
func (s *Store) CreateBranch(
	ctx context.Context,
	branch string,
	target string,
) error {
	const errCtx = "creating branch"

	_, _, err := s.client.Git.CreateRef(
		ctx, s.repoOwner, s.repo, &gh.Reference{
			Ref:    gh.Ptr(branchRef(branch)),
			Object: &gh.GitObject{SHA: gh.Ptr(target)},
		},
	)
	if err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	return nil
}

func branchRef(branch string) string {
	return "refs/heads/" + branch
}

func author(id git.Identity) *gh.CommitAuthor {
	a := &gh.CommitAuthor{
		Name:  gh.Ptr(id.Name),
		Email: gh.Ptr(id.Email),
	}

	if !id.When.IsZero() {
		a.Date = &gh.Timestamp{Time: id.When}
	}

	return a
}

func isNotFastForward(err error) bool {
	var er *gh.ErrorResponse
	if !errors.As(err, &er) {
		return false
	}

	return strings.Contains(
		strings.ToLower(er.Message), "fast forward",
	)
}
