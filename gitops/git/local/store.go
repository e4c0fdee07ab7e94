package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/byte4ever/gitops_pr/gitops/changeset"
	"github.com/byte4ever/gitops_pr/gitops/git"
)

// Config holds optional settings for a Store.
type Config struct {
	// RemoteName is the remote used by Push. Defaults
	// to "origin".
	RemoteName string
	// Auth authenticates Push. Nil uses the transport
	// default (ssh agent, anonymous http...).
	Auth transport.AuthMethod
}

// Store is a git.Backend and git.Transport backed by a
// go-git repository.
type Store struct {
	repo       *gogit.Repository
	remoteName string
	auth       transport.AuthMethod

	// mu serializes object writes; go-git storers are
	// not safe for concurrent writers.
	mu sync.Mutex
}

// New wraps an opened go-git repository.
func New(repo *gogit.Repository, cfg Config) *Store {
	remote := cfg.RemoteName
	if remote == "" {
		remote = "origin"
	}

	return &Store{
		repo:       repo,
		remoteName: remote,
		auth:       cfg.Auth,
	}
}

// Open opens the repository at dir (bare or not).
func Open(dir string, cfg Config) (*Store, error) {
	const errCtx = "opening local store"

	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %s: %w", errCtx, dir, err,
		)
	}

	return New(repo, cfg), nil
}

// NewInMemory returns a Store over an empty in-memory
// repository.
func NewInMemory() (*Store, error) {
	const errCtx = "creating in-memory store"

	repo, err := gogit.Init(memory.NewStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return New(repo, Config{}), nil
}

// Repository returns the wrapped go-git repository.
func (s *Store) Repository() *gogit.Repository {
	return s.repo
}

// CommitTree returns the tree id of commit id.
func (s *Store) CommitTree(
	_ context.Context,
	id string,
) (string, error) {
	c, err := s.commit(id)
	if err != nil {
		return "", err
	}

	return c.TreeHash.String(), nil
}

// ReadTree returns the entries of tree id.
func (s *Store) ReadTree(
	_ context.Context,
	id string,
) ([]git.TreeEntry, error) {
	const errCtx = "reading tree"

	tree, err := s.repo.TreeObject(plumbing.NewHash(id))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, &git.NotFoundError{What: "tree", Name: id}
	}

	if err != nil {
		return nil, fmt.Errorf(
			"%s %s: %w", errCtx, id, err,
		)
	}

	entries := make([]git.TreeEntry, 0, len(tree.Entries))

	for _, ent := range tree.Entries {
		mode, err := fromFileMode(ent.Mode)
		if err != nil {
			return nil, fmt.Errorf(
				"%s %s: entry %q: %w",
				errCtx, id, ent.Name, err,
			)
		}

		entries = append(entries, git.TreeEntry{
			Name: ent.Name,
			Mode: mode,
			ID:   ent.Hash.String(),
			Kind: git.KindForMode(mode),
		})
	}

	return entries, nil
}

// WriteBlob stores content as a blob object.
func (s *Store) WriteBlob(
	_ context.Context,
	content []byte,
) (string, error) {
	const errCtx = "writing blob"

	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))

	w, err := obj.Writer()
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := w.Write(content); err != nil {
		_ = w.Close()

		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return s.store(obj, errCtx)
}

// WriteTree stores entries as a tree object. Entries
// are sorted into git order first.
func (s *Store) WriteTree(
	_ context.Context,
	entries []git.TreeEntry,
) (string, error) {
	const errCtx = "writing tree"

	tree := &object.Tree{
		Entries: make([]object.TreeEntry, 0, len(entries)),
	}

	for _, ent := range entries {
		fm, err := toFileMode(ent.Mode)
		if err != nil {
			return "", fmt.Errorf(
				"%s: entry %q: %w", errCtx, ent.Name, err,
			)
		}

		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: ent.Name,
			Mode: fm,
			Hash: plumbing.NewHash(ent.ID),
		})
	}

	sortTreeEntries(tree.Entries)

	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return "", fmt.Errorf("%s: encode: %w", errCtx, err)
	}

	return s.store(obj, errCtx)
}

// CreateCommit stores c as a commit object. A non-empty
// signature is recorded as the gpgsig header.
func (s *Store) CreateCommit(
	_ context.Context,
	c git.Commit,
) (string, error) {
	const errCtx = "creating commit"

	obj := s.repo.Storer.NewEncodedObject()
	if err := EncodeCommit(c).Encode(obj); err != nil {
		return "", fmt.Errorf("%s: encode: %w", errCtx, err)
	}

	return s.store(obj, errCtx)
}

// UpdateRef moves refs/heads/<branch> to target. Without
// force, target must descend from the current head.
func (s *Store) UpdateRef(
	_ context.Context,
	branch string,
	target string,
	force bool,
) error {
	const errCtx = "updating ref"

	name := plumbing.NewBranchReferenceName(branch)
	next := plumbing.NewHashReference(
		name, plumbing.NewHash(target),
	)

	cur, err := s.repo.Reference(name, false)

	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		cur = nil
	case err != nil:
		return fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	if cur != nil && !force && cur.Hash() != next.Hash() {
		ff, err := s.isAncestor(cur.Hash(), next.Hash())
		if err != nil {
			return fmt.Errorf(
				"%s %s: %w", errCtx, branch, err,
			)
		}

		if !ff {
			return fmt.Errorf(
				"%s %s: %s is not a descendant of %s: %w",
				errCtx, branch, target, cur.Hash(),
				git.ErrNonFastForward,
			)
		}
	}

	err = s.repo.Storer.CheckAndSetReference(next, cur)
	if errors.Is(err, storage.ErrReferenceHasChanged) {
		return fmt.Errorf(
			"%s %s: concurrent update: %w",
			errCtx, branch, git.ErrNonFastForward,
		)
	}

	if err != nil {
		return fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	slog.Debug(
		"updated local ref",
		"branch", branch,
		"target", target,
		"force", force,
	)

	return nil
}

// BranchHead returns the commit id refs/heads/<branch>
// points to.
func (s *Store) BranchHead(
	_ context.Context,
	branch string,
) (string, error) {
	const errCtx = "resolving branch"

	ref, err := s.repo.Reference(
		plumbing.NewBranchReferenceName(branch), true,
	)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", &git.NotFoundError{
			What: "branch", Name: branch,
		}
	}

	if err != nil {
		return "", fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	return ref.Hash().String(), nil
}

// CreateBranch points a new refs/heads/<branch> at
// target.
func (s *Store) CreateBranch(
	_ context.Context,
	branch string,
	target string,
) error {
	const errCtx = "creating branch"

	if _, err := s.commit(target); err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	ref := plumbing.NewHashReference(
		plumbing.NewBranchReferenceName(branch),
		plumbing.NewHash(target),
	)

	if err := s.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	return nil
}

func (s *Store) commit(id string) (*object.Commit, error) {
	c, err := s.repo.CommitObject(plumbing.NewHash(id))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, &git.NotFoundError{What: "commit", Name: id}
	}

	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", id, err)
	}

	return c, nil
}

// isAncestor reports whether anc is reachable from
// desc.
func (s *Store) isAncestor(anc, desc plumbing.Hash) (bool, error) {
	ac, err := s.commit(anc.String())
	if err != nil {
		return false, err
	}

	dc, err := s.commit(desc.String())
	if err != nil {
		return false, err
	}

	ok, err := ac.IsAncestor(dc)
	if err != nil {
		return false, fmt.Errorf("walking history: %w", err)
	}

	return ok, nil
}

func (s *Store) store(
	obj plumbing.EncodedObject,
	errCtx string,
) (string, error) {
	s.mu.Lock()
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	s.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("%s: store: %w", errCtx, err)
	}

	slog.Debug(
		"stored object",
		"type", obj.Type().String(),
		"id", hash.String(),
	)

	return hash.String(), nil
}

// EncodeCommit converts c to a go-git commit object. A
// signature is stored with a trailing newline.
func EncodeCommit(c git.Commit) *object.Commit {
	parents := make([]plumbing.Hash, 0, len(c.Parents))
	for _, p := range c.Parents {
		parents = append(parents, plumbing.NewHash(p))
	}

	// go-git writes the gpgsig header newline terminated
	// and reads it back that way.
	sig := c.Signature
	if sig != "" && !strings.HasSuffix(sig, "\n") {
		sig += "\n"
	}

	return &object.Commit{
		Author:       signature(c.Author),
		Committer:    signature(c.Committer),
		PGPSignature: sig,
		Message:      c.Message,
		TreeHash:     plumbing.NewHash(c.Tree),
		ParentHashes: parents,
	}
}

// CommitPayload returns the bytes a signature covers:
// the commit object encoded without its gpgsig header.
func CommitPayload(c git.Commit) ([]byte, error) {
	const errCtx = "encoding commit payload"

	obj := &plumbing.MemoryObject{}
	if err := EncodeCommit(c).EncodeWithoutSignature(obj); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	r, err := obj.Reader()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	defer r.Close() //nolint:errcheck

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return data, nil
}

func signature(id git.Identity) object.Signature {
	return object.Signature{
		Name:  id.Name,
		Email: id.Email,
		When:  id.When,
	}
}

func toFileMode(m changeset.FileMode) (filemode.FileMode, error) {
	switch m {
	case changeset.Regular:
		return filemode.Regular, nil
	case changeset.Executable:
		return filemode.Executable, nil
	case changeset.Symlink:
		return filemode.Symlink, nil
	case changeset.Submodule:
		return filemode.Submodule, nil
	case changeset.Dir:
		return filemode.Dir, nil
	default:
		return filemode.Empty, fmt.Errorf(
			"unsupported mode %s", m,
		)
	}
}

func fromFileMode(m filemode.FileMode) (changeset.FileMode, error) {
	switch m {
	case filemode.Regular, filemode.Deprecated:
		return changeset.Regular, nil
	case filemode.Executable:
		return changeset.Executable, nil
	case filemode.Symlink:
		return changeset.Symlink, nil
	case filemode.Submodule:
		return changeset.Submodule, nil
	case filemode.Dir:
		return changeset.Dir, nil
	default:
		return changeset.Regular, fmt.Errorf(
			"unsupported mode %s", m,
		)
	}
}

// sortTreeEntries sorts tree entries in git's required
// order: directories compare as if their name ended in
// "/".
func sortTreeEntries(entries []object.TreeEntry) {
	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}

		return e.Name
	}

	sort.Slice(entries, func(i, j int) bool {
		return key(entries[i]) < key(entries[j])
	})
}
