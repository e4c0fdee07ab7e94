package tree

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/byte4ever/gitops_pr/gitops/changeset"
	"github.com/byte4ever/gitops_pr/gitops/digester"
	"github.com/byte4ever/gitops_pr/gitops/git"
)

// DefaultParallelism bounds concurrent blob writes when
// the caller does not pick a value.
const DefaultParallelism = 4

// Builder builds new trees on top of an object store.
type Builder struct {
	store       git.ObjectStore
	parallelism int
}

// New returns a Builder writing to store. parallelism
// bounds concurrent blob writes; values below one use
// DefaultParallelism.
func New(store git.ObjectStore, parallelism int) *Builder {
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}

	return &Builder{
		store:       store,
		parallelism: parallelism,
	}
}

// dir is the working copy of one directory listing.
type dir struct {
	// path is the slash path of the directory, empty
	// for the root.
	path string
	// id is the tree id the listing was read from,
	// empty for new directories.
	id      string
	entries map[string]git.TreeEntry
	// subdirs holds the directories descended into.
	subdirs map[string]*dir
	dirty   bool
}

func newDir(path, id string, entries []git.TreeEntry) *dir {
	d := &dir{
		path:    path,
		id:      id,
		entries: make(map[string]git.TreeEntry, len(entries)),
		subdirs: make(map[string]*dir),
	}

	for _, ent := range entries {
		d.entries[ent.Name] = ent
	}

	return d
}

func (d *dir) join(name string) string {
	if d.path == "" {
		return name
	}

	return d.path + "/" + name
}

// isEmpty reports whether the directory holds nothing.
// A subdirectory, loaded or new, only counts when it is
// not empty itself.
func (d *dir) isEmpty() bool {
	for name := range d.entries {
		sub, ok := d.subdirs[name]
		if !ok || !sub.isEmpty() {
			return false
		}
	}

	for name, sub := range d.subdirs {
		if _, ok := d.entries[name]; !ok && !sub.isEmpty() {
			return false
		}
	}

	return true
}

// Build applies changes in order on top of tree treeID
// and returns the id of the resulting tree. An empty
// treeID starts from an empty tree. When no change
// alters the tree, treeID is returned and nothing is
// written.
func (b *Builder) Build(
	ctx context.Context,
	treeID string,
	changes []changeset.Change,
) (string, error) {
	const errCtx = "building tree"

	for _, c := range changes {
		if err := c.Validate(); err != nil {
			return "", fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	blobs, err := b.writeBlobs(ctx, changes)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	root, err := b.load(ctx, "", treeID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	root, err = fold(
		changes,
		root,
		func(d *dir, c changeset.Change) (*dir, error) {
			leaf, err := leafEntry(c, blobs)
			if err != nil {
				return nil, err
			}

			_, err = b.apply(ctx, d, c, c.Segments(), leaf)

			return d, err
		},
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	id, err := b.write(ctx, root)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Debug(
		"built tree",
		"base", treeID,
		"tree", id,
		"changes", len(changes),
	)

	return id, nil
}

// fold threads acc through fn for every item, stopping
// at the first error.
func fold[T, A any](
	items []T,
	acc A,
	fn func(A, T) (A, error),
) (A, error) {
	for _, it := range items {
		var err error

		acc, err = fn(acc, it)
		if err != nil {
			return acc, err
		}
	}

	return acc, nil
}

// apply walks segs below d and applies c at the leaf.
// Returns true when d changed.
func (b *Builder) apply(
	ctx context.Context,
	d *dir,
	c changeset.Change,
	segs []string,
	leaf git.TreeEntry,
) (bool, error) {
	name := segs[0]

	if len(segs) == 1 {
		return applyLeaf(d, c, name, leaf)
	}

	child, err := b.descend(ctx, d, c, name)
	if err != nil || child == nil {
		return false, err
	}

	changed, err := b.apply(ctx, child, c, segs[1:], leaf)
	if err != nil {
		return false, err
	}

	if changed {
		child.dirty = true
		d.dirty = true
	}

	return changed, nil
}

// descend returns the subdirectory name of d, loading it
// when needed. Missing directories are created for puts.
// A deletion below a missing directory or a non-tree
// entry gets nil: the path does not exist.
func (b *Builder) descend(
	ctx context.Context,
	d *dir,
	c changeset.Change,
	name string,
) (*dir, error) {
	if sub, ok := d.subdirs[name]; ok {
		return sub, nil
	}

	ent, ok := d.entries[name]

	switch {
	case c.Deleted && (!ok || ent.Kind != git.KindTree):
		return nil, nil
	case !ok:
		sub := newDir(d.join(name), "", nil)
		d.subdirs[name] = sub

		return sub, nil
	case ent.Kind != git.KindTree:
		return nil, &git.PathConflictError{
			Path:     c.Path,
			At:       d.join(name),
			Existing: ent.Kind,
		}
	}

	sub, err := b.load(ctx, d.join(name), ent.ID)
	if err != nil {
		return nil, err
	}

	d.subdirs[name] = sub

	return sub, nil
}

// applyLeaf puts or removes entry name of d.
func applyLeaf(
	d *dir,
	c changeset.Change,
	name string,
	leaf git.TreeEntry,
) (bool, error) {
	ent, exists := d.entries[name]
	sub, loaded := d.subdirs[name]

	if c.Deleted {
		if !exists && !loaded {
			return false, nil
		}

		delete(d.entries, name)
		delete(d.subdirs, name)
		d.dirty = true

		return true, nil
	}

	// A directory emptied earlier in the batch is gone
	// and may be replaced by a file.
	if loaded && sub.isEmpty() {
		delete(d.entries, name)
		delete(d.subdirs, name)
		d.dirty = true
		loaded, exists = false, false
	}

	if loaded || (exists && ent.Kind == git.KindTree) {
		return false, &git.PathConflictError{
			Path:     c.Path,
			At:       d.join(name),
			Existing: git.KindTree,
		}
	}

	if exists && ent == leaf {
		return false, nil
	}

	d.entries[name] = leaf
	d.dirty = true

	return true, nil
}

// leafEntry returns the tree entry a put change lands
// as. Deletions get the zero entry.
func leafEntry(
	c changeset.Change,
	blobs map[string]string,
) (git.TreeEntry, error) {
	if c.Deleted {
		return git.TreeEntry{}, nil
	}

	segs := c.Segments()
	ent := git.TreeEntry{
		Name: segs[len(segs)-1],
		Mode: c.Mode,
		Kind: git.KindForMode(c.Mode),
	}

	if c.Mode == changeset.Submodule {
		id := strings.TrimSpace(string(c.Content))
		if !digester.IsObjectID(id) {
			return git.TreeEntry{}, fmt.Errorf(
				"%s: submodule target %q is not an object id",
				c.Path, id,
			)
		}

		ent.ID = strings.ToLower(id)

		return ent, nil
	}

	ent.ID = blobs[digester.BlobID(c.Content)]

	return ent, nil
}

// load reads tree id into a dir. An empty id yields an
// empty new directory.
func (b *Builder) load(
	ctx context.Context,
	path string,
	id string,
) (*dir, error) {
	if id == "" {
		return newDir(path, "", nil), nil
	}

	entries, err := b.store.ReadTree(ctx, id)
	if err != nil {
		return nil, fmt.Errorf(
			"reading tree %s at %q: %w", id, displayPath(path), err,
		)
	}

	return newDir(path, id, entries), nil
}

// write stores every modified directory below d, then d
// itself, and returns the id of d. Unmodified
// directories keep their id.
func (b *Builder) write(
	ctx context.Context,
	d *dir,
) (string, error) {
	names := make([]string, 0, len(d.subdirs))
	for name := range d.subdirs {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		sub := d.subdirs[name]
		if !sub.dirty {
			continue
		}

		if sub.isEmpty() {
			delete(d.entries, name)

			continue
		}

		id, err := b.write(ctx, sub)
		if err != nil {
			return "", err
		}

		d.entries[name] = git.TreeEntry{
			Name: name,
			Mode: changeset.Dir,
			ID:   id,
			Kind: git.KindTree,
		}
	}

	// A root without a base tree is written even when
	// empty so callers always get a tree id.
	if !d.dirty && d.id != "" {
		return d.id, nil
	}

	listing := make([]git.TreeEntry, 0, len(d.entries))
	for _, ent := range d.entries {
		listing = append(listing, ent)
	}

	sort.Slice(listing, func(i, j int) bool {
		return sortName(listing[i]) < sortName(listing[j])
	})

	id, err := b.store.WriteTree(ctx, listing)
	if err != nil {
		return "", &git.ObjectWriteError{
			Kind: git.KindTree,
			Path: displayPath(d.path),
			Err:  err,
		}
	}

	return id, nil
}

// sortName is the key git orders tree entries by:
// directories compare as if their name ended in "/".
func sortName(ent git.TreeEntry) string {
	if ent.Kind == git.KindTree {
		return ent.Name + "/"
	}

	return ent.Name
}

// writeBlobs stores the distinct contents of the put
// changes using a worker pool bounded by b.parallelism.
// It returns local blob ids mapped to store ids and
// returns only once every write finished.
func (b *Builder) writeBlobs(
	ctx context.Context,
	changes []changeset.Change,
) (map[string]string, error) {
	const errCtx = "writing blobs"

	type job struct {
		digest  string
		path    string
		content []byte
	}

	var jobs []job

	seen := make(map[string]struct{})

	for _, c := range changes {
		if c.Deleted || !c.Mode.IsFile() {
			continue
		}

		dg := digester.BlobID(c.Content)
		if _, ok := seen[dg]; ok {
			continue
		}

		seen[dg] = struct{}{}
		jobs = append(jobs, job{
			digest:  dg,
			path:    c.Path,
			content: c.Content,
		})
	}

	blobs := make(map[string]string, len(jobs))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	sem := make(chan struct{}, b.parallelism)

	for _, jb := range jobs {
		// Check for context cancellation.
		if ctx.Err() != nil {
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()

			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(jb job) {
			defer wg.Done()
			defer func() { <-sem }()

			id, err := b.store.WriteBlob(ctx, jb.content)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = append(errs, &git.ObjectWriteError{
					Kind: git.KindBlob,
					Path: jb.path,
					Err:  err,
				})

				return
			}

			blobs[jb.digest] = id
		}(jb)
	}

	wg.Wait()

	if len(errs) > 0 {
		return nil, fmt.Errorf(
			"%s: %d errors, first: %w",
			errCtx, len(errs), errs[0],
		)
	}

	slog.Debug(
		"wrote blobs",
		"count", len(blobs),
		"changes", len(changes),
	)

	return blobs, nil
}

func displayPath(path string) string {
	if path == "" {
		return "/"
	}

	return path
}
