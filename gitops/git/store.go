package git

import "context"

// ObjectStore reads and writes git objects. Identifiers
// are hex object ids.
type ObjectStore interface {
	// CommitTree returns the tree id of commit id.
	CommitTree(ctx context.Context, id string) (string, error)
	// ReadTree returns the entries of tree id.
	ReadTree(ctx context.Context, id string) ([]TreeEntry, error)
	// WriteBlob stores content and returns its id.
	WriteBlob(ctx context.Context, content []byte) (string, error)
	// WriteTree stores a complete listing and returns
	// its id.
	WriteTree(ctx context.Context, entries []TreeEntry) (string, error)
	// CreateCommit stores c and returns its id.
	CreateCommit(ctx context.Context, c Commit) (string, error)
}

// RefStore moves branch references. Without force the
// store must reject non fast-forward updates with an
// error wrapping ErrNonFastForward.
type RefStore interface {
	UpdateRef(
		ctx context.Context,
		branch string,
		target string,
		force bool,
	) error
}

// BranchStore resolves and creates branches. BranchHead
// returns an error wrapping ErrNotFound for missing
// branches.
type BranchStore interface {
	BranchHead(ctx context.Context, branch string) (string, error)
	CreateBranch(
		ctx context.Context,
		branch string,
		target string,
	) error
}

// Backend is a store able to serve a complete push.
type Backend interface {
	ObjectStore
	RefStore
	BranchStore
}

// Transport publishes a local branch to a remote.
type Transport interface {
	Push(ctx context.Context, branch string, force bool) error
}

// Signer produces signature material for a commit. The
// Signature field of c is empty when called.
type Signer interface {
	GenerateSignature(c Commit) (string, error)
}

// SignerFunc adapts a plain function to Signer.
type SignerFunc func(c Commit) (string, error)

// GenerateSignature calls f.
func (f SignerFunc) GenerateSignature(c Commit) (string, error) {
	return f(c)
}
