package git

import "context"

// Pattern: Strategy -- swap git platform without
// changing the push workflow.

// PullRequest identifies a pull (or merge) request on
// the hosting platform.
type PullRequest struct {
	Number int
	URL    string
	// Created is false when an already open request was
	// updated instead.
	Created bool
}

// GitProvider opens a pull request from branch "from"
// into branch "to", or updates the title and body of the
// one already open for that pair.
type GitProvider interface {
	EnsurePR(
		ctx context.Context,
		from string,
		to string,
		title string,
		body string,
	) (*PullRequest, error)
}

// GitProviderFunc adapts a plain function to the
// GitProvider interface. When body is empty the title
// is used as body.
type GitProviderFunc func(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*PullRequest, error)

// EnsurePR delegates to the wrapped function. If body
// is empty, title is substituted.
func (f GitProviderFunc) EnsurePR(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*PullRequest, error) {
	if body == "" {
		body = title
	}

	return f(ctx, from, to, title, body)
}
