// Package gitlab implements a git.GitProvider that opens
// merge requests on GitLab.
package gitlab

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/gitops_pr/gitops/git"
)

// Config holds the settings needed to create a GitLab
// merge request provider.
type Config struct {
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.com").
	Host string
	// Repo is the full project path
	// (e.g. "org/project").
	Repo string
	// AccessToken is a personal or project access
	// token used for authentication.
	AccessToken string
}

// Provider opens merge requests on GitLab.
//
// Pattern: Strategy -- implements git.GitProvider.
type Provider struct {
	client *gl.Client
	repo   string
}

// NewProvider validates cfg and returns a Provider
// ready to open merge requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating gitlab provider"

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	host := cfg.Host
	if host == "" {
		host = "https://gitlab.com"
	}

	client, err := gl.NewClient(
		cfg.AccessToken,
		gl.WithBaseURL(host),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: new client: %w", errCtx, err,
		)
	}

	return &Provider{
		client: client,
		repo:   cfg.Repo,
	}, nil
}

// EnsurePR opens a merge request from branch "from"
// into branch "to". When one already exists (HTTP 409)
// the open one is updated with title and body.
func (p *Provider) EnsurePR(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*git.PullRequest, error) {
	const errCtx = "ensuring gitlab merge request"

	created, resp, err := p.client.MergeRequests.CreateMergeRequest(
		p.repo,
		&gl.CreateMergeRequestOptions{
			Title:        gl.Ptr(title),
			Description:  gl.Ptr(body),
			SourceBranch: gl.Ptr(from),
			TargetBranch: gl.Ptr(to),
		},
		gl.WithContext(ctx),
	)
	if err == nil {
		slog.Info(
			"created merge request",
			"iid", created.IID,
			"url", created.WebURL,
		)

		return &git.PullRequest{
			Number:  int(created.IID),
			URL:     created.WebURL,
			Created: true,
		}, nil
	}

	// HTTP 409: MR already exists for this source
	// branch.
	if resp == nil || resp.StatusCode != http.StatusConflict {
		logResponse(resp)

		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	pr, uerr := p.update(ctx, from, to, title, body)
	if uerr != nil {
		return nil, fmt.Errorf(
			"%s: %w (create: %w)", errCtx, uerr, err,
		)
	}

	return pr, nil
}

func (p *Provider) update(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*git.PullRequest, error) {
	open, _, err := p.client.MergeRequests.ListProjectMergeRequests(
		p.repo,
		&gl.ListProjectMergeRequestsOptions{
			State:        gl.Ptr("opened"),
			SourceBranch: gl.Ptr(from),
			TargetBranch: gl.Ptr(to),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("listing merge requests: %w", err)
	}

	if len(open) == 0 {
		return nil, fmt.Errorf(
			"no open merge request from %s into %s", from, to,
		)
	}

	iid := open[0].IID

	edited, _, err := p.client.MergeRequests.UpdateMergeRequest(
		p.repo,
		iid,
		&gl.UpdateMergeRequestOptions{
			Title:       gl.Ptr(title),
			Description: gl.Ptr(body),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"updating merge request !%d: %w", iid, err,
		)
	}

	slog.Info(
		"updated existing merge request",
		"iid", iid,
		"url", edited.WebURL,
	)

	return &git.PullRequest{
		Number: int(iid),
		URL:    edited.WebURL,
	}, nil
}

// logResponse logs the response body for debugging.
func logResponse(resp *gl.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn(
			"cannot read response body",
			"error", err,
		)

		return
	}

	if len(rb) > 0 {
		slog.Warn("gitlab response", "body", string(rb))
	}
}
