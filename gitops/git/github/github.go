package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/byte4ever/gitops_pr/gitops/git"
)

// Config holds the settings needed to reach a GitHub
// repository.
type Config struct {
	// RepoOwner is the GitHub user or organisation
	// that owns the repository.
	RepoOwner string
	// Repo is the repository name (without owner).
	Repo string
	// AccessToken is a personal access token or
	// GitHub App token used for authentication.
	AccessToken string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave
	// empty for github.com.
	EnterpriseHost string
	// BaseURL overrides the API root, mostly for
	// tests. Takes precedence over EnterpriseHost.
	BaseURL string
}

func (cfg Config) validate() error {
	switch {
	case cfg.RepoOwner == "":
		return errors.New("repo owner must be set")
	case cfg.Repo == "":
		return errors.New("repo must be set")
	case cfg.AccessToken == "":
		return errors.New("access token must be set")
	}

	return nil
}

// newClient returns an authenticated client for cfg.
func newClient(cfg Config) (*gh.Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.AccessToken},
	)
	client := gh.NewClient(
		oauth2.NewClient(context.Background(), ts),
	)

	switch {
	case cfg.BaseURL != "":
		u, err := url.Parse(
			strings.TrimRight(cfg.BaseURL, "/") + "/",
		)
		if err != nil {
			return nil, fmt.Errorf("base url: %w", err)
		}

		client.BaseURL = u
	case cfg.EnterpriseHost != "":
		baseURL := "https://" +
			cfg.EnterpriseHost + "/api/v3/"
		uploadURL := "https://" +
			cfg.EnterpriseHost + "/api/uploads/"

		var err error

		client, err = client.WithEnterpriseURLs(
			baseURL, uploadURL,
		)
		if err != nil {
			return nil, fmt.Errorf("enterprise urls: %w", err)
		}
	}

	return client, nil
}

// Provider opens pull requests on GitHub.
//
// Pattern: Strategy -- implements git.GitProvider.
type Provider struct {
	client    *gh.Client
	repoOwner string
	repo      string
}

// NewProvider validates cfg and returns a Provider
// ready to open pull requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating github provider"

	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &Provider{
		client:    client,
		repoOwner: cfg.RepoOwner,
		repo:      cfg.Repo,
	}, nil
}

// EnsurePR opens a pull request from branch "from" into
// branch "to". When one is already open for that pair
// (HTTP 422) its title and body are updated instead.
func (p *Provider) EnsurePR(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*git.PullRequest, error) {
	const errCtx = "ensuring github pull request"

	created, resp, err := p.client.PullRequests.Create(
		ctx, p.repoOwner, p.repo, &gh.NewPullRequest{
			Title: &title,
			Head:  &from,
			Base:  &to,
			Body:  &body,
		},
	)
	if err == nil {
		slog.Info(
			"created pull request",
			"number", created.GetNumber(),
			"url", created.GetHTMLURL(),
		)

		return &git.PullRequest{
			Number:  created.GetNumber(),
			URL:     created.GetHTMLURL(),
			Created: true,
		}, nil
	}

	// HTTP 422: a PR already exists for this
	// head/base pair.
	if !hasStatus(resp, http.StatusUnprocessableEntity) {
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

// update edits the open pull request from "from" into
// "to".
func (p *Provider) update(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*git.PullRequest, error) {
	open, _, err := p.client.PullRequests.List(
		ctx, p.repoOwner, p.repo, &gh.PullRequestListOptions{
			State: "open",
			Head:  p.repoOwner + ":" + from,
			Base:  to,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("listing pull requests: %w", err)
	}

	if len(open) == 0 {
		return nil, fmt.Errorf(
			"no open pull request from %s into %s", from, to,
		)
	}

	num := open[0].GetNumber()

	edited, _, err := p.client.PullRequests.Edit(
		ctx, p.repoOwner, p.repo, num, &gh.PullRequest{
			Title: &title,
			Body:  &body,
		},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"updating pull request #%d: %w", num, err,
		)
	}

	slog.Info(
		"updated existing pull request",
		"number", num,
		"url", edited.GetHTMLURL(),
	)

	return &git.PullRequest{
		Number: num,
		URL:    edited.GetHTMLURL(),
	}, nil
}

func hasStatus(resp *gh.Response, code int) bool {
	return resp != nil && resp.StatusCode == code
}

// logResponse logs the response body for debugging.
func logResponse(resp *gh.Response) {
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
		slog.Warn("github response", "body", string(rb))
	}
}
