// Package bitbucket implements a git.GitProvider that opens
// pull requests on Bitbucket Server through its REST API.
package bitbucket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/gitops_pr/gitops/git"
)

// Config holds the settings needed to create a
// Bitbucket pull request provider.
type Config struct {
	// APIEndpoint is the full Bitbucket Server REST
	// API URL for pull requests, including project
	// and repo path (e.g.
	// "https://bb.example.com/rest/api/1.0/
	// projects/PROJ/repos/repo/pull-requests").
	APIEndpoint string
	// ProjectKey and RepoSlug name the repository in
	// request payloads. Both default to the values
	// found in APIEndpoint.
	ProjectKey string
	RepoSlug   string
	// User is the Bitbucket API username.
	User string
	// Password is the Bitbucket API password (or
	// personal access token).
	Password string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Provider opens pull requests on Bitbucket Server.
//
// Pattern: Strategy -- implements git.GitProvider.
type Provider struct {
	endpoint string
	repo     repository
	user     string
	password string
	client   *http.Client
}

type project struct {
	Key string `json:"key,omitempty"`
}

type repository struct {
	Slug    string  `json:"slug,omitempty"`
	Project project `json:"project"`
}

type pullrequestEndpoint struct {
	ID         string     `json:"id,omitempty"`
	Repository repository `json:"repository,omitempty"`
}

type pullrequest struct {
	ID          int                  `json:"id,omitempty"`
	Version     int                  `json:"version,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	State       string               `json:"state,omitempty"`
	Open        bool                 `json:"open"`
	Closed      bool                 `json:"closed"`
	FromRef     *pullrequestEndpoint `json:"fromRef,omitempty"`
	ToRef       *pullrequestEndpoint `json:"toRef,omitempty"`
	Locked      bool                 `json:"locked"`
	Reviewers   []account            `json:"reviewers,omitempty"`
	Links       *links               `json:"links,omitempty"`
}

// update is the body of a pull request edit. Version
// must be sent even when zero.
type update struct {
	Version     int    `json:"version"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type page struct {
	Values []pullrequest `json:"values"`
}

type links struct {
	Self []link `json:"self"`
}

type link struct {
	Href string `json:"href"`
}

type account struct {
	User user `json:"user"`
}

type user struct {
	Name string `json:"name,omitempty"`
}

func (pr *pullrequest) url() string {
	if pr.Links == nil || len(pr.Links.Self) == 0 {
		return ""
	}

	return pr.Links.Self[0].Href
}

// NewProvider validates cfg and returns a Provider
// ready to open pull requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating bitbucket provider"

	if cfg.APIEndpoint == "" {
		return nil, fmt.Errorf(
			"%s: api endpoint must be set",
			errCtx,
		)
	}

	if cfg.User == "" {
		return nil, fmt.Errorf(
			"%s: user must be set", errCtx,
		)
	}

	if cfg.Password == "" {
		return nil, fmt.Errorf(
			"%s: password must be set", errCtx,
		)
	}

	key, slug := coordinates(cfg.APIEndpoint)
	if cfg.ProjectKey != "" {
		key = cfg.ProjectKey
	}

	if cfg.RepoSlug != "" {
		slug = cfg.RepoSlug
	}

	if key == "" || slug == "" {
		return nil, fmt.Errorf(
			"%s: project key and repo slug must be set",
			errCtx,
		)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Provider{
		endpoint: strings.TrimRight(cfg.APIEndpoint, "/"),
		repo: repository{
			Slug:    slug,
			Project: project{Key: key},
		},
		user:     cfg.User,
		password: cfg.Password,
		client:   client,
	}, nil
}

// coordinates extracts the project key and repo slug
// from ".../projects/KEY/repos/SLUG/pull-requests".
func coordinates(endpoint string) (string, string) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", ""
	}

	var key, slug string

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segs); i++ {
		switch segs[i] {
		case "projects":
			key = segs[i+1]
		case "repos":
			slug = segs[i+1]
		}
	}

	return key, slug
}

// EnsurePR opens a pull request from branch "from" into
// branch "to". When one is already open (409) its title
// and description are updated.
func (p *Provider) EnsurePR(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*git.PullRequest, error) {
	const errCtx = "ensuring bitbucket pull request"

	pr := pullrequest{
		Title:       title,
		Description: body,
		State:       "OPEN",
		Open:        true,
		Closed:      false,
		FromRef: &pullrequestEndpoint{
			ID:         "refs/heads/" + from,
			Repository: p.repo,
		},
		ToRef: &pullrequestEndpoint{
			ID:         "refs/heads/" + to,
			Repository: p.repo,
		},
		Locked:    false,
		Reviewers: []account{},
	}

	var created pullrequest

	status, err := p.do(
		ctx, http.MethodPost, p.endpoint, &pr, &created,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	switch status {
	case http.StatusCreated:
		slog.Info(
			"created pull request",
			"id", created.ID,
			"url", created.url(),
		)

		return &git.PullRequest{
			Number:  created.ID,
			URL:     created.url(),
			Created: true,
		}, nil
	case http.StatusConflict:
		res, err := p.update(ctx, from, to, title, body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return res, nil
	}

	return nil, fmt.Errorf(
		"%s: unexpected status %d",
		errCtx, status,
	)
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
	q := url.Values{}
	q.Set("at", "refs/heads/"+from)
	q.Set("direction", "OUTGOING")
	q.Set("state", "OPEN")

	var open page

	status, err := p.do(
		ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil, &open,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pull requests: %w", err)
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf(
			"listing pull requests: unexpected status %d", status,
		)
	}

	var existing *pullrequest

	for i := range open.Values {
		v := &open.Values[i]
		if v.ToRef != nil && v.ToRef.ID == "refs/heads/"+to {
			existing = v

			break
		}
	}

	if existing == nil {
		return nil, errors.New(
			"pull request conflict but none open from " +
				from + " into " + to,
		)
	}

	var edited pullrequest

	status, err = p.do(
		ctx,
		http.MethodPut,
		fmt.Sprintf("%s/%d", p.endpoint, existing.ID),
		&update{
			Version:     existing.Version,
			Title:       title,
			Description: body,
		},
		&edited,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"updating pull request %d: %w", existing.ID, err,
		)
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf(
			"updating pull request %d: unexpected status %d",
			existing.ID, status,
		)
	}

	slog.Info(
		"updated existing pull request",
		"id", existing.ID,
		"url", existing.url(),
	)

	return &git.PullRequest{
		Number: existing.ID,
		URL:    existing.url(),
	}, nil
}

// do sends a JSON request and decodes a successful
// response into out. Non-2xx statuses are returned
// without error.
func (p *Provider) do(
	ctx context.Context,
	method string,
	target string,
	in any,
	out any,
) (int, error) {
	var payload io.Reader

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}

		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(
		ctx, method, target, payload,
	)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	if in != nil {
		req.Header.Set(
			"Content-Type",
			"application/json; charset=utf-8",
		)
	}

	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.user, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn(
			"cannot read response body",
			"error", err,
		)

		return resp.StatusCode, nil
	}

	slog.Debug(
		"bitbucket response",
		"method", method,
		"status", resp.Status,
		"body", string(rb),
	)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok && out != nil && len(rb) > 0 {
		if err := json.Unmarshal(rb, out); err != nil {
			return resp.StatusCode, fmt.Errorf(
				"decode response: %w", err,
			)
		}
	}

	return resp.StatusCode, nil
}
