package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/muurk/apkdrop/internal/logging"
	"github.com/muurk/apkdrop/internal/version"
)

const (
	// DefaultTimeout bounds one complete FetchReleases call, all pages included.
	DefaultTimeout = 30 * time.Second

	// DefaultPerPage is the largest page size the releases API accepts.
	DefaultPerPage = 100

	// maxPages guards against a provider that never stops returning NextPage.
	maxPages = 1000
)

// Sentinel errors for client construction.
var (
	ErrEmptyToken = errors.New("github token cannot be empty")
	ErrEmptyRepo  = errors.New("repository owner and name are required")
)

// Client lists the releases of a single repository.
type Client struct {
	gh      *github.Client
	owner   string
	repo    string
	perPage int
	timeout time.Duration
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root (GitHub Enterprise,
// tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithPerPage sets the page size requested from the provider.
func WithPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.perPage = n
		}
	}
}

// WithTimeout bounds each FetchReleases call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a client authenticated with a bearer token.
func NewClient(token, owner, repo string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrEmptyToken
	}
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(repo) == "" {
		return nil, ErrEmptyRepo
	}

	c := &Client{
		owner:   owner,
		repo:    repo,
		perPage: DefaultPerPage,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	c.gh = github.NewClient(tc)
	c.gh.UserAgent = version.UserAgent()

	if c.baseURL != "" {
		base := c.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid API base URL %q: %w", c.baseURL, err)
		}
		c.gh.BaseURL = u
	}

	return c, nil
}

// Repository returns "owner/repo".
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// FetchReleases returns every release of the repository in provider order
// (newest first). Pagination is followed until the provider reports no next
// page. Failures are *Error values.
func (c *Client) FetchReleases(ctx context.Context) ([]Release, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var releases []Release
	opts := &github.ListOptions{PerPage: c.perPage, Page: 1}

	for pages := 0; pages < maxPages; pages++ {
		page, resp, err := c.gh.Repositories.ListReleases(ctx, c.owner, c.repo, opts)
		if err != nil {
			cerr := classify(err, resp)
			logging.Warn("Catalog fetch failed",
				zap.String("repository", c.Repository()),
				zap.Int("page", opts.Page),
				zap.String("kind", cerr.Kind.String()),
				zap.Error(err),
			)
			return nil, cerr
		}

		for _, r := range page {
			if r == nil {
				continue
			}
			releases = append(releases, releaseFromGitHub(r))
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	logging.Info("Catalog fetched",
		zap.String("repository", c.Repository()),
		zap.Int("releases", len(releases)),
	)
	return releases, nil
}
