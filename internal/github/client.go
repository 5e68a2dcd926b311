// internal/github/client.go
package github

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"github-commit-tracker/internal/metrics"
	"github-commit-tracker/internal/model"
)

const (
	// PageSize is the number of commits fetched per history page.
	PageSize = 10

	// DefaultTimeout bounds every request made to the API.
	DefaultTimeout = 10 * time.Second
)

// Client is a read-only wrapper around the go-github client.
type Client struct {
	gh            *github.Client
	logger        *slog.Logger
	metrics       *metrics.Metrics
	timeout       time.Duration
	authenticated bool
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
	timeout time.Duration
	metrics *metrics.Metrics
}

// WithBaseURL points the client at a GitHub Enterprise instance.
func WithBaseURL(url string) Option {
	return func(o *clientOptions) { o.baseURL = url }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithMetrics records request outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// NewClient creates and configures a new Client instance.
// An empty token yields an anonymous client with the lower public rate limit.
func NewClient(token string, logger *slog.Logger, opts ...Option) (*Client, error) {
	o := clientOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := &http.Client{Timeout: o.timeout}
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = o.timeout
	}

	gh := github.NewClient(httpClient)
	if o.baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(o.baseURL, o.baseURL)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		gh:            gh,
		logger:        logger,
		metrics:       o.metrics,
		timeout:       o.timeout,
		authenticated: token != "",
	}, nil
}

// VerifyRepository reports whether owner/repo exists and is readable with the configured credential.
// Failures are logged with diagnostics and reported as false.
func (c *Client) VerifyRepository(ctx context.Context, owner, repo string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger := c.logger.With("owner", owner, "repo", repo)

	_, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	c.observe("verify_repository", err)
	if err != nil {
		status := statusCode(err)
		logger.Warn("Failed to verify repository", "status", status, "error", err)
		switch status {
		case http.StatusNotFound:
			logger.Warn("Repository not found or not accessible; private repositories need a token with 'repo' scope")
		case http.StatusUnauthorized:
			logger.Warn("Authentication failed; check GITHUB_TOKEN")
		case http.StatusForbidden, http.StatusTooManyRequests:
			logger.Warn("GitHub API rate limit exceeded; consider configuring GITHUB_TOKEN")
		}
		return false
	}

	logger.Info("Verified repository")
	return true
}

// ListRecentCommits fetches one page of branch history and returns, newest first,
// the commits that are newer than sinceSHA.
//
// With an empty sinceSHA only the newest commit is returned so a baseline can be captured.
// If sinceSHA is not in the page the whole page is returned and WatermarkMissing is set.
// Errors are logged and yield an empty page.
func (c *Client) ListRecentCommits(ctx context.Context, owner, repo, branch, sinceSHA string) model.CommitPage {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger := c.logger.With("owner", owner, "repo", repo, "branch", branch)
	logger.Debug("Fetching commits page", "since", sinceSHA)

	opts := &github.CommitsListOptions{
		SHA: branch,
		ListOptions: github.ListOptions{
			PerPage: PageSize,
		},
	}

	commits, _, err := c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
	c.observe("list_commits", err)
	if err != nil {
		switch status := statusCode(err); status {
		case http.StatusNotFound:
			logger.Error("Repository or branch not found", "error", err)
		case http.StatusForbidden, http.StatusTooManyRequests:
			logger.Error("GitHub API rate limit exceeded; consider configuring GITHUB_TOKEN", "error", err)
		default:
			logger.Error("Error fetching commits", "status", status, "error", err)
		}
		return model.CommitPage{}
	}

	return scanPage(toInternalCommits(commits), sinceSHA)
}

// scanPage applies the watermark to a newest-first page.
func scanPage(page []model.Commit, sinceSHA string) model.CommitPage {
	if len(page) == 0 {
		return model.CommitPage{}
	}
	if sinceSHA == "" {
		return model.CommitPage{Commits: page[:1]}
	}

	for i, commit := range page {
		if commit.SHA == sinceSHA {
			return model.CommitPage{Commits: page[:i]}
		}
	}
	return model.CommitPage{Commits: page, WatermarkMissing: true}
}

// GetAuthenticatedIdentity returns the account behind the token, or nil when there is
// no token or it was rejected.
func (c *Client) GetAuthenticatedIdentity(ctx context.Context) *model.Identity {
	if !c.authenticated {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user, _, err := c.gh.Users.Get(ctx, "")
	c.observe("get_user", err)
	if err != nil {
		c.logger.Error("Error fetching authenticated user", "status", statusCode(err), "error", err)
		return nil
	}

	return &model.Identity{
		Login:       user.GetLogin(),
		Name:        user.GetName(),
		Type:        user.GetType(),
		AvatarURL:   user.GetAvatarURL(),
		Bio:         user.GetBio(),
		PublicRepos: user.GetPublicRepos(),
	}
}

// WebURL returns the browser base URL for an API base URL: github.com when apiURL is empty,
// otherwise apiURL without the Enterprise "/api/v3" suffix.
func WebURL(apiURL string) string {
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if apiURL == "" || apiURL == "https://api.github.com" {
		return "https://github.com"
	}
	return strings.TrimRight(strings.TrimSuffix(apiURL, "/api/v3"), "/")
}

// TokenPreview masks a credential for diagnostics, keeping the first and last four characters.
func TokenPreview(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func (c *Client) observe(operation string, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.GithubRequests.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch statusCode(err) {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden, http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "error"
	}
}

// statusCode extracts the HTTP status from a go-github error, or 0 for transport errors.
func statusCode(err error) int {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return rateErr.Response.StatusCode
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.Response != nil {
		return abuseErr.Response.StatusCode
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode
	}
	return 0
}

// toInternalCommits translates github.RepositoryCommit objects to our internal model.Commit.
func toInternalCommits(commits []*github.RepositoryCommit) []model.Commit {
	out := make([]model.Commit, 0, len(commits))
	for _, c := range commits {
		out = append(out, model.Commit{
			SHA:             c.GetSHA(),
			AuthorName:      c.GetCommit().GetAuthor().GetName(),
			AuthoredAt:      c.GetCommit().GetAuthor().GetDate().Time,
			Message:         c.GetCommit().GetMessage(),
			URL:             c.GetHTMLURL(),
			AuthorAvatarURL: c.GetAuthor().GetAvatarURL(),
		})
	}
	return out
}
