// Package github is a thin GitHub REST client for credential checks and the
// developer specialist's issue and pull request lookups.
package github

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BaSui01/dailycrew/integrations"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

var classicToken = regexp.MustCompile(`^[A-Za-z0-9]{40}$`)

// LooksLikeToken reports whether text has the shape of a GitHub token.
func LooksLikeToken(text string) bool {
	t := strings.TrimSpace(text)
	if strings.ContainsAny(t, " \t\n") {
		return false
	}
	return strings.HasPrefix(t, "ghp_") ||
		strings.HasPrefix(t, "github_pat_") ||
		strings.HasPrefix(t, "gho_") ||
		classicToken.MatchString(t)
}

// User is the authenticated account.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Issue is an issue or pull request summary.
type Issue struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	HTMLURL    string `json:"html_url"`
	State      string `json:"state"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	RepositoryURL string `json:"repository_url"`
}

// Repo returns "owner/name" from whichever field the endpoint filled.
func (i Issue) Repo() string {
	if i.Repository.FullName != "" {
		return i.Repository.FullName
	}
	if idx := strings.Index(i.RepositoryURL, "/repos/"); idx >= 0 {
		return i.RepositoryURL[idx+len("/repos/"):]
	}
	return ""
}

// Client talks to the GitHub REST API.
type Client struct {
	rest *integrations.REST
}

// New creates a client.
func New(opts integrations.Options, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{rest: integrations.NewREST("github", opts, logger)}
}

func headers(token string) map[string]string {
	return map[string]string{
		"Authorization":        "Bearer " + strings.TrimSpace(token),
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
}

// CheckCredential validates a token with GET /user.
func (c *Client) CheckCredential(ctx context.Context, token string) (*User, error) {
	var u User
	if err := c.rest.Do(ctx, integrations.Request{Path: "/user", Headers: headers(token)}, &u); err != nil {
		return nil, err
	}
	if u.Login == "" {
		return nil, fmt.Errorf("github: /user returned no login")
	}
	return &u, nil
}

// AssignedIssues lists open issues assigned to the token owner.
func (c *Client) AssignedIssues(ctx context.Context, token string, limit int) ([]Issue, error) {
	q := url.Values{}
	q.Set("filter", "assigned")
	q.Set("state", "open")
	q.Set("per_page", fmt.Sprint(perPage(limit)))

	var issues []Issue
	if err := c.rest.Do(ctx, integrations.Request{Path: "/issues", Query: q, Headers: headers(token)}, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// OpenPullRequests lists open pull requests authored by login.
func (c *Client) OpenPullRequests(ctx context.Context, token, login string, limit int) ([]Issue, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("author:%s is:pr is:open", login))
	q.Set("per_page", fmt.Sprint(perPage(limit)))

	var res struct {
		Items []Issue `json:"items"`
	}
	if err := c.rest.Do(ctx, integrations.Request{Path: "/search/issues", Query: q, Headers: headers(token)}, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// Activity counts what the token owner authored in a time window.
type Activity struct {
	Commits      int64 `json:"commits"`
	Issues       int64 `json:"issues"`
	PullRequests int64 `json:"pull_requests"`
}

// Total sums commits, issues and pull requests.
func (a Activity) Total() int64 {
	return a.Commits + a.Issues + a.PullRequests
}

// Activity counts commits, issues and pull requests authored by the token
// owner in [from, to). Search qualifiers have one-second resolution.
func (c *Client) Activity(ctx context.Context, token string, from, to time.Time) (Activity, error) {
	u, err := c.CheckCredential(ctx, token)
	if err != nil {
		return Activity{}, err
	}
	span := fmt.Sprintf("%s..%s",
		from.UTC().Format(time.RFC3339),
		to.UTC().Add(-time.Second).Format(time.RFC3339))

	var a Activity
	if a.Commits, err = c.searchCount(ctx, token, "/search/commits",
		fmt.Sprintf("author:%s committer-date:%s", u.Login, span)); err != nil {
		return Activity{}, err
	}
	if a.Issues, err = c.searchCount(ctx, token, "/search/issues",
		fmt.Sprintf("author:%s type:issue created:%s", u.Login, span)); err != nil {
		return Activity{}, err
	}
	if a.PullRequests, err = c.searchCount(ctx, token, "/search/issues",
		fmt.Sprintf("author:%s type:pr created:%s", u.Login, span)); err != nil {
		return Activity{}, err
	}
	return a, nil
}

func (c *Client) searchCount(ctx context.Context, token, path, query string) (int64, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("per_page", "1")

	var res struct {
		TotalCount int64 `json:"total_count"`
	}
	if err := c.rest.Do(ctx, integrations.Request{Path: path, Query: q, Headers: headers(token)}, &res); err != nil {
		return 0, err
	}
	return res.TotalCount, nil
}

func perPage(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10
	}
	return limit
}
