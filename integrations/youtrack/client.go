// Package youtrack is a thin YouTrack REST client for credential checks and
// the analyst's open-issue lookups.
package youtrack

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/BaSui01/dailycrew/integrations"
	"go.uber.org/zap"
)

// ErrMalformedCredential is returned when the payload is not "url token".
var ErrMalformedCredential = errors.New("youtrack credential must be: <instance url> <permanent token>")

// Credential is an instance URL plus a permanent token.
type Credential struct {
	BaseURL string
	Token   string
}

// ParseCredential splits "url token".
func ParseCredential(payload string) (Credential, error) {
	parts := strings.Fields(payload)
	if len(parts) != 2 {
		return Credential{}, ErrMalformedCredential
	}
	u, err := url.Parse(parts[0])
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return Credential{}, ErrMalformedCredential
	}
	return Credential{BaseURL: strings.TrimRight(parts[0], "/"), Token: parts[1]}, nil
}

// LooksLikeCredential reports whether text has the payload shape.
func LooksLikeCredential(text string) bool {
	c, err := ParseCredential(text)
	if err != nil {
		return false
	}
	return strings.HasPrefix(c.Token, "perm:") || len(c.Token) >= 20
}

// User is the token owner.
type User struct {
	Login    string `json:"login"`
	FullName string `json:"fullName"`
}

// Issue is an issue summary.
type Issue struct {
	ID      string `json:"idReadable"`
	Summary string `json:"summary"`
}

// Client talks to any YouTrack instance; the base URL comes from the credential.
type Client struct {
	rest *integrations.REST
}

// New creates a client.
func New(opts integrations.Options, logger *zap.Logger) *Client {
	return &Client{rest: integrations.NewREST("youtrack", opts, logger)}
}

func headers(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// CheckCredential validates the payload with GET /api/users/me.
func (c *Client) CheckCredential(ctx context.Context, payload string) (*User, error) {
	cred, err := ParseCredential(payload)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("fields", "login,fullName")

	var u User
	req := integrations.Request{URL: cred.BaseURL + "/api/users/me", Query: q, Headers: headers(cred.Token)}
	if err := c.rest.Do(ctx, req, &u); err != nil {
		return nil, err
	}
	if u.Login == "" {
		return nil, fmt.Errorf("youtrack: /api/users/me returned no login")
	}
	return &u, nil
}

// OpenIssues lists unresolved issues assigned to the token owner.
func (c *Client) OpenIssues(ctx context.Context, payload string, limit int) ([]Issue, error) {
	cred, err := ParseCredential(payload)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	q := url.Values{}
	q.Set("query", "for: me #Unresolved")
	q.Set("fields", "idReadable,summary")
	q.Set("$top", fmt.Sprint(limit))

	var issues []Issue
	req := integrations.Request{URL: cred.BaseURL + "/api/issues", Query: q, Headers: headers(cred.Token)}
	if err := c.rest.Do(ctx, req, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}
