// Package google is a thin client for the Google OAuth token endpoint,
// Calendar and Gmail, used for credential checks, daily plans and drafts.
package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/dailycrew/integrations"
	"go.uber.org/zap"
)

// Endpoints are the Google API roots.
type Endpoints struct {
	TokenURL    string
	CalendarURL string
	GmailURL    string
}

// DefaultEndpoints returns the public Google endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		TokenURL:    "https://oauth2.googleapis.com/token",
		CalendarURL: "https://www.googleapis.com/calendar/v3",
		GmailURL:    "https://gmail.googleapis.com/gmail/v1",
	}
}

// ErrMalformedCredential is returned when the payload is not
// "client_id client_secret refresh_token".
var ErrMalformedCredential = errors.New("google credential must be: client_id client_secret refresh_token")

// Credential is the parsed OAuth client and refresh token.
type Credential struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// ParseCredential splits a whitespace separated payload.
func ParseCredential(payload string) (Credential, error) {
	parts := strings.Fields(payload)
	if len(parts) != 3 {
		return Credential{}, ErrMalformedCredential
	}
	if !strings.HasSuffix(parts[0], ".apps.googleusercontent.com") && len(parts[0]) < 8 {
		return Credential{}, ErrMalformedCredential
	}
	return Credential{ClientID: parts[0], ClientSecret: parts[1], RefreshToken: parts[2]}, nil
}

// LooksLikeCredential reports whether text has the payload shape.
func LooksLikeCredential(text string) bool {
	c, err := ParseCredential(text)
	if err != nil {
		return false
	}
	return strings.HasSuffix(c.ClientID, ".apps.googleusercontent.com") || strings.HasPrefix(c.RefreshToken, "1//")
}

// Event is a calendar event summary.
type Event struct {
	ID      string    `json:"id"`
	Summary string    `json:"summary"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	AllDay  bool      `json:"all_day"`
}

// Client talks to Google APIs.
type Client struct {
	endpoints Endpoints
	rest      *integrations.REST
}

// New creates a client.
func New(endpoints Endpoints, opts integrations.Options, logger *zap.Logger) *Client {
	def := DefaultEndpoints()
	if endpoints.TokenURL == "" {
		endpoints.TokenURL = def.TokenURL
	}
	if endpoints.CalendarURL == "" {
		endpoints.CalendarURL = def.CalendarURL
	}
	if endpoints.GmailURL == "" {
		endpoints.GmailURL = def.GmailURL
	}
	endpoints.CalendarURL = strings.TrimRight(endpoints.CalendarURL, "/")
	endpoints.GmailURL = strings.TrimRight(endpoints.GmailURL, "/")
	return &Client{endpoints: endpoints, rest: integrations.NewREST("google", opts, logger)}
}

// AccessToken exchanges the refresh token for an access token.
func (c *Client) AccessToken(ctx context.Context, payload string) (string, error) {
	cred, err := ParseCredential(payload)
	if err != nil {
		return "", err
	}
	form := url.Values{}
	form.Set("client_id", cred.ClientID)
	form.Set("client_secret", cred.ClientSecret)
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("grant_type", "refresh_token")

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	req := integrations.Request{Method: http.MethodPost, URL: c.endpoints.TokenURL, Form: form, Idempotent: true}
	if err := c.rest.Do(ctx, req, &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("google: token endpoint returned no access token")
	}
	return tok.AccessToken, nil
}

// CheckCredential validates the payload with a refresh-token exchange.
func (c *Client) CheckCredential(ctx context.Context, payload string) error {
	_, err := c.AccessToken(ctx, payload)
	return err
}

type apiEvent struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Start   struct {
		DateTime time.Time `json:"dateTime"`
		Date     string    `json:"date"`
	} `json:"start"`
	End struct {
		DateTime time.Time `json:"dateTime"`
		Date     string    `json:"date"`
	} `json:"end"`
}

// Events lists primary-calendar events on the given day in loc.
func (c *Client) Events(ctx context.Context, payload string, day time.Time, loc *time.Location) ([]Event, error) {
	if loc == nil {
		loc = time.UTC
	}
	token, err := c.AccessToken(ctx, payload)
	if err != nil {
		return nil, err
	}
	y, m, d := day.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)

	q := url.Values{}
	q.Set("timeMin", start.Format(time.RFC3339))
	q.Set("timeMax", start.Add(24*time.Hour).Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	var res struct {
		Items []apiEvent `json:"items"`
	}
	req := integrations.Request{
		URL:     c.endpoints.CalendarURL + "/calendars/primary/events",
		Query:   q,
		Headers: map[string]string{"Authorization": "Bearer " + token},
	}
	if err := c.rest.Do(ctx, req, &res); err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(res.Items))
	for _, it := range res.Items {
		ev := Event{ID: it.ID, Summary: it.Summary, Start: it.Start.DateTime, End: it.End.DateTime}
		if it.Start.DateTime.IsZero() && it.Start.Date != "" {
			ev.AllDay = true
			if t, err := time.ParseInLocation("2006-01-02", it.Start.Date, loc); err == nil {
				ev.Start = t
				ev.End = t.Add(24 * time.Hour)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// CreateDraft creates a Gmail draft and returns its id.
func (c *Client) CreateDraft(ctx context.Context, payload, to, subject, body string) (string, error) {
	token, err := c.AccessToken(ctx, payload)
	if err != nil {
		return "", err
	}
	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body)

	var res struct {
		ID string `json:"id"`
	}
	req := integrations.Request{
		Method:  http.MethodPost,
		URL:     c.endpoints.GmailURL + "/users/me/drafts",
		Headers: map[string]string{"Authorization": "Bearer " + token},
		Body: map[string]any{
			"message": map[string]string{"raw": base64.RawURLEncoding.EncodeToString([]byte(raw))},
		},
	}
	if err := c.rest.Do(ctx, req, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}
