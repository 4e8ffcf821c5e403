package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/dailycrew/integrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const payload = "123456789.apps.googleusercontent.com s3cret 1//refresh"

func newTestClient(t *testing.T) (*Client, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("refresh_token") != "1//refresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
			return
		}
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		_, _ = w.Write([]byte(`{"access_token":"ya29.access"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(Endpoints{
		TokenURL:    srv.URL + "/token",
		CalendarURL: srv.URL + "/calendar/v3",
		GmailURL:    srv.URL + "/gmail/v1",
	}, integrations.Options{Timeout: 2 * time.Second}, zap.NewNop())
	return c, mux
}

func TestParseCredential(t *testing.T) {
	c, err := ParseCredential(payload)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", c.ClientSecret)

	_, err = ParseCredential("only two")
	assert.ErrorIs(t, err, ErrMalformedCredential)

	assert.True(t, LooksLikeCredential(payload))
	assert.False(t, LooksLikeCredential("plan my day"))
	assert.False(t, LooksLikeCredential("send the email"))
}

func TestCheckCredential(t *testing.T) {
	c, _ := newTestClient(t)

	require.NoError(t, c.CheckCredential(context.Background(), payload))

	err := c.CheckCredential(context.Background(), "123456789.apps.googleusercontent.com s3cret 1//revoked")
	require.Error(t, err)
	assert.True(t, integrations.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "expired or revoked")

	assert.ErrorIs(t, c.CheckCredential(context.Background(), "nope"), ErrMalformedCredential)
}

func TestEvents(t *testing.T) {
	c, mux := newTestClient(t)
	mux.HandleFunc("/calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29.access", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		_, _ = w.Write([]byte(`{"items":[
			{"id":"a","summary":"Standup","start":{"dateTime":"2026-03-02T09:30:00Z"},"end":{"dateTime":"2026-03-02T09:45:00Z"}},
			{"id":"b","summary":"Offsite","start":{"date":"2026-03-02"},"end":{"date":"2026-03-03"}}
		]}`))
	})

	events, err := c.Events(context.Background(), payload, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Standup", events[0].Summary)
	assert.Equal(t, 9, events[0].Start.Hour())
	assert.True(t, events[1].AllDay)
}

func TestCreateDraft(t *testing.T) {
	c, mux := newTestClient(t)
	mux.HandleFunc("/gmail/v1/users/me/drafts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Message struct {
				Raw string `json:"raw"`
			} `json:"message"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw, err := base64.RawURLEncoding.DecodeString(body.Message.Raw)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "To: ada@example.com")
		assert.Contains(t, string(raw), "Subject: Sync")
		_, _ = w.Write([]byte(`{"id":"r-123"}`))
	})

	id, err := c.CreateDraft(context.Background(), payload, "ada@example.com", "Sync", "Can we meet?")
	require.NoError(t, err)
	assert.Equal(t, "r-123", id)
}

func TestCreateDraft_NotResentAfterUpstreamError(t *testing.T) {
	var posts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"ya29.access"}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/drafts", func(w http.ResponseWriter, r *http.Request) {
		if posts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"r-dup"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(Endpoints{
		TokenURL: srv.URL + "/token",
		GmailURL: srv.URL + "/gmail/v1",
	}, integrations.Options{Timeout: 2 * time.Second, MaxRetries: 2}, zap.NewNop())

	_, err := c.CreateDraft(context.Background(), payload, "ada@example.com", "Sync", "Can we meet?")
	require.Error(t, err)
	assert.Equal(t, int32(1), posts.Load())
}
