package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/dailycrew/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status       int
		code         types.ErrorCode
		retryable    bool
		unauthorized bool
	}{
		{http.StatusUnauthorized, types.ErrCredentialInvalid, false, true},
		{http.StatusForbidden, types.ErrCredentialInvalid, false, true},
		{http.StatusTooManyRequests, types.ErrRateLimited, true, false},
		{http.StatusNotFound, types.ErrNotFound, false, false},
		{http.StatusBadRequest, types.ErrUpstreamError, false, false},
		{http.StatusBadGateway, types.ErrUpstreamError, true, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := MapHTTPError(tt.status, "msg", "test")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.unauthorized, IsUnauthorized(err))
			assert.Equal(t, tt.status, err.HTTPStatus)
		})
	}
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "Bad credentials", ReadErrorMessage(strings.NewReader(`{"message":"Bad credentials"}`)))
	assert.Equal(t, "nested", ReadErrorMessage(strings.NewReader(`{"error":{"message":"nested"}}`)))
	assert.Equal(t, "invalid_grant", ReadErrorMessage(strings.NewReader(`{"error":"invalid_grant"}`)))
	assert.Equal(t, "plain text", ReadErrorMessage(strings.NewReader("plain text")))
}

func TestREST_DoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	r := NewREST("test", Options{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 2}, zap.NewNop())
	err := r.Do(context.Background(), Request{Path: "/x"}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestREST_DoSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v", r.URL.Query().Get("k"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	r := NewREST("test", Options{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())
	var out struct {
		OK bool `json:"ok"`
	}
	err := r.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/x",
		Query:  map[string][]string{"k": {"v"}},
		Body:   map[string]string{"a": "b"},
	}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestREST_DoRetriesOnlyIdempotentRequests(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		calls int32
	}{
		{"get retried", Request{Path: "/x"}, 2},
		{"post sent once", Request{Method: http.MethodPost, Path: "/x", Body: map[string]string{"a": "b"}}, 1},
		{"idempotent post retried", Request{Method: http.MethodPost, Path: "/x", Idempotent: true}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				_, _ = w.Write([]byte(`{}`))
			}))
			t.Cleanup(srv.Close)

			r := NewREST("test", Options{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 2}, zap.NewNop())
			err := r.Do(context.Background(), tt.req, nil)
			if tt.calls == 1 {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.calls, calls.Load())
		})
	}
}
