package youtrack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/dailycrew/integrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseCredential(t *testing.T) {
	c, err := ParseCredential("https://acme.youtrack.cloud/ perm:abc.def")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.youtrack.cloud", c.BaseURL)
	assert.Equal(t, "perm:abc.def", c.Token)

	for _, bad := range []string{"", "perm:abc", "ftp://x perm:abc", "notaurl perm:abc", "https://a b c"} {
		_, err := ParseCredential(bad)
		assert.ErrorIs(t, err, ErrMalformedCredential, bad)
	}

	assert.True(t, LooksLikeCredential("https://acme.youtrack.cloud perm:abc"))
	assert.False(t, LooksLikeCredential("https://acme.youtrack.cloud short"))
}

func TestClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer perm:good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized","error_description":"Invalid token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"login":"ada","fullName":"Ada L"}`))
	})
	mux.HandleFunc("/api/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "for: me #Unresolved", r.URL.Query().Get("query"))
		assert.Equal(t, "3", r.URL.Query().Get("$top"))
		_, _ = w.Write([]byte(`[{"idReadable":"DC-1","summary":"Ship onboarding"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(integrations.Options{Timeout: 2 * time.Second}, zap.NewNop())
	ctx := context.Background()

	u, err := c.CheckCredential(ctx, srv.URL+" perm:good")
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Login)

	_, err = c.CheckCredential(ctx, srv.URL+" perm:bad")
	assert.True(t, integrations.IsUnauthorized(err))

	issues, err := c.OpenIssues(ctx, srv.URL+" perm:good", 3)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "DC-1", issues[0].ID)
}
