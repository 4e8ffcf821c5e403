package activity

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/dailycrew/agent/credential"
	"github.com/BaSui01/dailycrew/integrations/github"
	"github.com/BaSui01/dailycrew/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGitHub struct {
	tokens []string
	counts map[time.Time]github.Activity
}

func (f *fakeGitHub) Activity(_ context.Context, token string, from, _ time.Time) (github.Activity, error) {
	f.tokens = append(f.tokens, token)
	return f.counts[from], nil
}

func TestCheckSource_GitHubDecline(t *testing.T) {
	now := time.Date(2026, 3, 3, 13, 30, 0, 0, time.UTC)
	start, mid, _ := Windows(now, 3*time.Hour)
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC), mid)

	gh := &fakeGitHub{counts: map[time.Time]github.Activity{
		start: {Commits: 3, Issues: 1, PullRequests: 1},
		mid:   {Commits: 1},
	}}
	store := credential.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "u1", types.IntegrationGitHub, "ghp_token"))

	src := NewGitHubSource(gh)
	d, err := CheckSource(context.Background(), src, credential.NewHandle(store, "u1", src.Requires()), now, 3*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.Previous)
	assert.Equal(t, int64(1), d.Current)
	assert.True(t, d.Declined)
	assert.Equal(t, SourceGitHub, d.Source)
	assert.Equal(t, []string{"ghp_token", "ghp_token"}, gh.tokens)
}

func TestCheckSource_MissingCredential(t *testing.T) {
	src := NewGitHubSource(&fakeGitHub{})
	_, err := CheckSource(context.Background(), src, credential.NewHandle(credential.NewMemoryStore(), "u1", src.Requires()), time.Now(), time.Hour)
	require.ErrorIs(t, err, credential.ErrNotFound)
}
