package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/dailycrew/internal/cache"
	"github.com/BaSui01/dailycrew/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&User{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"gorm":   NewGormRepository(newTestDB(t)),
		"memory": NewMemoryRepository(),
	}
}

func TestNewUser_Defaults(t *testing.T) {
	u := NewUser("u1", types.Profile{DisplayName: "Ada"})
	assert.Equal(t, "UTC", u.Timezone)
	assert.Equal(t, types.OnboardingNotStarted, u.OnboardingStatus)
	assert.Equal(t, types.StepWelcome, u.OnboardingStep)
	for _, kind := range types.AllIntegrations() {
		assert.Equal(t, types.IntegrationNotConfigured, u.IntegrationStatus(kind))
	}
	assert.False(t, u.OnboardingComplete())
}

func TestUser_Location(t *testing.T) {
	u := NewUser("u1", types.Profile{Timezone: "Europe/Berlin"})
	assert.Equal(t, "Europe/Berlin", u.Location(nil).String())

	u.Timezone = "Mars/Olympus"
	assert.Equal(t, time.UTC, u.Location(nil))

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, ny, u.Location(ny))
}

func TestUser_MergePreferences(t *testing.T) {
	u := NewUser("u1", types.Profile{})
	u.MergePreferences(map[string]any{"tone": "brief", "lang": "en"})
	u.MergePreferences(map[string]any{"tone": "warm", "lang": nil})
	assert.Equal(t, map[string]any{"tone": "warm"}, u.Preferences)
}

func TestRepository_Contract(t *testing.T) {
	for name, repo := range repositories(t) {
		repo := repo
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.Get(ctx, "u1")
			assert.ErrorIs(t, err, ErrNotFound)

			u, created, err := repo.GetOrCreate(ctx, "u1", types.Profile{DisplayName: "Ada", Timezone: "Asia/Tokyo"})
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, "Ada", u.DisplayName)

			again, created, err := repo.GetOrCreate(ctx, "u1", types.Profile{DisplayName: "Other"})
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, "Ada", again.DisplayName)

			again.OnboardingStatus = types.OnboardingInProgress
			again.OnboardingStep = types.StepGoogleSetup
			again.SetIntegration(types.IntegrationGitHub, types.IntegrationConfigured)
			require.NoError(t, repo.Save(ctx, again))

			loaded, err := repo.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, types.StepGoogleSetup, loaded.OnboardingStep)
			assert.Equal(t, types.IntegrationConfigured, loaded.IntegrationStatus(types.IntegrationGitHub))
			assert.Equal(t, "Asia/Tokyo", loaded.Timezone)

			merged, err := repo.MergePreferences(ctx, "u1", map[string]any{"tone": "brief"})
			require.NoError(t, err)
			assert.Equal(t, "brief", merged.Preferences["tone"])

			_, err = repo.MergePreferences(ctx, "missing", map[string]any{"a": "b"})
			assert.ErrorIs(t, err, ErrNotFound)

			at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
			require.NoError(t, repo.Touch(ctx, "u1", at))
			assert.ErrorIs(t, repo.Touch(ctx, "missing", at), ErrNotFound)
			touched, err := repo.Get(ctx, "u1")
			require.NoError(t, err)
			require.NotNil(t, touched.LastActiveAt)
			assert.True(t, at.Equal(*touched.LastActiveAt))

			assert.ErrorIs(t, repo.Save(ctx, &User{}), ErrInvalidUser)
		})
	}
}

func TestRepository_SaveStateKeepsConcurrentPreferences(t *testing.T) {
	for name, repo := range repositories(t) {
		repo := repo
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			stale, _, err := repo.GetOrCreate(ctx, "u1", types.Profile{DisplayName: "Ada"})
			require.NoError(t, err)

			// 偏好在 stale 读取之后写入
			_, err = repo.MergePreferences(ctx, "u1", map[string]any{"tz_pref": "late"})
			require.NoError(t, err)

			stale.OnboardingStatus = types.OnboardingInProgress
			stale.OnboardingStep = types.StepGitHubSetup
			stale.RepromptCount = 1
			stale.SetIntegration(types.IntegrationGitHub, types.IntegrationSkipped)
			require.NoError(t, repo.SaveState(ctx, stale))

			loaded, err := repo.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "late", loaded.Preferences["tz_pref"])
			assert.Equal(t, types.StepGitHubSetup, loaded.OnboardingStep)
			assert.Equal(t, 1, loaded.RepromptCount)
			assert.Equal(t, types.IntegrationSkipped, loaded.IntegrationStatus(types.IntegrationGitHub))
			assert.Equal(t, "Ada", loaded.DisplayName)

			assert.ErrorIs(t, repo.SaveState(ctx, &User{ID: "missing"}), ErrNotFound)
			assert.ErrorIs(t, repo.SaveState(ctx, nil), ErrInvalidUser)
		})
	}
}

func TestRepository_ListPaged(t *testing.T) {
	for name, repo := range repositories(t) {
		repo := repo
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"c", "a", "e", "b", "d"} {
				_, _, err := repo.GetOrCreate(ctx, id, types.Profile{})
				require.NoError(t, err)
			}

			page, err := repo.List(ctx, ListOptions{Limit: 2})
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "a", page[0].ID)
			assert.Equal(t, "b", page[1].ID)

			page, err = repo.List(ctx, ListOptions{Offset: 4, Limit: 2})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "e", page[0].ID)

			page, err = repo.List(ctx, ListOptions{Offset: 10})
			require.NoError(t, err)
			assert.Empty(t, page)
		})
	}
}

func TestGormRepository_ConcurrentGetOrCreate(t *testing.T) {
	repo := NewGormRepository(newTestDB(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	createdCount := 0
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := repo.GetOrCreate(ctx, "same", types.Profile{})
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, createdCount)
}

func TestCachedRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	cm, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "test:", DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cm.Close() })

	repo := NewCachedRepository(NewMemoryRepository(), cm, time.Minute, zap.NewNop())
	hits := &hitCounter{}
	repo.Recorder = hits
	ctx := context.Background()

	_, created, err := repo.GetOrCreate(ctx, "u1", types.Profile{DisplayName: "Ada"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, mr.Exists("test:user:u1"))

	u, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.DisplayName)

	u.DisplayName = "Grace"
	require.NoError(t, repo.Save(ctx, u))
	assert.False(t, mr.Exists("test:user:u1"))

	u, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Grace", u.DisplayName)

	_, err = repo.MergePreferences(ctx, "u1", map[string]any{"tone": "brief"})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:user:u1"))

	_, err = repo.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, hits.hits)
	assert.Equal(t, 3, hits.misses)
}

type hitCounter struct {
	hits, misses int
}

func (h *hitCounter) RecordCacheHit(string)  { h.hits++ }
func (h *hitCounter) RecordCacheMiss(string) { h.misses++ }
