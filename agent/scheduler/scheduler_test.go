package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/dailycrew/agent/users"
	"github.com/BaSui01/dailycrew/config"
	"github.com/BaSui01/dailycrew/internal/cache"
	"github.com/BaSui01/dailycrew/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// --- fakes ---

type fakeDispatcher struct {
	mu     sync.Mutex
	events []types.Event
	reply  *types.Reply
	err    error
}

func (f *fakeDispatcher) Handle(_ context.Context, ev types.Event) (*types.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return types.TextReply("hello " + ev.UserID), nil
}

func (f *fakeDispatcher) received() []types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Event(nil), f.events...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	results map[string]int
}

func (f *fakeRecorder) RecordSchedulerFire(kind, result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = make(map[string]int)
	}
	f.results[kind+"/"+result]++
}

func (f *fakeRecorder) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[key]
}

func testConfig() config.SchedulerConfig {
	cfg := config.DefaultSchedulerConfig()
	cfg.Tick = 30 * time.Second
	cfg.Workers = 2
	return cfg
}

func seedUsers(t *testing.T) *users.MemoryRepository {
	t.Helper()
	repo := users.NewMemoryRepository()
	ctx := context.Background()

	done := users.NewUser("done", types.Profile{})
	done.OnboardingStatus = types.OnboardingComplete
	done.OnboardingStep = types.StepComplete
	require.NoError(t, repo.Save(ctx, done))

	midway := users.NewUser("midway", types.Profile{})
	midway.OnboardingStatus = types.OnboardingInProgress
	midway.OnboardingStep = types.StepGoogleSetup
	require.NoError(t, repo.Save(ctx, midway))

	require.NoError(t, repo.Save(ctx, users.NewUser("fresh", types.Profile{})))
	return repo
}

func newScheduler(t *testing.T, deps Deps) *Scheduler {
	t.Helper()
	s, err := New(testConfig(), deps, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.workers.Close() })
	return s
}

// --- rules ---

func TestDue_WeekdayRules(t *testing.T) {
	rules := RulesFromConfig(testConfig())

	occ := Due(rules, monday, monday.Add(24*time.Hour-time.Second), time.UTC, true)
	require.Len(t, occ, 13)
	assert.Equal(t, types.EventKindDailyWelcome, occ[0].Rule.Kind)
	assert.Equal(t, monday.Add(9*time.Hour), occ[0].At)

	var checkins, activity int
	for _, o := range occ {
		switch o.Rule.Kind {
		case types.EventKindHourlyCheckin:
			checkins++
			assert.Zero(t, o.At.Minute())
		case types.EventKindActivityCheck:
			activity++
			assert.Equal(t, 30, o.At.Minute())
		}
	}
	assert.Equal(t, 8, checkins)
	assert.Equal(t, 4, activity)
}

func TestDue_Weekend(t *testing.T) {
	rules := RulesFromConfig(testConfig())
	saturday := monday.AddDate(0, 0, 5)

	assert.Empty(t, Due(rules, saturday, saturday.Add(24*time.Hour-time.Second), time.UTC, true))
	assert.Len(t, Due(rules, saturday, saturday.Add(24*time.Hour-time.Second), time.UTC, false), 13)
}

func TestDue_WindowIsHalfOpen(t *testing.T) {
	rules := RulesFromConfig(testConfig())
	nine := monday.Add(9 * time.Hour)

	assert.Len(t, Due(rules, nine.Add(-time.Second), nine, time.UTC, true), 1)
	assert.Empty(t, Due(rules, nine, nine.Add(time.Second), time.UTC, true))
	assert.Empty(t, Due(rules, nine, nine, time.UTC, true))
}

func TestDue_UserLocalTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	rules := RulesFromConfig(testConfig())

	// 09:00 EST is 14:00 UTC before daylight saving starts.
	at := monday.Add(14 * time.Hour)
	occ := Due(rules, at.Add(-time.Second), at, ny, true)
	require.Len(t, occ, 1)
	assert.Equal(t, types.EventKindDailyWelcome, occ[0].Rule.Kind)

	utc := Due(rules, at.Add(-time.Second), at, time.UTC, true)
	require.Len(t, utc, 1)
	assert.Equal(t, types.EventKindHourlyCheckin, utc[0].Rule.Kind)
}

func TestEligible(t *testing.T) {
	assert.True(t, eligible(types.EventKindDailyWelcome, types.OnboardingInProgress))
	assert.False(t, eligible(types.EventKindDailyWelcome, types.OnboardingNotStarted))
	assert.False(t, eligible(types.EventKindHourlyCheckin, types.OnboardingInProgress))
	assert.True(t, eligible(types.EventKindActivityCheck, types.OnboardingComplete))
}

// --- tick ---

func TestTick_FiresWelcomeForStartedUsers(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	var mu sync.Mutex
	var delivered []string
	rec := &fakeRecorder{}
	s := newScheduler(t, Deps{
		Users:      seedUsers(t),
		Dispatcher: dispatcher,
		Metrics:    rec,
		Outbound: OutboundFunc(func(_ context.Context, ev types.Event, reply *types.Reply) error {
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, ev.UserID)
			return nil
		}),
	})

	nine := monday.Add(9 * time.Hour)
	s.Tick(context.Background(), nine.Add(-15*time.Second))
	fired := s.Tick(context.Background(), nine.Add(15*time.Second))
	assert.Equal(t, 2, fired)

	require.Eventually(t, func() bool { return len(dispatcher.received()) == 2 }, time.Second, 5*time.Millisecond)
	for _, ev := range dispatcher.received() {
		assert.Equal(t, types.EventKindDailyWelcome, ev.Kind)
		assert.Equal(t, nine, ev.Timestamp)
		assert.Equal(t, EventID(ev.Kind, ev.UserID, nine), ev.ID)
		assert.NotEqual(t, "fresh", ev.UserID)
	}
	require.Eventually(t, func() bool { return rec.count("daily_welcome/fired") == 2 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.ElementsMatch(t, []string{"done", "midway"}, delivered)
	mu.Unlock()
}

func TestTick_CheckinOnlyForCompletedUsers(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	s := newScheduler(t, Deps{Users: seedUsers(t), Dispatcher: dispatcher})

	ten := monday.Add(10 * time.Hour)
	s.Tick(context.Background(), ten.Add(-10*time.Second))
	assert.Equal(t, 1, s.Tick(context.Background(), ten.Add(10*time.Second)))

	require.Eventually(t, func() bool { return len(dispatcher.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "done", dispatcher.received()[0].UserID)
}

func TestTick_LargeGapIsNotBackfilled(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	s := newScheduler(t, Deps{Users: seedUsers(t), Dispatcher: dispatcher})

	s.Tick(context.Background(), monday.Add(9*time.Hour+30*time.Minute))
	// 10:00 falls inside the gap but outside the clamped window.
	assert.Zero(t, s.Tick(context.Background(), monday.Add(10*time.Hour+20*time.Minute)))
	assert.Empty(t, dispatcher.received())
}

func TestTick_SilentRepliesAreNotDelivered(t *testing.T) {
	dispatcher := &fakeDispatcher{reply: &types.Reply{Silent: true}}
	rec := &fakeRecorder{}
	delivered := 0
	s := newScheduler(t, Deps{
		Users:      seedUsers(t),
		Dispatcher: dispatcher,
		Metrics:    rec,
		Outbound: OutboundFunc(func(context.Context, types.Event, *types.Reply) error {
			delivered++
			return nil
		}),
	})

	at := monday.Add(11*time.Hour + 30*time.Minute)
	s.Tick(context.Background(), at.Add(-time.Second))
	s.Tick(context.Background(), at)

	require.Eventually(t, func() bool { return rec.count("activity_check/silent") == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, delivered)
}

func TestTick_DispatchErrorsAreRecorded(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New("boom")}
	rec := &fakeRecorder{}
	s := newScheduler(t, Deps{Users: seedUsers(t), Dispatcher: dispatcher, Metrics: rec})

	ten := monday.Add(10 * time.Hour)
	s.Tick(context.Background(), ten.Add(-time.Second))
	s.Tick(context.Background(), ten)

	require.Eventually(t, func() bool { return rec.count("hourly_checkin/error") == 1 }, time.Second, 5*time.Millisecond)
}

func TestTick_RedisDeduperPreventsDoubleFiring(t *testing.T) {
	mr := miniredis.RunT(t)
	m, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "test:", DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	repo := seedUsers(t)
	dispatcher := &fakeDispatcher{}
	rec := &fakeRecorder{}
	a := newScheduler(t, Deps{Users: repo, Dispatcher: dispatcher, Deduper: NewRedisDeduper(m), Metrics: rec})
	b := newScheduler(t, Deps{Users: repo, Dispatcher: dispatcher, Deduper: NewRedisDeduper(m), Metrics: rec})

	ten := monday.Add(10 * time.Hour)
	for _, s := range []*Scheduler{a, b} {
		s.Tick(context.Background(), ten.Add(-time.Second))
	}
	fired := a.Tick(context.Background(), ten) + b.Tick(context.Background(), ten)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, rec.count("hourly_checkin/duplicate"))

	require.Eventually(t, func() bool { return len(dispatcher.received()) == 1 }, time.Second, 5*time.Millisecond)
}

// --- lifecycle ---

func TestScheduler_StartStopDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	cfg.Tick = 5 * time.Millisecond
	s, err := New(cfg, Deps{Users: users.NewMemoryRepository(), Dispatcher: &fakeDispatcher{}}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
	require.Error(t, s.Start(context.Background()))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(testConfig(), Deps{}, nil)
	require.Error(t, err)

	cfg := testConfig()
	cfg.DefaultTimezone = "Mars/Olympus"
	_, err = New(cfg, Deps{Users: users.NewMemoryRepository(), Dispatcher: &fakeDispatcher{}}, nil)
	require.Error(t, err)
}
