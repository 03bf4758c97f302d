package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/model"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestRegister_InvalidSpec(t *testing.T) {
	s := New(time.UTC)

	assert.Error(t, s.Register("bad", "every day at nine", func(context.Context) error { return nil }))
	assert.Error(t, s.Register("seconds", "0 0 9 * * *", func(context.Context) error { return nil }), "six fields are rejected")
	require.NoError(t, s.Register("monthly", "@monthly", func(context.Context) error { return nil }))
	assert.Error(t, s.Register("monthly", "@daily", func(context.Context) error { return nil }), "duplicate name")
}

func TestTick_FiresInReferenceTimezone(t *testing.T) {
	loc := newYork(t)
	clock := &fixedClock{now: time.Date(2026, 6, 15, 8, 0, 0, 0, loc)}
	s := New(loc, WithClock(clock))

	var fired atomic.Int32
	require.NoError(t, s.Register(TriggerDailyCollection, "0 9 * * *", func(context.Context) error {
		fired.Add(1)
		return nil
	}))
	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, time.Date(2026, 6, 15, 9, 0, 0, 0, loc).Equal(snap[0].Next))

	ctx := context.Background()
	s.Tick(ctx, time.Date(2026, 6, 15, 12, 59, 0, 0, time.UTC))
	s.Wait()
	assert.Equal(t, int32(0), fired.Load())

	// 13:00 UTC is 09:00 EDT.
	s.Tick(ctx, time.Date(2026, 6, 15, 13, 0, 0, 0, time.UTC))
	s.Wait()
	assert.Equal(t, int32(1), fired.Load())

	s.Tick(ctx, time.Date(2026, 6, 15, 13, 1, 0, 0, time.UTC))
	s.Wait()
	assert.Equal(t, int32(1), fired.Load(), "fires once per window")

	snap = s.Snapshot()
	assert.Equal(t, 1, snap[0].Fired)
	assert.True(t, time.Date(2026, 6, 16, 9, 0, 0, 0, loc).Equal(snap[0].Next))
}

func TestTick_SkipsWhileRunning(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)}
	s := New(time.UTC, WithClock(clock))

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var slowRuns, fastRuns atomic.Int32
	require.NoError(t, s.Register("slow", "0 * * * *", func(context.Context) error {
		slowRuns.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}))
	require.NoError(t, s.Register("fast", "0 * * * *", func(context.Context) error {
		fastRuns.Add(1)
		return nil
	}))

	ctx := context.Background()
	s.Tick(ctx, time.Date(2026, 6, 15, 1, 0, 0, 0, time.UTC))
	<-started
	require.Eventually(t, func() bool {
		return fastRuns.Load() == 1 && !s.Snapshot()[1].Running
	}, time.Second, time.Millisecond)
	s.Tick(ctx, time.Date(2026, 6, 15, 2, 0, 0, 0, time.UTC))

	snap := s.Snapshot()
	assert.True(t, snap[0].Running)
	assert.Equal(t, 1, snap[0].Skipped)

	close(release)
	s.Wait()
	assert.Equal(t, int32(1), slowRuns.Load())
	assert.Equal(t, int32(2), fastRuns.Load(), "other triggers are unaffected")
	assert.False(t, s.Snapshot()[0].Running)

	s.Tick(ctx, time.Date(2026, 6, 15, 3, 0, 0, 0, time.UTC))
	s.Wait()
	assert.Equal(t, int32(2), slowRuns.Load(), "guard is released after completion")
}

func TestTick_HandlerFailuresAreContained(t *testing.T) {
	s := New(time.UTC, WithClock(&fixedClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}))
	var ran atomic.Int32
	require.NoError(t, s.Register("panics", "@hourly", func(context.Context) error { panic("boom") }))
	require.NoError(t, s.Register("errors", "@hourly", func(context.Context) error { return errors.New("nope") }))
	require.NoError(t, s.Register("works", "@hourly", func(context.Context) error {
		ran.Add(1)
		return nil
	}))

	for h := 1; h <= 2; h++ {
		s.Tick(context.Background(), time.Date(2026, 1, 1, h, 0, 0, 0, time.UTC))
		s.Wait()
	}

	assert.Equal(t, int32(2), ran.Load())
	for _, info := range s.Snapshot() {
		assert.Equal(t, 2, info.Fired, info.Name)
		assert.False(t, info.Running, info.Name)
	}
}

func TestRun_StartupOneShot(t *testing.T) {
	s := New(time.UTC, WithTick(time.Hour))
	q := &recordingEnqueuer{}
	s.RegisterOnce(TriggerStartup, 10*time.Millisecond, StartupCollection(q))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return q.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	task := q.tasks[0]
	assert.Equal(t, model.TaskCollection, task.Type)
	assert.Equal(t, model.TaskPriorityLow, task.Priority)
	assert.Equal(t, model.SourceStartup, task.Source)
}

func TestRun_CancelBeforeOneShot(t *testing.T) {
	s := New(time.UTC)
	q := &recordingEnqueuer{}
	s.RegisterOnce(TriggerStartup, time.Hour, StartupCollection(q))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 0, q.count())
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []model.Task
}

func (r *recordingEnqueuer) Enqueue(task model.Task) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return "id"
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

type mockSubmitter struct{ mock.Mock }

func (m *mockSubmitter) Submit(ctx context.Context, task model.Task) (model.RunSummary, error) {
	args := m.Called(ctx, task)
	return args.Get(0).(model.RunSummary), args.Error(1)
}

func TestRegisterDefaults(t *testing.T) {
	loc := newYork(t)
	// Monday 08:30 in the reference timezone.
	s := New(loc, WithClock(&fixedClock{now: time.Date(2026, 6, 15, 8, 30, 0, 0, loc)}))
	sub := &mockSubmitter{}

	cfg := config.TriggersConfig{
		DailyCollection: "0 9 * * *",
		WeeklySweep:     "0 6 * * 1",
		Enrichment:      "0 */4 * * *",
		DailyCleanup:    "0 2 * * *",
		PriorityRefresh: "0 3 1 * *",
	}
	require.NoError(t, RegisterDefaults(s, sub, cfg))

	names := make([]string, 0, 5)
	for _, info := range s.Snapshot() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{
		TriggerDailyCollection, TriggerWeeklySweep, TriggerEnrichment, TriggerDailyCleanup, TriggerPriorityRefresh,
	}, names)

	sub.On("Submit", mock.Anything, mock.MatchedBy(func(task model.Task) bool {
		return task.Type == model.TaskCollection && task.Param("mode") == "daily" &&
			task.Priority == model.TaskPriorityHigh && task.Source == model.SourceScheduler
	})).Return(model.RunSummary{State: model.TaskCompleted}, nil).Once()

	// At 09:00 only the daily collection is due.
	s.Tick(context.Background(), time.Date(2026, 6, 15, 9, 0, 0, 0, loc))
	s.Wait()
	sub.AssertExpectations(t)
	sub.AssertNumberOfCalls(t, "Submit", 1)
}

func TestRegisterDefaults_BadSpec(t *testing.T) {
	s := New(time.UTC)
	err := RegisterDefaults(s, &mockSubmitter{}, config.TriggersConfig{DailyCollection: "nope"})
	assert.Error(t, err)
}
