package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/model"
)

func startAgent(t *testing.T, a *Agent) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("agent did not stop")
		}
	})
}

func testOptions() Options {
	return Options{PollInterval: 10 * time.Millisecond, HistorySize: 10}
}

func ok(context.Context, model.Task) (*model.RunResult, error) {
	return (&model.RunResult{}).Finish("test", false), nil
}

func TestDispatch_PriorityOrderStable(t *testing.T) {
	a := New(testOptions())

	var mu sync.Mutex
	var order []string
	a.Register(model.TaskEnrichment, func(_ context.Context, task model.Task) (*model.RunResult, error) {
		mu.Lock()
		order = append(order, task.Param("name"))
		mu.Unlock()
		return ok(context.Background(), task)
	})

	for _, tc := range []struct {
		name     string
		priority model.TaskPriority
	}{
		{"low", model.TaskPriorityLow},
		{"high-1", model.TaskPriorityHigh},
		{"medium", model.TaskPriorityMedium},
		{"high-2", model.TaskPriorityHigh},
	} {
		a.Enqueue(model.Task{Type: model.TaskEnrichment, Priority: tc.priority, Params: map[string]any{"name": tc.name}})
	}
	require.Equal(t, 4, a.Status().QueueDepth)

	startAgent(t, a)

	require.Eventually(t, func() bool { return len(a.History()) == 4 }, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high-1", "high-2", "medium", "low"}, order)
}

func TestDispatch_SingleFlight(t *testing.T) {
	a := New(testOptions())

	release := make(chan struct{})
	var inFlight, maxInFlight atomic.Int32
	a.Register(model.TaskCollection, func(ctx context.Context, task model.Task) (*model.RunResult, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return ok(ctx, task)
	})
	startAgent(t, a)

	for range 3 {
		a.Enqueue(model.Task{Type: model.TaskCollection})
	}

	require.Eventually(t, func() bool {
		st := a.Status()
		return st.CurrentTask == string(model.TaskCollection) && st.QueueDepth == 2
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return len(a.History()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, "idle", a.Status().CurrentTask)
}

func TestDispatch_FailuresAreContained(t *testing.T) {
	a := New(testOptions())
	a.Register(model.TaskEnrichment, func(context.Context, model.Task) (*model.RunResult, error) {
		return nil, errors.New("provider exploded")
	})
	a.Register(model.TaskCleanup, func(context.Context, model.Task) (*model.RunResult, error) {
		panic("nil map")
	})
	a.Register(model.TaskMarketAnalysis, ok)
	startAgent(t, a)

	ctx := context.Background()
	sum, err := a.Submit(ctx, model.Task{Type: model.TaskEnrichment})
	require.Error(t, err)
	assert.Equal(t, model.TaskFailed, sum.State)
	assert.Contains(t, sum.Error, "provider exploded")

	sum, err = a.Submit(ctx, model.Task{Type: model.TaskCleanup})
	require.Error(t, err)
	assert.Contains(t, sum.Error, "panic: nil map")

	sum, err = a.Submit(ctx, model.Task{Type: model.TaskOutreach})
	require.Error(t, err)
	assert.Contains(t, sum.Error, "no handler")

	sum, err = a.Submit(ctx, model.Task{Type: model.TaskMarketAnalysis, Source: model.SourceOperator})
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, sum.State)
	require.NotNil(t, sum.Result)
	assert.True(t, sum.Result.OK)

	st := a.Status()
	assert.Equal(t, "idle", st.CurrentTask)
	assert.Equal(t, 0, st.QueueDepth)
	require.Len(t, st.Recent, 4)
	assert.Equal(t, model.TaskMarketAnalysis, st.Recent[0].Type, "recent runs are newest first")
	assert.Equal(t, model.SourceOperator, st.Recent[0].Source)
}

func TestSubmit_ContextCancelled(t *testing.T) {
	a := New(testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := a.Submit(ctx, model.Task{Type: model.TaskCollection})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.TaskQueued, sum.State)
	assert.Equal(t, 1, a.Status().QueueDepth)
}

func TestEnqueue_Defaults(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	a := New(testOptions(), WithClock(func() time.Time { return now }))

	id := a.Enqueue(model.Task{Type: model.TaskCollection})
	assert.NotEmpty(t, id)

	a.mu.Lock()
	defer a.mu.Unlock()
	require.Len(t, a.queue, 1)
	assert.Equal(t, model.TaskPriorityMedium, a.queue[0].task.Priority)
	assert.True(t, now.Equal(a.queue[0].task.ScheduledTime))
}

func TestHistory_Bounded(t *testing.T) {
	opts := testOptions()
	opts.HistorySize = 3
	a := New(opts)
	a.Register(model.TaskEnrichment, ok)
	startAgent(t, a)

	for range 5 {
		_, err := a.Submit(context.Background(), model.Task{Type: model.TaskEnrichment})
		require.NoError(t, err)
	}
	assert.Len(t, a.History(), 3)
}

func TestStatus_Providers(t *testing.T) {
	a := New(testOptions(), WithProviders(func() map[string]bool {
		return map[string]bool{"search": true, "enrichment": false}
	}))

	st := a.Status()
	assert.False(t, st.Active)
	assert.Equal(t, map[string]bool{"search": true, "enrichment": false}, st.Providers)
}

func TestRun_RejectsSecondLoop(t *testing.T) {
	a := New(testOptions())
	startAgent(t, a)
	require.Eventually(t, func() bool { return a.Status().Active }, time.Second, 5*time.Millisecond)

	assert.Error(t, a.Run(context.Background()))
}
