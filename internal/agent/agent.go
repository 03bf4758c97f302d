// Package agent owns the task queue and the single dispatch slot. Every
// mutating pipeline runs through it, one task at a time, highest priority
// first.
package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
)

// Handler runs one task. Pipelines expose methods with this shape.
type Handler func(ctx context.Context, task model.Task) (*model.RunResult, error)

// ErrNoHandler is returned for task types nothing has registered for.
var ErrNoHandler = eris.New("agent: no handler registered for task type")

// Options tunes the dispatcher.
type Options struct {
	// PollInterval is how often the loop looks at the queue when idle.
	PollInterval time.Duration
	// SelfCheckInterval is how often the soft schedules look at the clock.
	SelfCheckInterval time.Duration
	// SoftSchedules enables the built-in daily collection and calling tasks.
	SoftSchedules  bool
	CollectionHour int
	CallingHour    int
	// Location is the reference timezone for soft schedules.
	Location *time.Location
	// HistorySize bounds the run history kept for Status.
	HistorySize int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.SelfCheckInterval <= 0 {
		o.SelfCheckInterval = time.Hour
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 50
	}
	return o
}

// Option configures an Agent.
type Option func(*Agent)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// WithProviders sets the source of provider availability flags for Status.
func WithProviders(fn func() map[string]bool) Option {
	return func(a *Agent) { a.providers = fn }
}

type entry struct {
	task model.Task
	done chan model.RunSummary
}

// Agent is the task queue and dispatcher.
type Agent struct {
	opts      Options
	handlers  map[model.TaskType]Handler
	providers func() map[string]bool
	now       func() time.Time

	mu           sync.Mutex
	queue        []*entry
	current      *model.Task
	lastActivity time.Time
	history      []model.RunSummary
	softRuns     map[string]string

	poke    chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates an Agent.
func New(opts Options, options ...Option) *Agent {
	a := &Agent{
		opts:     opts.withDefaults(),
		handlers: make(map[model.TaskType]Handler),
		now:      time.Now,
		softRuns: make(map[string]string),
		poke:     make(chan struct{}, 1),
	}
	for _, o := range options {
		o(a)
	}
	return a
}

// Register binds a handler to a task type, replacing any previous one.
// Register before Run.
func (a *Agent) Register(t model.TaskType, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[t] = h
}

// Enqueue appends a task and returns its ID. The queue is unbounded and
// in-memory only; tasks do not survive a restart.
func (a *Agent) Enqueue(task model.Task) string {
	return a.enqueue(task, nil)
}

// Submit enqueues a task and waits for it to finish. A failed task returns
// its summary together with an error. If ctx ends first the task stays
// queued and ctx.Err() is returned.
func (a *Agent) Submit(ctx context.Context, task model.Task) (model.RunSummary, error) {
	done := make(chan model.RunSummary, 1)
	id := a.enqueue(task, done)
	select {
	case <-ctx.Done():
		return model.RunSummary{TaskID: id, Type: task.Type, State: model.TaskQueued}, ctx.Err()
	case sum := <-done:
		if sum.State == model.TaskFailed {
			return sum, eris.Errorf("agent: task %s (%s) failed: %s", sum.TaskID, sum.Type, sum.Error)
		}
		return sum, nil
	}
}

func (a *Agent) enqueue(task model.Task, done chan model.RunSummary) string {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Priority == "" {
		task.Priority = model.TaskPriorityMedium
	}
	if task.ScheduledTime.IsZero() {
		task.ScheduledTime = a.now().UTC()
	}

	a.mu.Lock()
	a.queue = append(a.queue, &entry{task: task, done: done})
	depth := len(a.queue)
	a.mu.Unlock()

	zap.L().Info("agent: task queued",
		zap.String("task_id", task.ID),
		zap.String("task_type", string(task.Type)),
		zap.String("priority", string(task.Priority)),
		zap.String("source", task.Source),
		zap.Int("queue_depth", depth),
	)
	a.Poke()
	return task.ID
}

// Poke wakes the dispatch loop early. It never blocks.
func (a *Agent) Poke() {
	select {
	case a.poke <- struct{}{}:
	default:
	}
}

// Run drives the dispatch loop and the soft schedules until ctx is
// cancelled, then waits for the in-flight task to return.
func (a *Agent) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return eris.New("agent: already running")
	}
	defer a.running.Store(false)

	log := zap.L().With(zap.String("component", "agent"))
	log.Info("agent started",
		zap.Duration("poll_interval", a.opts.PollInterval),
		zap.Bool("soft_schedules", a.opts.SoftSchedules),
	)

	if a.opts.SoftSchedules {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.runSoftSchedules(ctx)
		}()
	}

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	a.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			a.wg.Wait()
			log.Info("agent stopped")
			return nil
		case <-ticker.C:
		case <-a.poke:
		}
		a.dispatch(ctx)
	}
}

// dispatch starts the highest-priority queued task if the slot is free.
// Equal priorities keep their enqueue order.
func (a *Agent) dispatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	a.mu.Lock()
	if a.current != nil || len(a.queue) == 0 {
		a.mu.Unlock()
		return
	}
	sort.SliceStable(a.queue, func(i, j int) bool {
		return a.queue[i].task.Priority.Rank() > a.queue[j].task.Priority.Rank()
	})
	e := a.queue[0]
	a.queue[0] = nil
	a.queue = a.queue[1:]
	task := e.task
	a.current = &task
	handler := a.handlers[task.Type]
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sum := a.execute(ctx, task, handler)

		a.mu.Lock()
		a.current = nil
		a.lastActivity = sum.StartedAt.Add(sum.Duration)
		a.history = append(a.history, sum)
		if over := len(a.history) - a.opts.HistorySize; over > 0 {
			a.history = append(a.history[:0:0], a.history[over:]...)
		}
		a.mu.Unlock()

		if e.done != nil {
			e.done <- sum
		}
		a.Poke()
	}()
}

// execute runs the handler, converting errors and panics into a failed
// summary so one bad task never takes the dispatcher down.
func (a *Agent) execute(ctx context.Context, task model.Task, handler Handler) (sum model.RunSummary) {
	log := zap.L().With(
		zap.String("task_id", task.ID),
		zap.String("task_type", string(task.Type)),
		zap.Any("params", task.Params),
	)
	sum = model.RunSummary{
		TaskID:     task.ID,
		Type:       task.Type,
		Priority:   task.Priority,
		Source:     task.Source,
		Params:     task.Params,
		State:      model.TaskRunning,
		EnqueuedAt: task.ScheduledTime,
		StartedAt:  a.now().UTC(),
	}
	log.Info("agent: task started")

	defer func() {
		sum.Duration = a.now().UTC().Sub(sum.StartedAt)
		if r := recover(); r != nil {
			sum.State = model.TaskFailed
			sum.Error = fmt.Sprintf("panic: %v", r)
			log.Error("agent: task panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			return
		}
		if sum.State == model.TaskFailed {
			log.Error("agent: task failed", zap.String("error", sum.Error), zap.Duration("duration", sum.Duration))
			return
		}
		log.Info("agent: task completed", zap.Duration("duration", sum.Duration), zap.String("summary", summaryOf(sum.Result)))
	}()

	if handler == nil {
		sum.State = model.TaskFailed
		sum.Error = eris.Wrapf(ErrNoHandler, "agent: %s", task.Type).Error()
		return sum
	}

	res, err := handler(ctx, task)
	sum.Result = res
	if err != nil {
		sum.State = model.TaskFailed
		sum.Error = err.Error()
		return sum
	}
	sum.State = model.TaskCompleted
	return sum
}

func summaryOf(r *model.RunResult) string {
	if r == nil {
		return ""
	}
	return r.Summary
}

// Status is a point-in-time view of the dispatcher.
type Status struct {
	Active       bool               `json:"active"`
	CurrentTask  string             `json:"current_task"`
	QueueDepth   int                `json:"queue_depth"`
	LastActivity time.Time          `json:"last_activity"`
	Providers    map[string]bool    `json:"providers"`
	Recent       []model.RunSummary `json:"recent"`
}

// Status reports the dispatcher state. Recent runs are newest first.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{
		Active:       a.running.Load(),
		CurrentTask:  "idle",
		QueueDepth:   len(a.queue),
		LastActivity: a.lastActivity,
		Providers:    map[string]bool{},
		Recent:       make([]model.RunSummary, 0, len(a.history)),
	}
	if a.current != nil {
		st.CurrentTask = string(a.current.Type)
	}
	if a.providers != nil {
		st.Providers = a.providers()
	}
	for i := len(a.history) - 1; i >= 0; i-- {
		st.Recent = append(st.Recent, a.history[i])
	}
	return st
}

// History returns the retained run summaries, oldest first.
func (a *Agent) History() []model.RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.RunSummary(nil), a.history...)
}
