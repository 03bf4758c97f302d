// Package scheduler fires named triggers on cron expressions evaluated in a
// reference timezone. One tick loop evaluates every trigger; each firing runs
// in its own goroutine and a trigger never overlaps itself.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Handler is the work behind a trigger.
type Handler func(ctx context.Context) error

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithTick sets the tick interval. Default one minute.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

type trigger struct {
	name     string
	spec     string
	schedule cron.Schedule
	handler  Handler
	running  atomic.Bool

	// guarded by Scheduler.mu
	next    time.Time
	prev    time.Time
	fired   int
	skipped int
}

type oneShot struct {
	name    string
	delay   time.Duration
	handler Handler
}

// Scheduler owns the trigger table.
type Scheduler struct {
	loc    *time.Location
	tick   time.Duration
	clock  Clock
	parser cron.Parser

	mu       sync.Mutex
	triggers []*trigger
	oneShots []oneShot

	wg sync.WaitGroup
}

// New creates a Scheduler evaluating expressions in loc.
func New(loc *time.Location, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		loc:    loc,
		tick:   time.Minute,
		clock:  realClock{},
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds a trigger. Names must be unique.
func (s *Scheduler) Register(name, spec string, h Handler) error {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return eris.Wrapf(err, "scheduler: parse %s spec %q", name, spec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.triggers {
		if t.name == name {
			return eris.Errorf("scheduler: trigger %q already registered", name)
		}
	}
	s.triggers = append(s.triggers, &trigger{
		name:     name,
		spec:     spec,
		schedule: sched,
		handler:  h,
		next:     sched.Next(s.clock.Now().In(s.loc)),
	})
	return nil
}

// RegisterOnce adds a handler that runs once, delay after Run starts.
func (s *Scheduler) RegisterOnce(name string, delay time.Duration, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oneShots = append(s.oneShots, oneShot{name: name, delay: delay, handler: h})
}

// Run ticks until ctx is cancelled, then waits for in-flight handlers.
func (s *Scheduler) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "scheduler"))

	s.mu.Lock()
	shots := s.oneShots
	s.oneShots = nil
	for _, t := range s.triggers {
		log.Info("trigger registered",
			zap.String("trigger", t.name),
			zap.String("spec", t.spec),
			zap.Time("next", t.next),
		)
	}
	s.mu.Unlock()

	for _, o := range shots {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			timer := time.NewTimer(o.delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			s.invoke(ctx, o.name, o.handler)
		}()
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx, s.clock.Now())
		}
	}
}

// Tick fires every trigger whose next fire time is at or before now.
// Missed windows are coalesced into one firing. A trigger still running
// from an earlier firing is skipped, not queued.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	local := now.In(s.loc)

	s.mu.Lock()
	var due []*trigger
	for _, t := range s.triggers {
		if local.Before(t.next) {
			continue
		}
		t.prev = local
		t.next = t.schedule.Next(local)
		if !t.running.CompareAndSwap(false, true) {
			t.skipped++
			zap.L().Warn("scheduler: trigger still running, skipping firing",
				zap.String("trigger", t.name),
				zap.Int("skipped", t.skipped),
			)
			continue
		}
		t.fired++
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer t.running.Store(false)
			s.invoke(ctx, t.name, t.handler)
		}()
	}
}

// invoke runs h, logging its error or panic. The loop is never affected.
func (s *Scheduler) invoke(ctx context.Context, name string, h Handler) {
	log := zap.L().With(zap.String("trigger", name))
	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("scheduler: trigger panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()

	log.Info("scheduler: trigger fired")
	if err := h(ctx); err != nil {
		log.Error("scheduler: trigger failed", zap.Error(err), zap.Duration("elapsed", s.clock.Now().Sub(start)))
		return
	}
	log.Info("scheduler: trigger completed", zap.Duration("elapsed", s.clock.Now().Sub(start)))
}

// Wait blocks until every in-flight handler has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// TriggerInfo is one row of Snapshot.
type TriggerInfo struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Next    time.Time `json:"next"`
	Prev    time.Time `json:"prev,omitzero"`
	Running bool      `json:"running"`
	Fired   int       `json:"fired"`
	Skipped int       `json:"skipped"`
}

// Snapshot returns the trigger table in registration order.
func (s *Scheduler) Snapshot() []TriggerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TriggerInfo, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, TriggerInfo{
			Name:    t.name,
			Spec:    t.spec,
			Next:    t.next,
			Prev:    t.prev,
			Running: t.running.Load(),
			Fired:   t.fired,
			Skipped: t.skipped,
		})
	}
	return out
}

// Location returns the reference timezone.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}
