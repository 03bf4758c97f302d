package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
)

// softSchedule enqueues a task at most once per calendar day, on the first
// self-check that falls inside the target hour.
type softSchedule struct {
	name string
	hour int
	task func() model.Task
}

func (a *Agent) softSchedules() []softSchedule {
	return []softSchedule{
		{
			name: "daily-collection",
			hour: a.opts.CollectionHour,
			task: func() model.Task {
				return model.Task{
					Type:     model.TaskCollection,
					Priority: model.TaskPriorityMedium,
					Params:   map[string]any{"mode": "daily"},
					Source:   model.SourceSelfSchedule,
				}
			},
		},
		{
			name: "calling-campaign",
			hour: a.opts.CallingHour,
			task: func() model.Task {
				return model.Task{
					Type:     model.TaskOutboundCalling,
					Priority: model.TaskPriorityMedium,
					Source:   model.SourceSelfSchedule,
				}
			},
		},
	}
}

// runSoftSchedules runs each soft schedule in its own goroutine.
func (a *Agent) runSoftSchedules(ctx context.Context) {
	done := make(chan struct{})
	schedules := a.softSchedules()
	for _, s := range schedules {
		go func() {
			defer func() { done <- struct{}{} }()
			ticker := time.NewTicker(a.opts.SelfCheckInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.checkSoft(s, a.now())
				}
			}
		}()
	}
	for range schedules {
		<-done
	}
}

// checkSoft enqueues s if now is inside its hour and it has not run today.
// It reports whether a task was enqueued.
func (a *Agent) checkSoft(s softSchedule, now time.Time) bool {
	local := now.In(a.opts.Location)
	if local.Hour() != s.hour {
		return false
	}
	day := local.Format(time.DateOnly)

	a.mu.Lock()
	if a.softRuns[s.name] == day {
		a.mu.Unlock()
		return false
	}
	a.softRuns[s.name] = day
	a.mu.Unlock()

	zap.L().Info("agent: soft schedule firing", zap.String("schedule", s.name), zap.String("day", day))
	a.Enqueue(s.task())
	return true
}
