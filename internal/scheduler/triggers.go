package scheduler

import (
	"context"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/model"
)

// Trigger names.
const (
	TriggerDailyCollection = "daily-collection"
	TriggerWeeklySweep     = "weekly-sweep"
	TriggerEnrichment      = "enrichment"
	TriggerDailyCleanup    = "daily-cleanup"
	TriggerPriorityRefresh = "monthly-priority-refresh"
	TriggerStartup         = "startup-collection"
)

// Submitter runs a task through the dispatcher and waits for it.
type Submitter interface {
	Submit(ctx context.Context, task model.Task) (model.RunSummary, error)
}

// Enqueuer adds a task to the dispatcher without waiting.
type Enqueuer interface {
	Enqueue(task model.Task) string
}

// SubmitTask returns a handler that submits task and waits for its outcome,
// so the trigger's running guard covers the whole pipeline run.
func SubmitTask(sub Submitter, task model.Task) Handler {
	return func(ctx context.Context) error {
		t := task
		t.Source = model.SourceScheduler
		_, err := sub.Submit(ctx, t)
		return err
	}
}

// RegisterDefaults wires the built-in trigger table.
func RegisterDefaults(s *Scheduler, sub Submitter, cfg config.TriggersConfig) error {
	table := []struct {
		name string
		spec string
		task model.Task
	}{
		{TriggerDailyCollection, cfg.DailyCollection, model.Task{
			Type: model.TaskCollection, Priority: model.TaskPriorityHigh, Params: map[string]any{"mode": "daily"},
		}},
		{TriggerWeeklySweep, cfg.WeeklySweep, model.Task{
			Type: model.TaskCollection, Priority: model.TaskPriorityMedium, Params: map[string]any{"mode": "weekly"},
		}},
		{TriggerEnrichment, cfg.Enrichment, model.Task{
			Type: model.TaskEnrichment, Priority: model.TaskPriorityMedium,
		}},
		{TriggerDailyCleanup, cfg.DailyCleanup, model.Task{
			Type: model.TaskCleanup, Priority: model.TaskPriorityLow,
		}},
		{TriggerPriorityRefresh, cfg.PriorityRefresh, model.Task{
			Type: model.TaskPriorityRefresh, Priority: model.TaskPriorityLow,
		}},
	}
	for _, row := range table {
		if err := s.Register(row.name, row.spec, SubmitTask(sub, row.task)); err != nil {
			return err
		}
	}
	return nil
}

// StartupCollection returns the one-shot handler that queues a low-priority
// daily collection shortly after the process starts. It only enqueues.
func StartupCollection(q Enqueuer) Handler {
	return func(context.Context) error {
		q.Enqueue(model.Task{
			Type:     model.TaskCollection,
			Priority: model.TaskPriorityLow,
			Params:   map[string]any{"mode": "daily"},
			Source:   model.SourceStartup,
		})
		return nil
	}
}
