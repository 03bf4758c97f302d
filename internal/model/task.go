package model

import "time"

// TaskType routes a task to its handler.
type TaskType string

const (
	TaskCollection      TaskType = "collection"
	TaskEnrichment      TaskType = "enrichment"
	TaskOutreach        TaskType = "outreach"
	TaskMarketAnalysis  TaskType = "market-analysis"
	TaskOutboundCalling TaskType = "outbound-calling"
	TaskCleanup         TaskType = "cleanup"
	TaskPriorityRefresh TaskType = "priority-refresh"
)

// TaskPriority orders the dispatch queue.
type TaskPriority string

const (
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityLow    TaskPriority = "low"
)

// Rank returns the dequeue rank: high=3, medium=2, low=1. Unknown values
// rank below low.
func (p TaskPriority) Rank() int {
	switch p {
	case TaskPriorityHigh:
		return 3
	case TaskPriorityMedium:
		return 2
	case TaskPriorityLow:
		return 1
	default:
		return 0
	}
}

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Task sources, for observability.
const (
	SourceScheduler    = "scheduler"
	SourceOperator     = "operator"
	SourceSelfSchedule = "self-schedule"
	SourceStartup      = "startup"
)

// Task is a unit of orchestrated work.
type Task struct {
	ID            string         `json:"id"`
	Type          TaskType       `json:"type" validate:"required,oneof=collection enrichment outreach market-analysis outbound-calling cleanup priority-refresh"`
	Priority      TaskPriority   `json:"priority" validate:"omitempty,oneof=high medium low"`
	Params        map[string]any `json:"parameters,omitempty"`
	Source        string         `json:"source,omitempty"`
	ScheduledTime time.Time      `json:"scheduled_time"`
}

// Param returns a string parameter or "".
func (t Task) Param(key string) string {
	if t.Params == nil {
		return ""
	}
	s, _ := t.Params[key].(string)
	return s
}
