package model

import (
	"fmt"
	"time"
)

// ErrorRecord captures one skipped unit of work inside a pipeline run.
type ErrorRecord struct {
	Scope     string    `json:"scope"`
	Key       string    `json:"key,omitempty"`
	Message   string    `json:"message"`
	Transient bool      `json:"transient"`
	At        time.Time `json:"at"`
}

// RunResult is the structured outcome every pipeline run returns.
type RunResult struct {
	OK        bool          `json:"ok"`
	Processed int           `json:"processed"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Errors    []ErrorRecord `json:"errors,omitempty"`
	Summary   string        `json:"summary"`
}

// AddError appends an error record stamped with at.
func (r *RunResult) AddError(scope, key string, err error, transient bool, at time.Time) {
	r.Errors = append(r.Errors, ErrorRecord{
		Scope:     scope,
		Key:       key,
		Message:   err.Error(),
		Transient: transient,
		At:        at,
	})
}

// Finish sets OK and builds the summary line. A run is OK when it was not
// aborted, even if individual units were skipped.
func (r *RunResult) Finish(name string, aborted bool) *RunResult {
	r.OK = !aborted
	r.Summary = fmt.Sprintf("%s: processed=%d inserted=%d updated=%d deleted=%d errors=%d",
		name, r.Processed, r.Inserted, r.Updated, r.Deleted, len(r.Errors))
	if aborted {
		r.Summary += " (aborted)"
	}
	return r
}

// RunSummary records one finished task for the status surface.
type RunSummary struct {
	TaskID     string         `json:"task_id"`
	Type       TaskType       `json:"type"`
	Priority   TaskPriority   `json:"priority"`
	Source     string         `json:"source,omitempty"`
	Params     map[string]any `json:"parameters,omitempty"`
	State      TaskState      `json:"state"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Result     *RunResult     `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}
