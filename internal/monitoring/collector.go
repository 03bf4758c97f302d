package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/agent"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Task metrics over the retained run history.
	RunsTotal     int            `json:"runs_total"`
	RunsCompleted int            `json:"runs_completed"`
	RunsFailed    int            `json:"runs_failed"`
	FailRate      float64        `json:"fail_rate"`
	FailedByType  map[string]int `json:"failed_by_type,omitempty"`
	LastFailure   string         `json:"last_failure,omitempty"`

	// Dispatcher state.
	QueueDepth    int      `json:"queue_depth"`
	CurrentTask   string   `json:"current_task"`
	ProvidersDown []string `json:"providers_down,omitempty"`

	// Record store.
	RecordsTotal      int `json:"records_total"`
	RecordsUnverified int `json:"records_unverified"`

	CollectedAt time.Time `json:"collected_at"`
}

// StatusSource abstracts the dispatcher status needed by the collector.
type StatusSource interface {
	Status() agent.Status
}

// Collector gathers metrics from the dispatcher and the store.
type Collector struct {
	source StatusSource
	store  store.Store
}

// NewCollector creates a new metrics collector. st may be nil.
func NewCollector(source StatusSource, st store.Store) *Collector {
	return &Collector{source: source, store: st}
}

// Collect gathers a snapshot.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	status := c.source.Status()
	snap := &MetricsSnapshot{
		QueueDepth:  status.QueueDepth,
		CurrentTask: status.CurrentTask,
		CollectedAt: time.Now().UTC(),
	}

	// Recent is newest first.
	for _, r := range status.Recent {
		switch r.State {
		case model.TaskCompleted:
			snap.RunsCompleted++
		case model.TaskFailed:
			snap.RunsFailed++
			if snap.FailedByType == nil {
				snap.FailedByType = map[string]int{}
			}
			snap.FailedByType[string(r.Type)]++
			if snap.LastFailure == "" {
				snap.LastFailure = string(r.Type) + ": " + r.Error
			}
		}
	}
	snap.RunsTotal = snap.RunsCompleted + snap.RunsFailed
	if snap.RunsTotal > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(snap.RunsTotal)
	}

	for name, up := range status.Providers {
		if !up {
			snap.ProvidersDown = append(snap.ProvidersDown, name)
		}
	}
	sort.Strings(snap.ProvidersDown)

	if c.store != nil {
		total, err := c.store.Count(ctx, store.RecordFilter{})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: count records")
		}
		unverified := false
		pending, err := c.store.Count(ctx, store.RecordFilter{Verified: &unverified})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: count unverified records")
		}
		snap.RecordsTotal = total
		snap.RecordsUnverified = pending
	}

	return snap, nil
}
