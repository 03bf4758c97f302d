package merge

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/scoring"
	"github.com/sells-group/prospector/internal/store"
)

// Stats counts the outcome of one Ingest call.
type Stats struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Processed += other.Processed
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Skipped += other.Skipped
}

// Engine upserts candidates into a Store by external key.
type Engine struct {
	store    store.Store
	priority scoring.PriorityRules
	segments scoring.SegmentRules
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(st store.Store, priority scoring.PriorityRules, segments scoring.SegmentRules, opts ...Option) *Engine {
	e := &Engine{store: st, priority: priority, segments: segments, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Ingest merges candidates one at a time, in order. Each candidate is fully
// written before the next is looked up, so repeated keys inside one batch
// update the record inserted earlier in the same batch. Candidates without a
// key are skipped. Segment and priority are recomputed from the merged
// record on every write. The first store error stops the batch and is
// returned together with the stats so far.
func (e *Engine) Ingest(ctx context.Context, candidates []model.Record) (Stats, error) {
	var stats Stats
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "merge: ingest")
		}
		stats.Processed++

		c.ExternalKey = NormalizeKey(c.ExternalKey)
		if c.ExternalKey == "" {
			stats.Skipped++
			zap.L().Debug("merge: skipping candidate without key", zap.String("name", c.Name))
			continue
		}

		existing, err := e.store.FindByKey(ctx, c.ExternalKey)
		if err != nil {
			return stats, eris.Wrapf(err, "merge: lookup %s", c.ExternalKey)
		}

		now := e.now().UTC()
		if existing == nil {
			rec := c
			rec.ID = ""
			rec.Verified = false
			rec.CreatedAt = now
			rec.UpdatedAt = now
			rec.Segment = e.segments.Classify(rec)
			rec.Priority = e.priority.Evaluate(rec.Organization, rec.Title)
			if err := e.store.Insert(ctx, &rec); err != nil {
				return stats, eris.Wrapf(err, "merge: insert %s", c.ExternalKey)
			}
			stats.Inserted++
			continue
		}

		merged := Merge(*existing, c, now)
		merged.Segment = e.segments.Classify(merged)
		merged.Priority = e.priority.Evaluate(merged.Organization, merged.Title)
		fields := store.MergeFields(merged)
		fields[store.ColPriority] = string(merged.Priority)
		if err := e.store.UpdateByKey(ctx, c.ExternalKey, fields); err != nil {
			return stats, eris.Wrapf(err, "merge: update %s", c.ExternalKey)
		}
		stats.Updated++
	}
	return stats, nil
}
