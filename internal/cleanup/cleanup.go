// Package cleanup removes duplicate records and refreshes derived columns.
package cleanup

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/scoring"
	"github.com/sells-group/prospector/internal/store"
)

const (
	defaultPageSize = 500
	deleteChunk     = 500
)

// Sweep runs the dedup pass and the rule-table refreshes.
type Sweep struct {
	store    store.Store
	priority scoring.PriorityRules
	segments scoring.SegmentRules
	pageSize int
	now      func() time.Time
}

// NewSweep creates a Sweep.
func NewSweep(st store.Store, priority scoring.PriorityRules, segments scoring.SegmentRules, pageSize int) *Sweep {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Sweep{store: st, priority: priority, segments: segments, pageSize: pageSize, now: time.Now}
}

// Dedup keeps the most recently created record for each external key and
// deletes the rest. Deletes happen after the scan so paging offsets stay
// valid. Running it twice deletes nothing the second time.
func (s *Sweep) Dedup(ctx context.Context) *model.RunResult {
	log := zap.L().With(zap.String("pipeline", "cleanup"))
	res := &model.RunResult{}

	seen := make(map[string]struct{})
	var dupes []string
	for offset := 0; ; offset += s.pageSize {
		page, err := s.store.SelectPage(ctx, store.RecordFilter{}, store.OrderNewestFirst, s.pageSize, offset)
		if err != nil {
			log.Error("scan records", zap.Int("offset", offset), zap.Error(err))
			res.AddError("store", "", err, false, s.now())
			return res.Finish("cleanup", true)
		}
		for _, r := range page {
			res.Processed++
			if _, ok := seen[r.ExternalKey]; ok {
				dupes = append(dupes, r.ID)
				continue
			}
			seen[r.ExternalKey] = struct{}{}
		}
		if len(page) < s.pageSize {
			break
		}
	}

	for start := 0; start < len(dupes); start += deleteChunk {
		end := min(start+deleteChunk, len(dupes))
		n, err := s.store.DeleteByIDs(ctx, dupes[start:end])
		res.Deleted += int(n)
		if err != nil {
			log.Error("delete duplicates", zap.Error(err))
			res.AddError("store", "", err, false, s.now())
			return res.Finish("cleanup", true)
		}
	}

	log.Info("dedup pass complete",
		zap.Int("scanned", res.Processed),
		zap.Int("unique", len(seen)),
		zap.Int("deleted", res.Deleted),
	)
	return res.Finish("cleanup", false)
}

// RefreshPriorities rewrites every record's priority, and then its segment,
// each in a single bulk statement.
func (s *Sweep) RefreshPriorities(ctx context.Context) *model.RunResult {
	log := zap.L().With(zap.String("pipeline", "priority-refresh"))
	res := &model.RunResult{}

	for _, a := range []store.Assignment{s.priority.Assignment(), s.segments.Assignment()} {
		n, err := s.store.BulkAssign(ctx, store.RecordFilter{}, a)
		if err != nil {
			log.Error("bulk assign", zap.String("column", a.Column), zap.Error(err))
			res.AddError("store", a.Column, err, false, s.now())
			return res.Finish("priority refresh", true)
		}
		log.Info("column refreshed", zap.String("column", a.Column), zap.Int64("rows", n))
		if a.Column == store.ColPriority {
			res.Updated = int(n)
			res.Processed = int(n)
		}
	}
	return res.Finish("priority refresh", false)
}

// HandleDedup runs Dedup for the dispatcher. The param
// "refresh_priorities" (bool) also runs RefreshPriorities afterwards.
func (s *Sweep) HandleDedup(ctx context.Context, task model.Task) (*model.RunResult, error) {
	res := s.Dedup(ctx)
	if !res.OK {
		return res, eris.Errorf("cleanup: run aborted: %s", res.Summary)
	}
	if refresh, _ := task.Params["refresh_priorities"].(bool); refresh {
		pr := s.RefreshPriorities(ctx)
		res.Updated += pr.Updated
		res.Errors = append(res.Errors, pr.Errors...)
		res.Finish("cleanup", !pr.OK)
		if !pr.OK {
			return res, eris.Errorf("cleanup: priority refresh aborted: %s", pr.Summary)
		}
	}
	return res, nil
}

// HandleRefresh runs RefreshPriorities for the dispatcher.
func (s *Sweep) HandleRefresh(ctx context.Context, _ model.Task) (*model.RunResult, error) {
	res := s.RefreshPriorities(ctx)
	if !res.OK {
		return res, eris.Errorf("cleanup: priority refresh aborted: %s", res.Summary)
	}
	return res, nil
}
