// Package analysis summarises the collected records for the market-analysis
// task.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

const pageSize = 500

// Count is one bucket of a breakdown.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Report is an aggregate view of the store.
type Report struct {
	Total            int     `json:"total"`
	Verified         int     `json:"verified"`
	WithPhone        int     `json:"with_phone"`
	WithEmail        int     `json:"with_email"`
	ByPriority       []Count `json:"by_priority"`
	BySegment        []Count `json:"by_segment"`
	TopOrganizations []Count `json:"top_organizations"`
}

// String renders a one-line summary.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "market analysis: total=%d verified=%d phone=%d email=%d", r.Total, r.Verified, r.WithPhone, r.WithEmail)
	writeCounts(&b, "priority", r.ByPriority)
	writeCounts(&b, "segment", r.BySegment)
	writeCounts(&b, "top organizations", r.TopOrganizations)
	return b.String()
}

func writeCounts(b *strings.Builder, label string, counts []Count) {
	if len(counts) == 0 {
		return
	}
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s=%d", c.Name, c.Count)
	}
	fmt.Fprintf(b, "; %s: %s", label, strings.Join(parts, ", "))
}

// Analyzer builds reports from a store.
type Analyzer struct {
	store store.Store
	topN  int
}

// NewAnalyzer creates an Analyzer listing topN organizations.
func NewAnalyzer(st store.Store, topN int) *Analyzer {
	if topN <= 0 {
		topN = 10
	}
	return &Analyzer{store: st, topN: topN}
}

// Analyze pages through every record and aggregates it.
func (a *Analyzer) Analyze(ctx context.Context) (*Report, error) {
	priorities := map[string]int{}
	segments := map[string]int{}
	orgs := map[string]int{}
	orgNames := map[string]string{}
	r := &Report{}

	for offset := 0; ; offset += pageSize {
		page, err := a.store.SelectPage(ctx, store.RecordFilter{}, store.OrderOldestFirst, pageSize, offset)
		if err != nil {
			return nil, eris.Wrap(err, "analysis: scan records")
		}
		for _, rec := range page {
			r.Total++
			if rec.Verified {
				r.Verified++
			}
			if rec.HasPhone() {
				r.WithPhone++
			}
			if rec.HasEmail() {
				r.WithEmail++
			}
			priorities[string(rec.Priority)]++
			segments[orDefault(rec.Segment, "unclassified")]++
			if org := strings.TrimSpace(rec.Organization); org != "" {
				key := strings.ToLower(org)
				orgs[key]++
				if _, ok := orgNames[key]; !ok {
					orgNames[key] = org
				}
			}
		}
		if len(page) < pageSize {
			break
		}
	}

	for _, p := range []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow} {
		r.ByPriority = append(r.ByPriority, Count{Name: string(p), Count: priorities[string(p)]})
	}
	r.BySegment = ranked(segments, nil, 0)
	r.TopOrganizations = ranked(orgs, orgNames, a.topN)
	return r, nil
}

// HandleTask runs Analyze for the dispatcher.
func (a *Analyzer) HandleTask(ctx context.Context, _ model.Task) (*model.RunResult, error) {
	report, err := a.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	zap.L().Info("market analysis complete",
		zap.Int("total", report.Total),
		zap.Int("verified", report.Verified),
		zap.Int("segments", len(report.BySegment)),
	)
	return &model.RunResult{OK: true, Processed: report.Total, Summary: report.String()}, nil
}

// ranked sorts counts descending, ties by name, keeping at most limit
// entries when limit > 0.
func ranked(counts map[string]int, names map[string]string, limit int) []Count {
	out := make([]Count, 0, len(counts))
	for k, n := range counts {
		name := k
		if names != nil {
			name = names[k]
		}
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
