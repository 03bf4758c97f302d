// Package collect runs search configurations against the search provider
// and merges the results into the record store.
package collect

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospector/internal/merge"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
)

// Ingester merges candidate records into the store.
type Ingester interface {
	Ingest(ctx context.Context, candidates []model.Record) (merge.Stats, error)
}

// Options tunes the pipeline.
type Options struct {
	// Delay is the courtesy gap between successive search calls.
	Delay time.Duration
	// GroupDelay is the extra pause after each group in RunGrouped.
	GroupDelay time.Duration
	// Timeout bounds each search call.
	Timeout time.Duration
}

// Pipeline executes search plans.
type Pipeline struct {
	searcher Searcher
	ingester Ingester
	opts     Options
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(searcher Searcher, ingester Ingester, opts Options) *Pipeline {
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	return &Pipeline{
		searcher: searcher,
		ingester: ingester,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
	}
}

// Run executes configs strictly in order. Each config's results are merged
// before the next search starts. A failed search or a malformed config is
// recorded and skipped; a store failure aborts the run, and so does a plan
// in which every config is malformed.
func (p *Pipeline) Run(ctx context.Context, configs []model.SearchConfig) *model.RunResult {
	res := &model.RunResult{}
	aborted, invalid := p.run(ctx, "", configs, res)
	return res.Finish("collection", aborted || allInvalid(invalid, len(configs)))
}

// RunGrouped runs each group in turn with an extra pause between groups.
func (p *Pipeline) RunGrouped(ctx context.Context, groups []model.SearchGroup) *model.RunResult {
	res := &model.RunResult{}
	var invalid, total int
	for i, g := range groups {
		aborted, n := p.run(ctx, g.Name, g.Configs, res)
		invalid += n
		total += len(g.Configs)
		if aborted {
			return res.Finish("weekly collection", true)
		}
		if i < len(groups)-1 && p.opts.GroupDelay > 0 {
			if err := sleep(ctx, p.opts.GroupDelay); err != nil {
				res.AddError("group", g.Name, err, false, p.now())
				return res.Finish("weekly collection", true)
			}
		}
	}
	return res.Finish("weekly collection", allInvalid(invalid, total))
}

func allInvalid(invalid, total int) bool {
	return total > 0 && invalid == total
}

// run appends to res and reports whether the run was aborted and how many
// configs failed validation.
func (p *Pipeline) run(ctx context.Context, group string, configs []model.SearchConfig, res *model.RunResult) (aborted bool, invalid int) {
	log := zap.L().With(zap.String("pipeline", "collection"))
	if group != "" {
		log = log.With(zap.String("group", group))
	}

	for _, cfg := range configs {
		label := cfg.Label()
		if err := model.Validate(cfg); err != nil {
			log.Error("invalid search config", zap.String("config", label), zap.Error(err))
			res.AddError("config", label, err, false, p.now())
			invalid++
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			res.AddError("config", label, err, false, p.now())
			return true, invalid
		}

		candidates, err := p.search(ctx, cfg)
		if err != nil {
			transient := resilience.IsTransient(err)
			log.Warn("search failed, skipping config",
				zap.String("config", label),
				zap.Bool("transient", transient),
				zap.Error(err),
			)
			res.AddError("search", label, err, transient, p.now())
			continue
		}

		stats, err := p.ingester.Ingest(ctx, candidates)
		res.Processed += stats.Processed
		res.Inserted += stats.Inserted
		res.Updated += stats.Updated
		if err != nil {
			log.Error("store error, aborting collection run", zap.String("config", label), zap.Error(err))
			res.AddError("store", label, err, false, p.now())
			return true, invalid
		}
		log.Info("search config merged",
			zap.String("config", label),
			zap.Int("found", len(candidates)),
			zap.Int("inserted", stats.Inserted),
			zap.Int("updated", stats.Updated),
		)
	}
	return false, invalid
}

func (p *Pipeline) search(ctx context.Context, cfg model.SearchConfig) ([]model.Record, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	recs, err := p.searcher.Search(ctx, cfg)
	if err != nil {
		return nil, eris.Wrapf(err, "collect: search %q", cfg.Label())
	}
	return recs, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
