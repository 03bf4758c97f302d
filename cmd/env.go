package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/advisor"
	"github.com/sells-group/prospector/internal/agent"
	"github.com/sells-group/prospector/internal/analysis"
	"github.com/sells-group/prospector/internal/calling"
	"github.com/sells-group/prospector/internal/cleanup"
	"github.com/sells-group/prospector/internal/collect"
	"github.com/sells-group/prospector/internal/db"
	"github.com/sells-group/prospector/internal/enrich"
	"github.com/sells-group/prospector/internal/merge"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/internal/store"
	"github.com/sells-group/prospector/pkg/anthropic"
	"github.com/sells-group/prospector/pkg/dialer"
	"github.com/sells-group/prospector/pkg/enrichment"
	"github.com/sells-group/prospector/pkg/search"
)

// Provider names used for circuit breakers and status reporting.
const (
	providerSearch     = "search"
	providerEnrichment = "enrichment"
	providerDialer     = "dialer"
)

// appEnv holds every wired component a command needs.
type appEnv struct {
	Store    store.Store
	Breakers *resilience.Breakers
	Agent    *agent.Agent

	Collect  *collect.Pipeline
	Enrich   *enrich.Sweep
	Cleanup  *cleanup.Sweep
	Calling  *calling.Campaign
	Analyzer *analysis.Analyzer
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEnv validates config for mode, opens the store and wires every
// pipeline into a single dispatcher.
func initEnv(ctx context.Context, mode string, agentOpts agent.Options) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if err := env.wire(agentOpts); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *appEnv) wire(agentOpts agent.Options) error {
	e.Breakers = resilience.NewBreakers(cfg.Providers.Breaker)
	prov := cfg.Providers

	var searchOpts []search.Option
	if prov.Search.BaseURL != "" {
		searchOpts = append(searchOpts, search.WithBaseURL(prov.Search.BaseURL))
	}
	searcher := collect.NewProviderSearcher(
		search.NewClient(prov.Search.Key, searchOpts...),
		e.Breakers.Get(providerSearch),
	)

	engine := merge.NewEngine(e.Store, cfg.Scoring.Priority, cfg.Scoring.Segments)
	e.Collect = collect.NewPipeline(searcher, engine, collect.Options{
		Delay:      time.Duration(cfg.Collection.DelayMs) * time.Millisecond,
		GroupDelay: time.Duration(cfg.Collection.GroupDelaySecs) * time.Second,
		Timeout:    prov.Search.Timeout(),
	})

	plan, err := cfg.Collection.Plan()
	if err != nil {
		return err
	}

	var suggester collect.Suggester
	if cfg.Advisor.Enabled {
		suggester = advisor.New(
			anthropic.NewClient(cfg.Anthropic.Key),
			cfg.Anthropic.Model,
			cfg.Anthropic.MaxTokens,
			cfg.Advisor.MaxConfigs,
			time.Duration(cfg.Advisor.TimeoutSecs)*time.Second,
		)
	}
	collectHandler := collect.NewTaskHandler(e.Collect, *plan, suggester)

	var enrichOpts []enrichment.Option
	if prov.Enrichment.BaseURL != "" {
		enrichOpts = append(enrichOpts, enrichment.WithBaseURL(prov.Enrichment.BaseURL))
	}
	e.Enrich = enrich.NewSweep(
		e.Store,
		enrichment.NewClient(prov.Enrichment.Key, enrichOpts...),
		e.Breakers.Get(providerEnrichment),
		enrich.Options{
			BatchSize: cfg.Enrichment.BatchSize,
			Delay:     time.Duration(cfg.Enrichment.DelayMs) * time.Millisecond,
			Timeout:   prov.Enrichment.Timeout(),
		},
	)

	e.Cleanup = cleanup.NewSweep(e.Store, cfg.Scoring.Priority, cfg.Scoring.Segments, cfg.Cleanup.PageSize)
	e.Analyzer = analysis.NewAnalyzer(e.Store, 0)

	e.Agent = agent.New(agentOpts, agent.WithProviders(e.Breakers.Availability))
	e.Agent.Register(model.TaskCollection, collectHandler.Handle)
	e.Agent.Register(model.TaskEnrichment, e.Enrich.HandleTask)
	e.Agent.Register(model.TaskCleanup, e.Cleanup.HandleDedup)
	e.Agent.Register(model.TaskPriorityRefresh, e.Cleanup.HandleRefresh)
	e.Agent.Register(model.TaskMarketAnalysis, e.Analyzer.HandleTask)

	if prov.Dialer.Key == "" {
		zap.L().Warn("providers.dialer.key not set; outbound calling tasks will fail")
		return nil
	}
	var dialerOpts []dialer.Option
	if prov.Dialer.BaseURL != "" {
		dialerOpts = append(dialerOpts, dialer.WithBaseURL(prov.Dialer.BaseURL))
	}
	e.Calling = calling.NewCampaign(
		e.Store,
		dialer.NewClient(prov.Dialer.Key, dialerOpts...),
		e.Breakers.Get(providerDialer),
		calling.Options{
			MaxBatch: cfg.Calling.MaxBatch,
			Campaign: cfg.Calling.Campaign,
			Timeout:  prov.Dialer.Timeout(),
		},
	)
	e.Agent.Register(model.TaskOutboundCalling, e.Calling.HandleTask)
	return nil
}

// initStore opens the configured backend, retrying while the database comes
// up.
func initStore(ctx context.Context) (store.Store, error) {
	opts := store.Options{UniqueExternalKey: cfg.Store.UniqueExternalKey}

	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prospector.db"
		}
		return store.NewSQLite(dsn, opts)
	case "postgres":
		var st store.Store
		err := resilience.WaitFor(ctx, "postgres", resilience.DefaultRetryConfig(), func(ctx context.Context) error {
			pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
				MaxConns: cfg.Store.MaxConns,
				MinConns: cfg.Store.MinConns,
			}, opts)
			if err != nil {
				return err
			}
			st = pg
			return nil
		})
		if err != nil {
			return nil, eris.Wrap(err, "connect postgres")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// runOnce starts the dispatcher, submits task and waits for its result.
// One-shot commands go through the same queue the server uses.
func (e *appEnv) runOnce(ctx context.Context, task model.Task) (model.RunSummary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- e.Agent.Run(runCtx) }()

	sum, err := e.Agent.Submit(ctx, task)
	cancel()
	if runErr := <-done; runErr != nil {
		zap.L().Warn("agent stopped with error", zap.Error(runErr))
	}
	return sum, err
}
