// Package enrich verifies unverified records against the enrichment provider.
package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/internal/store"
	"github.com/sells-group/prospector/pkg/enrichment"
)

// Options tunes the sweep.
type Options struct {
	// BatchSize caps the records verified per run.
	BatchSize int
	// Delay is the courtesy gap between provider calls.
	Delay time.Duration
	// Timeout bounds each provider call.
	Timeout time.Duration
}

// Sweep verifies the oldest unverified records.
type Sweep struct {
	store   store.Store
	client  enrichment.Client
	breaker *resilience.CircuitBreaker
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time
}

// NewSweep creates a Sweep. breaker may be nil.
func NewSweep(st store.Store, client enrichment.Client, breaker *resilience.CircuitBreaker, opts Options) *Sweep {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	return &Sweep{
		store:   st,
		client:  client,
		breaker: breaker,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// Run selects up to BatchSize unverified records, oldest first, and
// verifies each in turn. Provider failures skip the record so it is picked
// up again by a later run. A store failure aborts.
func (s *Sweep) Run(ctx context.Context) *model.RunResult {
	log := zap.L().With(zap.String("pipeline", "enrichment"))
	res := &model.RunResult{}

	unverified := false
	batch, err := s.store.SelectPage(ctx, store.RecordFilter{Verified: &unverified}, store.OrderOldestFirst, s.opts.BatchSize, 0)
	if err != nil {
		log.Error("select unverified records", zap.Error(err))
		res.AddError("store", "", err, false, s.now())
		return res.Finish("enrichment", true)
	}
	log.Info("enrichment batch selected", zap.Int("records", len(batch)))

	for i := range batch {
		rec := &batch[i]
		if err := s.limiter.Wait(ctx); err != nil {
			res.AddError("record", rec.ExternalKey, err, false, s.now())
			return res.Finish("enrichment", true)
		}
		res.Processed++

		found, err := s.lookup(ctx, rec.ExternalKey)
		if err != nil {
			transient := resilience.IsTransient(err)
			log.Warn("enrichment failed, skipping record",
				zap.String("external_key", rec.ExternalKey),
				zap.Bool("transient", transient),
				zap.Error(err),
			)
			res.AddError("enrich", rec.ExternalKey, err, transient, s.now())
			continue
		}

		if err := s.store.UpdateByKey(ctx, rec.ExternalKey, verifiedFields(rec, found, s.now())); err != nil {
			log.Error("store error, aborting enrichment run", zap.String("external_key", rec.ExternalKey), zap.Error(err))
			res.AddError("store", rec.ExternalKey, err, false, s.now())
			return res.Finish("enrichment", true)
		}
		res.Updated++
	}
	return res.Finish("enrichment", false)
}

// HandleTask runs the sweep for the dispatcher.
func (s *Sweep) HandleTask(ctx context.Context, _ model.Task) (*model.RunResult, error) {
	res := s.Run(ctx)
	if !res.OK {
		return res, eris.Errorf("enrich: run aborted: %s", res.Summary)
	}
	return res, nil
}

func (s *Sweep) lookup(ctx context.Context, key string) (*enrichment.Result, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	call := func(ctx context.Context) (*enrichment.Result, error) { return s.client.Enrich(ctx, key) }

	var (
		res *enrichment.Result
		err error
	)
	if s.breaker != nil {
		res, err = resilience.ExecuteVal(ctx, s.breaker, call)
	} else {
		res, err = call(ctx)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: lookup %s", key)
	}
	return res, nil
}

// verifiedFields marks the record verified. Contact channels the record is
// missing are filled from the provider when it found the profile; existing
// values are never replaced.
func verifiedFields(rec *model.Record, found *enrichment.Result, now time.Time) store.Fields {
	fields := store.VerifiedFields(now)
	if found == nil || !found.Found {
		return fields
	}
	if !rec.HasEmail() {
		if email := model.StringPtr(found.Email); email != nil {
			fields[store.ColEmail] = email
		}
	}
	if !rec.HasPhone() {
		if phone := model.StringPtr(found.Phone); phone != nil {
			fields[store.ColPhone] = phone
		}
	}
	return fields
}
