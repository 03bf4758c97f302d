// Package calling places outbound call batches for qualified leads.
package calling

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/internal/store"
	"github.com/sells-group/prospector/pkg/dialer"
)

// Options tunes the campaign.
type Options struct {
	// MaxBatch caps the leads per batch.
	MaxBatch int
	// Campaign is the default campaign type.
	Campaign string
	// Timeout bounds the provider call.
	Timeout time.Duration
}

// Campaign selects qualified leads and hands them to the dialer.
type Campaign struct {
	store   store.Store
	client  dialer.Client
	breaker *resilience.CircuitBreaker
	opts    Options
	now     func() time.Time
}

// NewCampaign creates a Campaign. breaker may be nil.
func NewCampaign(st store.Store, client dialer.Client, breaker *resilience.CircuitBreaker, opts Options) *Campaign {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 10
	}
	if opts.Campaign == "" {
		opts.Campaign = "default"
	}
	return &Campaign{store: st, client: client, breaker: breaker, opts: opts, now: time.Now}
}

// Qualified returns up to MaxBatch verified, high-priority records with a
// phone number, newest first.
func (c *Campaign) Qualified(ctx context.Context) ([]model.Record, error) {
	verified := true
	leads, err := c.store.SelectPage(ctx, store.RecordFilter{
		Verified: &verified,
		Priority: model.PriorityHigh,
		HasPhone: true,
	}, store.OrderNewestFirst, c.opts.MaxBatch, 0)
	if err != nil {
		return nil, eris.Wrap(err, "calling: select qualified leads")
	}
	return leads, nil
}

// Run places one batch. campaign overrides the configured campaign type
// when non-empty. A dialer failure fails the whole batch.
func (c *Campaign) Run(ctx context.Context, campaign string) *model.RunResult {
	log := zap.L().With(zap.String("pipeline", "outbound-calling"))
	res := &model.RunResult{}
	if campaign == "" {
		campaign = c.opts.Campaign
	}

	leads, err := c.Qualified(ctx)
	if err != nil {
		res.AddError("store", "", err, false, c.now())
		return res.Finish("outbound calling", true)
	}
	if len(leads) == 0 {
		log.Info("no qualified leads")
		return res.Finish("outbound calling", false)
	}

	req := dialer.BatchRequest{Campaign: campaign, Leads: make([]dialer.Lead, 0, len(leads))}
	for _, l := range leads {
		req.Leads = append(req.Leads, dialer.Lead{
			ID:           l.ID,
			Name:         l.Name,
			Phone:        model.Deref(l.Phone),
			Organization: l.Organization,
			Title:        l.Title,
		})
	}
	res.Processed = len(req.Leads)

	batch, err := c.call(ctx, req)
	if err != nil {
		transient := resilience.IsTransient(err)
		log.Error("batch call failed", zap.String("campaign", campaign), zap.Bool("transient", transient), zap.Error(err))
		res.AddError("dialer", campaign, err, transient, c.now())
		return res.Finish("outbound calling", true)
	}

	succeeded, failed := batch.Counts()
	for _, call := range batch.Calls {
		if !call.Succeeded() {
			res.AddError("call", call.LeadID, eris.Errorf("calling: %s: %s", call.Status, call.Error), false, c.now())
		}
	}
	log.Info("batch placed",
		zap.String("campaign", campaign),
		zap.String("batch_id", batch.BatchID),
		zap.Int("successful", succeeded),
		zap.Int("failed", failed),
		zap.Int("total", len(req.Leads)),
	)

	res.Finish("outbound calling", false)
	res.Summary = fmt.Sprintf("%s successful=%d failed=%d total=%d", res.Summary, succeeded, failed, len(req.Leads))
	return res
}

// HandleTask runs one batch for the dispatcher. The "campaign" param
// overrides the campaign type.
func (c *Campaign) HandleTask(ctx context.Context, task model.Task) (*model.RunResult, error) {
	res := c.Run(ctx, task.Param("campaign"))
	if !res.OK {
		return res, eris.Errorf("calling: batch failed: %s", res.Summary)
	}
	return res, nil
}

func (c *Campaign) call(ctx context.Context, req dialer.BatchRequest) (*dialer.BatchResult, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	fn := func(ctx context.Context) (*dialer.BatchResult, error) { return c.client.BatchCall(ctx, req) }
	if c.breaker != nil {
		return resilience.ExecuteVal(ctx, c.breaker, fn)
	}
	return fn(ctx)
}
