package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/config"
)

// Checker runs periodic alert checks in the background. An alert of a given
// type is sent once and not repeated until a check finds it cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	active    map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    map[AlertType]bool{},
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) error {
	interval := time.Duration(c.cfg.CheckIntervalMins) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return nil
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot, sends any newly raised alerts and returns
// them.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	raised := c.alerter.Evaluate(snap)
	current := make(map[AlertType]bool, len(raised))
	var fresh []Alert
	for _, a := range raised {
		current[a.Type] = true
		if !c.active[a.Type] {
			fresh = append(fresh, a)
		}
	}
	c.active = current

	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts", zap.Int("active", len(current)))
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return fresh
}
