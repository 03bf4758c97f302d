// Package monitoring watches task outcomes and posts alerts to a webhook.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertTaskFailureRate AlertType = "task_failure_rate"
	AlertProviderDown    AlertType = "provider_down"
	AlertQueueBacklog    AlertType = "queue_backlog"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	minRuns := a.cfg.MinRuns
	if minRuns <= 0 {
		minRuns = 5
	}
	if snap.RunsTotal >= minRuns && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertTaskFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Task failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d recent runs)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100, snap.RunsFailed, snap.RunsTotal,
			),
			Details: map[string]any{
				"failure_rate":   snap.FailRate,
				"threshold":      a.cfg.FailureRateThreshold,
				"failed":         snap.RunsFailed,
				"finished":       snap.RunsTotal,
				"failed_by_type": snap.FailedByType,
				"last_failure":   snap.LastFailure,
			},
			Timestamp: now,
		})
	}

	if len(snap.ProvidersDown) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertProviderDown,
			Severity: "medium",
			Message:  fmt.Sprintf("Provider circuit open: %s", strings.Join(snap.ProvidersDown, ", ")),
			Details: map[string]any{
				"providers": snap.ProvidersDown,
			},
			Timestamp: now,
		})
	}

	if a.cfg.QueueDepthThreshold > 0 && snap.QueueDepth > a.cfg.QueueDepthThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertQueueBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Task queue depth %d exceeds threshold %d (current task: %s)",
				snap.QueueDepth, a.cfg.QueueDepthThreshold, snap.CurrentTask,
			),
			Details: map[string]any{
				"queue_depth":  snap.QueueDepth,
				"threshold":    a.cfg.QueueDepthThreshold,
				"current_task": snap.CurrentTask,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
