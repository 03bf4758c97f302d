package collect

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
)

// Task modes.
const (
	ModeDaily  = "daily"
	ModeWeekly = "weekly"
)

// Suggester refines a plan. Its output is advisory.
type Suggester interface {
	Suggest(ctx context.Context, base []model.SearchConfig) ([]model.SearchConfig, error)
}

// TaskHandler runs collection tasks for the dispatcher.
type TaskHandler struct {
	pipeline *Pipeline
	plan     Plan
	advisor  Suggester
}

// NewTaskHandler creates a TaskHandler. advisor may be nil.
func NewTaskHandler(pipeline *Pipeline, plan Plan, advisor Suggester) *TaskHandler {
	return &TaskHandler{pipeline: pipeline, plan: plan, advisor: advisor}
}

// Handle runs the configs in task params ("configs") when present,
// otherwise the plan selected by the "mode" param (daily by default).
func (h *TaskHandler) Handle(ctx context.Context, task model.Task) (*model.RunResult, error) {
	var res *model.RunResult

	if raw, ok := task.Params["configs"]; ok {
		configs, err := decodeConfigs(raw)
		if err != nil {
			return nil, err
		}
		res = h.pipeline.Run(ctx, configs)
	} else {
		switch mode := task.Param("mode"); mode {
		case "", ModeDaily:
			res = h.pipeline.Run(ctx, h.dailyPlan(ctx))
		case ModeWeekly:
			res = h.pipeline.RunGrouped(ctx, h.plan.Weekly.Groups())
		default:
			return nil, eris.Errorf("collect: unknown mode %q", mode)
		}
	}

	if !res.OK {
		return res, eris.Errorf("collect: run aborted: %s", res.Summary)
	}
	return res, nil
}

func (h *TaskHandler) dailyPlan(ctx context.Context) []model.SearchConfig {
	if h.advisor == nil {
		return h.plan.Daily
	}
	suggested, err := h.advisor.Suggest(ctx, h.plan.Daily)
	if err != nil {
		zap.L().Warn("collect: advisor unavailable, using configured plan", zap.Error(err))
		return h.plan.Daily
	}
	return suggested
}

// decodeConfigs accepts either typed configs or the generic JSON shape
// produced by decoding an HTTP request body.
func decodeConfigs(raw any) ([]model.SearchConfig, error) {
	if typed, ok := raw.([]model.SearchConfig); ok {
		return typed, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, eris.Wrap(err, "collect: encode configs param")
	}
	var configs []model.SearchConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, eris.Wrap(err, "collect: decode configs param")
	}
	if len(configs) == 0 {
		return nil, eris.New("collect: configs param is empty")
	}
	return configs, nil
}
