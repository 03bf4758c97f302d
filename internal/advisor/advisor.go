// Package advisor asks a language model to refine the daily search plan.
// Its output is advisory: callers fall back to the configured plan on any
// error.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/pkg/anthropic"
)

const systemPrompt = `You plan searches for a B2B prospecting tool.
Given the current list of search configurations, return an improved list as a JSON array.
Each element has the keys keywords, industry, title, organization, location, connection_level, max_results.
Every element needs keywords or title. max_results is between 1 and 100. connection_level is empty, "1st", "2nd" or "3rd".
Respond with the JSON array only.`

// Advisor suggests search configurations.
type Advisor struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	maxConfigs int
	timeout    time.Duration
}

// New creates an Advisor.
func New(client anthropic.Client, model string, maxTokens int64, maxConfigs int, timeout time.Duration) *Advisor {
	if maxConfigs <= 0 {
		maxConfigs = 10
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Advisor{client: client, model: model, maxTokens: maxTokens, maxConfigs: maxConfigs, timeout: timeout}
}

// Suggest returns a refined plan. Invalid suggestions are dropped; if none
// survive, an error is returned.
func (a *Advisor) Suggest(ctx context.Context, base []model.SearchConfig) ([]model.SearchConfig, error) {
	current, err := json.Marshal(base)
	if err != nil {
		return nil, eris.Wrap(err, "advisor: marshal plan")
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Current plan:\n%s\n\nReturn at most %d configurations.", current, a.maxConfigs),
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "advisor: suggest")
	}
	resp.Usage.Log(a.model, "advisor")

	suggested, err := parseConfigs(resp.Text())
	if err != nil {
		return nil, err
	}

	out := make([]model.SearchConfig, 0, min(len(suggested), a.maxConfigs))
	for _, c := range suggested {
		if len(out) == a.maxConfigs {
			break
		}
		if err := model.Validate(c); err != nil {
			zap.L().Debug("advisor: dropping invalid suggestion", zap.String("config", c.Label()), zap.Error(err))
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, eris.New("advisor: no valid suggestions")
	}
	return out, nil
}

// parseConfigs extracts the first JSON array from text, tolerating prose or
// code fences around it.
func parseConfigs(text string) ([]model.SearchConfig, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, eris.New("advisor: response contains no JSON array")
	}
	var configs []model.SearchConfig
	if err := json.Unmarshal([]byte(text[start:end+1]), &configs); err != nil {
		return nil, eris.Wrap(err, "advisor: parse suggestions")
	}
	return configs, nil
}
