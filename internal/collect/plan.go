package collect

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prospector/internal/model"
)

// WeeklyPlan is the comprehensive sweep: every title at every organization.
type WeeklyPlan struct {
	Organizations []string `yaml:"organizations" mapstructure:"organizations"`
	Titles        []string `yaml:"titles" mapstructure:"titles"`
	Location      string   `yaml:"location" mapstructure:"location"`
	MaxResults    int      `yaml:"max_results" mapstructure:"max_results"`
}

// Groups expands the plan into one search group per organization.
func (w WeeklyPlan) Groups() []model.SearchGroup {
	maxResults := w.MaxResults
	if maxResults <= 0 {
		maxResults = 25
	}
	groups := make([]model.SearchGroup, 0, len(w.Organizations))
	for _, org := range w.Organizations {
		g := model.SearchGroup{Name: org, Configs: make([]model.SearchConfig, 0, len(w.Titles))}
		for _, title := range w.Titles {
			g.Configs = append(g.Configs, model.SearchConfig{
				Title:        title,
				Organization: org,
				Location:     w.Location,
				MaxResults:   maxResults,
			})
		}
		groups = append(groups, g)
	}
	return groups
}

// Plan is the full search plan.
type Plan struct {
	Daily  []model.SearchConfig `yaml:"daily"`
	Weekly WeeklyPlan           `yaml:"weekly"`
}

// Validate rejects malformed daily configs.
func (p Plan) Validate() error {
	for i, c := range p.Daily {
		if err := model.Validate(c); err != nil {
			return eris.Wrapf(err, "collect: daily config %d", i)
		}
	}
	return nil
}

// LoadPlan reads a YAML plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "collect: read plan %s", path)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "collect: parse plan %s", path)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
