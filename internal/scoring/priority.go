// Package scoring holds the deterministic rule tables that derive a record's
// priority and segment. Each table is a store.Assignment so the same rules
// run per record at ingest and as one bulk UPDATE during refreshes.
package scoring

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

// PriorityRules configures the priority table. Matching is
// case-insensitive; organizations match exactly, titles by substring.
// Rules apply in order: top-tier firms, mid overrides, senior titles, mid
// titles. MidOverrides keep titles such as "Vice President" at Medium even
// though they contain a senior pattern.
type PriorityRules struct {
	TopTierFirms []string `yaml:"top_tier_firms" mapstructure:"top_tier_firms"`
	MidOverrides []string `yaml:"mid_overrides" mapstructure:"mid_overrides"`
	SeniorTitles []string `yaml:"senior_titles" mapstructure:"senior_titles"`
	MidTitles    []string `yaml:"mid_titles" mapstructure:"mid_titles"`
}

// DefaultPriorityRules returns the built-in table.
func DefaultPriorityRules() PriorityRules {
	return PriorityRules{
		TopTierFirms: []string{
			"Goldman Sachs", "Morgan Stanley", "J.P. Morgan", "JPMorgan Chase",
			"Blackstone", "KKR", "Carlyle", "Apollo", "BlackRock", "Bain Capital",
		},
		MidOverrides: []string{"Vice President", "Vice-President"},
		SeniorTitles: []string{
			"CEO", "Chief", "President", "Managing Director", "Founder",
			"Managing Partner", "General Partner", "Owner",
		},
		MidTitles: []string{
			"VP", "Vice President", "Director", "Head of", "Principal",
		},
	}
}

// Assignment renders the table for store.BulkAssign. Empty rule lists are
// dropped so the rendered CASE never contains an empty IN list.
func (r PriorityRules) Assignment() store.Assignment {
	a := store.Assignment{Column: store.ColPriority, Else: string(model.PriorityLow)}
	add := func(col string, op store.MatchOp, values []string, then model.Priority) {
		values = cleanValues(values)
		if len(values) == 0 {
			return
		}
		a.Cases = append(a.Cases, store.Case{
			When: store.Condition{Column: col, Op: op, Values: values},
			Then: string(then),
		})
	}
	add(store.ColOrganization, store.MatchEquals, r.TopTierFirms, model.PriorityHigh)
	add(store.ColTitle, store.MatchContains, r.MidOverrides, model.PriorityMedium)
	add(store.ColTitle, store.MatchContains, r.SeniorTitles, model.PriorityHigh)
	add(store.ColTitle, store.MatchContains, r.MidTitles, model.PriorityMedium)
	return a
}

// Evaluate returns the priority for an (organization, title) pair.
func (r PriorityRules) Evaluate(organization, title string) model.Priority {
	return model.Priority(r.Assignment().Eval(map[string]string{
		store.ColOrganization: normalize(organization),
		store.ColTitle:        normalize(title),
	}))
}

func cleanValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = normalize(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
