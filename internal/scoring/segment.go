package scoring

import (
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

// SegmentRule maps keyword hits in industry or organization to a segment.
type SegmentRule struct {
	Segment  string   `yaml:"segment" mapstructure:"segment"`
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
}

// SegmentRules is an ordered segment table; the first matching rule wins.
type SegmentRules struct {
	Rules   []SegmentRule `yaml:"rules" mapstructure:"rules"`
	Default string        `yaml:"default" mapstructure:"default"`
}

// DefaultSegmentRules returns the built-in segment table.
func DefaultSegmentRules() SegmentRules {
	return SegmentRules{
		Rules: []SegmentRule{
			{Segment: "private-equity", Keywords: []string{"private equity", "buyout", "capital partners"}},
			{Segment: "investment-banking", Keywords: []string{"investment bank", "m&a", "advisory"}},
			{Segment: "asset-management", Keywords: []string{"asset management", "wealth", "investment management"}},
			{Segment: "venture", Keywords: []string{"venture"}},
			{Segment: "financial-services", Keywords: []string{"financial", "bank", "insurance"}},
		},
		Default: "other",
	}
}

// Assignment renders the table for store.BulkAssign. Industry is tested
// before organization for each rule.
func (s SegmentRules) Assignment() store.Assignment {
	a := store.Assignment{Column: store.ColSegment, Else: s.Default}
	for _, rule := range s.Rules {
		kw := cleanValues(rule.Keywords)
		if len(kw) == 0 {
			continue
		}
		a.Cases = append(a.Cases,
			store.Case{When: store.Condition{Column: store.ColIndustry, Op: store.MatchContains, Values: kw}, Then: rule.Segment},
			store.Case{When: store.Condition{Column: store.ColOrganization, Op: store.MatchContains, Values: kw}, Then: rule.Segment},
		)
	}
	return a
}

// Classify returns the segment for a record.
func (s SegmentRules) Classify(r model.Record) string {
	return s.Assignment().Eval(map[string]string{
		store.ColIndustry:     normalize(r.Industry),
		store.ColOrganization: normalize(r.Organization),
	})
}
