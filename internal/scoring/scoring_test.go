package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

func TestPriorityRules_Evaluate(t *testing.T) {
	t.Parallel()
	rules := DefaultPriorityRules()

	tests := []struct {
		name  string
		org   string
		title string
		want  model.Priority
	}{
		{"top tier firm wins over junior title", "Goldman Sachs", "Analyst", model.PriorityHigh},
		{"top tier firm case insensitive", "  goldman sachs ", "", model.PriorityHigh},
		{"firm must match exactly", "Goldman Sachs Alumni Club", "Analyst", model.PriorityLow},
		{"senior title", "Tiny Co", "Chief Executive Officer", model.PriorityHigh},
		{"managing director beats director", "Tiny Co", "Managing Director", model.PriorityHigh},
		{"mid title", "Tiny Co", "Director of Sales", model.PriorityMedium},
		{"vp abbreviation", "Tiny Co", "SVP, Operations", model.PriorityMedium},
		{"vice president is mid", "Tiny Co", "Vice President, Sales", model.PriorityMedium},
		{"president is senior", "Tiny Co", "President", model.PriorityHigh},
		{"president with suffix", "Tiny Co", "President & COO", model.PriorityHigh},
		{"executive vice president stays mid", "Tiny Co", "Executive Vice President", model.PriorityMedium},
		{"hyphenated vice president", "Tiny Co", "Vice-President of Finance", model.PriorityMedium},
		{"top tier firm beats vice president override", "KKR", "Vice President", model.PriorityHigh},
		{"fallback", "Tiny Co", "Associate", model.PriorityLow},
		{"empty", "", "", model.PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.Evaluate(tt.org, tt.title))
		})
	}
}

func TestPriorityRules_Deterministic(t *testing.T) {
	t.Parallel()
	rules := DefaultPriorityRules()

	pairs := [][2]string{
		{"Morgan Stanley", "Associate"},
		{"Acme", "President"},
		{"Acme", "Head of Growth"},
		{"Acme", "Intern"},
	}
	for _, p := range pairs {
		first := rules.Evaluate(p[0], p[1])
		for i := 0; i < 50; i++ {
			assert.Equal(t, first, rules.Evaluate(p[0], p[1]))
		}
	}
}

func TestPriorityRules_Assignment(t *testing.T) {
	t.Parallel()

	a := PriorityRules{SeniorTitles: []string{"CEO", " "}}.Assignment()
	require.NoError(t, a.Validate())
	assert.Equal(t, store.ColPriority, a.Column)
	require.Len(t, a.Cases, 1, "empty lists and blank values are dropped")
	assert.Equal(t, []string{"CEO"}, a.Cases[0].When.Values)
	assert.Equal(t, "Low", a.Else)

	assert.Equal(t, model.PriorityLow, PriorityRules{}.Evaluate("Goldman Sachs", "CEO"))
}

func TestPriorityRules_OverridesRenderBeforeSenior(t *testing.T) {
	t.Parallel()

	a := DefaultPriorityRules().Assignment()
	require.Len(t, a.Cases, 4)
	assert.Equal(t, store.ColOrganization, a.Cases[0].When.Column)
	assert.Contains(t, a.Cases[1].When.Values, "Vice President")
	assert.Equal(t, string(model.PriorityMedium), a.Cases[1].Then)
	assert.Contains(t, a.Cases[2].When.Values, "President")
	assert.Equal(t, string(model.PriorityHigh), a.Cases[2].Then)
}

func TestSegmentRules_Classify(t *testing.T) {
	t.Parallel()
	rules := DefaultSegmentRules()

	assert.Equal(t, "private-equity", rules.Classify(model.Record{Industry: "Private Equity"}))
	assert.Equal(t, "private-equity", rules.Classify(model.Record{Organization: "Summit Capital Partners"}))
	assert.Equal(t, "venture", rules.Classify(model.Record{Industry: "Venture Capital"}))
	assert.Equal(t, "private-equity", rules.Classify(model.Record{Industry: "Venture Capital & Private Equity"}),
		"first matching rule wins")
	assert.Equal(t, "other", rules.Classify(model.Record{Industry: "Retail"}))
	assert.NoError(t, rules.Assignment().Validate())
}
