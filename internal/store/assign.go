package store

import (
	"strings"

	"github.com/rotisserie/eris"
)

// MatchOp is the comparison a Condition applies. All comparisons are
// case-insensitive.
type MatchOp int

const (
	// MatchEquals holds when the column equals any of the values.
	MatchEquals MatchOp = iota
	// MatchContains holds when the column contains any of the values.
	MatchContains
)

// Condition tests one column against a set of values.
type Condition struct {
	Column string
	Op     MatchOp
	Values []string
}

// Case is one row of a rule table: when Condition holds, assign Then.
type Case struct {
	When Condition
	Then string
}

// Assignment is an ordered rule table evaluated top to bottom, first match
// wins, Else when nothing matches. The same table runs in Go (Eval) and in
// SQL (BulkAssign) so bulk refreshes agree with per-record evaluation.
type Assignment struct {
	Column string
	Cases  []Case
	Else   string
}

// Validate rejects unknown columns and empty conditions.
func (a Assignment) Validate() error {
	if !knownColumns[a.Column] {
		return eris.Errorf("store: assignment to unknown column %q", a.Column)
	}
	for i, c := range a.Cases {
		if !knownColumns[c.When.Column] {
			return eris.Errorf("store: case %d tests unknown column %q", i, c.When.Column)
		}
		if len(c.When.Values) == 0 {
			return eris.Errorf("store: case %d has no values", i)
		}
	}
	return nil
}

// Eval applies the rule table to a row given as column → value.
func (a Assignment) Eval(row map[string]string) string {
	for _, c := range a.Cases {
		if c.When.holds(row[c.When.Column]) {
			return c.Then
		}
	}
	return a.Else
}

func (c Condition) holds(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, want := range c.Values {
		want = strings.ToLower(want)
		switch c.Op {
		case MatchEquals:
			if v == want {
				return true
			}
		case MatchContains:
			if strings.Contains(v, want) {
				return true
			}
		}
	}
	return false
}

// caseSQL renders the assignment as a CASE expression, appending its
// arguments to q.
func (q *queryBuilder) caseSQL(a Assignment) string {
	if len(a.Cases) == 0 {
		return q.arg(a.Else)
	}
	var b strings.Builder
	b.WriteString("CASE")
	for _, c := range a.Cases {
		col := "lower(trim(coalesce(" + c.When.Column + ", '')))"
		parts := make([]string, 0, len(c.When.Values))
		switch c.When.Op {
		case MatchEquals:
			ph := make([]string, len(c.When.Values))
			for i, v := range c.When.Values {
				ph[i] = q.arg(strings.ToLower(v))
			}
			parts = append(parts, col+" IN ("+strings.Join(ph, ", ")+")")
		case MatchContains:
			for _, v := range c.When.Values {
				parts = append(parts, col+" LIKE "+q.arg("%"+escapeLike(strings.ToLower(v))+"%")+` ESCAPE '\'`)
			}
		}
		b.WriteString(" WHEN (" + strings.Join(parts, " OR ") + ") THEN " + q.arg(c.Then))
	}
	b.WriteString(" ELSE " + q.arg(a.Else) + " END")
	return b.String()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
