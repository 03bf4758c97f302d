package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// placeholderFunc renders the n-th (1-based) bind parameter.
type placeholderFunc func(n int) string

func questionMark(int) string { return "?" }

func dollarN(n int) string { return fmt.Sprintf("$%d", n) }

// queryBuilder accumulates bind arguments for one statement.
type queryBuilder struct {
	ph   placeholderFunc
	args []any
}

func newQuery(ph placeholderFunc) *queryBuilder {
	return &queryBuilder{ph: ph}
}

func (q *queryBuilder) arg(v any) string {
	q.args = append(q.args, v)
	return q.ph(len(q.args))
}

func (q *queryBuilder) where(f RecordFilter) string {
	var conds []string
	if f.ExternalKey != "" {
		conds = append(conds, "external_key = "+q.arg(f.ExternalKey))
	}
	if f.Verified != nil {
		conds = append(conds, "verified = "+q.arg(*f.Verified))
	}
	if f.Priority != "" {
		conds = append(conds, "priority = "+q.arg(string(f.Priority)))
	}
	if f.HasPhone {
		conds = append(conds, "phone IS NOT NULL AND phone <> ''")
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func orderSQL(o Order) (string, error) {
	col := o.Column
	if col == "" {
		col = ColCreatedAt
	}
	if !knownColumns[col] {
		return "", eris.Errorf("store: cannot order by unknown column %q", col)
	}
	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir), nil
}

// setSQL renders "col = ?, ..." in a stable column order.
func (q *queryBuilder) setSQL(fields Fields) (string, error) {
	if len(fields) == 0 {
		return "", eris.New("store: empty update")
	}
	cols := make([]string, 0, len(fields))
	for c := range fields {
		if !knownColumns[c] || c == ColID || c == ColExternalKey || c == ColCreatedAt {
			return "", eris.Errorf("store: column %q cannot be updated", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " = " + q.arg(fields[c])
	}
	return strings.Join(parts, ", "), nil
}

func selectColumns() string {
	return strings.Join(recordColumns, ", ")
}

func insertSQL(ph placeholderFunc) string {
	marks := make([]string, len(recordColumns))
	for i := range recordColumns {
		marks[i] = ph(i + 1)
	}
	return fmt.Sprintf("INSERT INTO records (%s) VALUES (%s)", selectColumns(), strings.Join(marks, ", "))
}
