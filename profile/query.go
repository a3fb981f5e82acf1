package profile

import (
	"strconv"
	"strings"

	"github.com/openhep/tensorprep"
)

// Query is a parsed row filter: a conjunction of numeric comparisons against
// named columns, e.g. "PT_ET > 0.5 and Eta <= 2.4".
type Query struct {
	clauses []clause
}

type clause struct {
	col string
	op  string
	val float64
}

// ParseQuery parses a filter expression. Each clause is
// "<column> <op> <number>" with op one of < <= > >= == !=, and clauses are
// joined with "and".
func ParseQuery(s string) (*Query, error) {
	q := &Query{}
	for _, part := range strings.Split(s, " and ") {
		fields := strings.Fields(part)
		if len(fields) != 3 {
			return nil, tensorprep.Configf("bad query clause %q: want <column> <op> <number>", part)
		}
		switch fields[1] {
		case "<", "<=", ">", ">=", "==", "!=":
		default:
			return nil, tensorprep.Configf("bad query operator %q in clause %q", fields[1], part)
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, tensorprep.Configf("bad query value %q in clause %q", fields[2], part)
		}
		q.clauses = append(q.clauses, clause{col: fields[0], op: fields[1], val: v})
	}
	return q, nil
}

// Bind resolves the query's column names against a concrete column list and
// returns a per-row predicate. Rows are matched positionally against columns.
func (q *Query) Bind(columns []string) (func(row []float64) bool, error) {
	idx := make([]int, len(q.clauses))
	for i, c := range q.clauses {
		idx[i] = -1
		for j, name := range columns {
			if name == c.col {
				idx[i] = j
				break
			}
		}
		if idx[i] == -1 {
			return nil, tensorprep.Configf("query column %q not present in table columns %v", c.col, columns)
		}
	}
	clauses := q.clauses
	return func(row []float64) bool {
		for i, c := range clauses {
			v := row[idx[i]]
			switch c.op {
			case "<":
				if !(v < c.val) {
					return false
				}
			case "<=":
				if !(v <= c.val) {
					return false
				}
			case ">":
				if !(v > c.val) {
					return false
				}
			case ">=":
				if !(v >= c.val) {
					return false
				}
			case "==":
				if v != c.val {
					return false
				}
			case "!=":
				if v == c.val {
					return false
				}
			}
		}
		return true
	}, nil
}
