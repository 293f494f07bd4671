// Package resultset implements the Result Set (C10, spec §4.10): an ordered
// table of flattened Rows with a projection/filter/aggregate surface. Rows
// use the spec's dotted-column naming scheme directly
// (`answer.{question_name}`, `comment.{question_name}`, ...) rather than a
// typed struct per survey, so the same operations work over any survey's
// columns without codegen — grounded on the teacher's preference for small,
// composable, data-driven operations over generated per-schema types
// (`registry/store/memory/memory.go`'s map-of-any records).
package resultset

import (
	"fmt"
	"sort"
	"strings"

	"edsl/pkg/interview"
	"edsl/pkg/survey"
)

// Row is one flattened Interview Result (spec §4.10). Column names use the
// spec's dotted prefixes; values are plain Go values (string, float64, bool,
// []string, map[string]any, nil).
type Row map[string]any

// FromInterview flattens res into a Row, resolving each question's
// presentation fields (text, type, options) from s so the row is
// self-describing without a second lookup against the survey (spec §4.10's
// column list: `question_text.*`, `question_type.*`, `question_options.*`).
func FromInterview(res interview.Result, s *survey.Survey) Row {
	row := Row{
		"order":     res.Order,
		"iteration": res.Identity.Iteration,
		"model":     res.Identity.Model.ModelName,
		"service":   res.Identity.Model.Service,
	}
	if res.Identity.Agent != nil {
		row["agent.name"] = res.Identity.Agent.Name
		for k, v := range res.Identity.Agent.Traits {
			row["agent."+k] = v
		}
	}
	for k, v := range res.Identity.Scenario.Fields {
		row["scenario."+k] = v
	}

	for _, q := range s.Questions() {
		turn, ok := res.Turns[q.Name]
		if !ok {
			continue
		}
		row["answer."+q.Name] = turn.Answer
		row["comment."+q.Name] = turn.Comment
		row["question_text."+q.Name] = q.Text
		row["question_type."+q.Name] = string(q.Type)
		row["question_options."+q.Name] = q.Options
		row["prompt."+q.Name+"_user_prompt"] = turn.UserPrompt
		row["prompt."+q.Name+"_system_prompt"] = turn.SystemPrompt
		row["raw_model_response."+q.Name] = turn.RawModelResponse
		row["generated_tokens."+q.Name] = turn.GeneratedTokens
		row["cache_keys."+q.Name] = turn.CacheKey
		row["cache_used."+q.Name] = turn.CacheHit
		row["validated."+q.Name] = turn.Validated
	}

	if len(res.Exceptions) > 0 {
		exceptions := make([]string, len(res.Exceptions))
		for i, e := range res.Exceptions {
			exceptions[i] = fmt.Sprintf("%s:%s", e.QuestionName, e.Kind)
		}
		row["exceptions"] = exceptions
	}

	return row
}

// orderOf extracts a Row's "order" column as an int, defaulting to the
// largest possible value when absent so malformed rows sort last rather than
// panicking on insertion.
func orderOf(r Row) int {
	v, ok := r["order"]
	if !ok {
		return int(^uint(0) >> 1)
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return int(^uint(0) >> 1)
	}
}

// ResultSet is an ordered table of Rows (spec §4.10: "Result insertion is
// append-in-order; existing Results are immutable").
type ResultSet struct {
	rows []Row
}

// New constructs an empty ResultSet.
func New() *ResultSet { return &ResultSet{} }

// Insert adds row at its "order" index via sorted insertion, so the
// ResultSet iterates in canonical order regardless of completion order (spec
// §4.9 "Ordered assembly").
func (rs *ResultSet) Insert(row Row) {
	order := orderOf(row)
	i := sort.Search(len(rs.rows), func(i int) bool { return orderOf(rs.rows[i]) >= order })
	rs.rows = append(rs.rows, nil)
	copy(rs.rows[i+1:], rs.rows[i:])
	rs.rows[i] = row
}

// Rows returns the ResultSet's rows in canonical order. The returned slice
// must not be mutated by callers.
func (rs *ResultSet) Rows() []Row { return rs.rows }

// Len reports the number of rows.
func (rs *ResultSet) Len() int { return len(rs.rows) }

// Select projects each row down to the given columns, expanding a trailing
// "*" in a column name into a wildcard-prefix match over all columns present
// in that row (spec §4.10 "select (projection with wildcard prefixes)").
func (rs *ResultSet) Select(columns ...string) *ResultSet {
	out := &ResultSet{rows: make([]Row, 0, len(rs.rows))}
	for _, r := range rs.rows {
		out.rows = append(out.rows, selectRow(r, columns))
	}
	return out
}

func selectRow(r Row, columns []string) Row {
	projected := Row{}
	for _, col := range columns {
		if strings.HasSuffix(col, "*") {
			prefix := strings.TrimSuffix(col, "*")
			for k, v := range r {
				if strings.HasPrefix(k, prefix) {
					projected[k] = v
				}
			}
			continue
		}
		if v, ok := r[col]; ok {
			projected[col] = v
		}
	}
	return projected
}

// Filter returns the subset of rows for which pred returns true (spec §4.10
// "filter (predicate over columns)").
func (rs *ResultSet) Filter(pred func(Row) bool) *ResultSet {
	out := &ResultSet{}
	for _, r := range rs.rows {
		if pred(r) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// SortBy stably sorts rows by the given columns in order, ascending, using
// loose numeric-or-string comparison per column (spec §4.10 "sort by
// column(s)").
func (rs *ResultSet) SortBy(columns ...string) *ResultSet {
	out := &ResultSet{rows: append([]Row(nil), rs.rows...)}
	sort.SliceStable(out.rows, func(i, j int) bool {
		for _, col := range columns {
			c := compareValues(out.rows[i][col], out.rows[j][col])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return out
}

func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// AddColumn derives a new column from each row via fn, returning a new
// ResultSet (spec §4.10 "add/drop columns").
func (rs *ResultSet) AddColumn(name string, fn func(Row) any) *ResultSet {
	out := &ResultSet{rows: make([]Row, len(rs.rows))}
	for i, r := range rs.rows {
		nr := cloneRow(r)
		nr[name] = fn(r)
		out.rows[i] = nr
	}
	return out
}

// DropColumn removes the given columns from every row, returning a new
// ResultSet.
func (rs *ResultSet) DropColumn(names ...string) *ResultSet {
	out := &ResultSet{rows: make([]Row, len(rs.rows))}
	for i, r := range rs.rows {
		nr := cloneRow(r)
		for _, n := range names {
			delete(nr, n)
		}
		out.rows[i] = nr
	}
	return out
}

func cloneRow(r Row) Row {
	nr := make(Row, len(r))
	for k, v := range r {
		nr[k] = v
	}
	return nr
}

// Flatten expands a dict-valued column into one top-level column per key,
// named "{column}.{key}", and removes the original column (spec §4.10
// "flatten of dictionary-valued fields").
func (rs *ResultSet) Flatten(column string) *ResultSet {
	out := &ResultSet{rows: make([]Row, len(rs.rows))}
	for i, r := range rs.rows {
		nr := cloneRow(r)
		if v, ok := nr[column]; ok {
			if m, ok := v.(map[string]any); ok {
				for k, fv := range m {
					nr[column+"."+k] = fv
				}
				delete(nr, column)
			}
		}
		out.rows[i] = nr
	}
	return out
}

// Dedup removes rows that are equal across all of the given columns to an
// earlier row, preserving the first occurrence's position (spec §4.10
// "stable equality-based dedup"). With no columns given, full-row equality
// (via canonical string comparison of every column) is used.
func (rs *ResultSet) Dedup(columns ...string) *ResultSet {
	out := &ResultSet{}
	seen := make(map[string]bool, len(rs.rows))
	for _, r := range rs.rows {
		key := dedupKey(r, columns)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.rows = append(out.rows, r)
	}
	return out
}

func dedupKey(r Row, columns []string) string {
	keys := columns
	if len(keys) == 0 {
		keys = make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v\x1f", k, r[k])
	}
	return b.String()
}

