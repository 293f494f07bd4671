package resultset

import (
	"fmt"
	"sort"
)

// AggFunc is a column aggregation applied within a group (spec §4.10
// "groupby-aggregate (sum/mean/min/max/count/first/list)").
type AggFunc string

const (
	AggSum   AggFunc = "sum"
	AggMean  AggFunc = "mean"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
	AggCount AggFunc = "count"
	AggFirst AggFunc = "first"
	AggList  AggFunc = "list"
)

// Aggregation names the output column and the (source column, function)
// pair producing it.
type Aggregation struct {
	Output string
	Column string
	Func   AggFunc
}

// GroupBy partitions rows by the given columns' values and applies each
// aggregation to every group, producing one output row per distinct group
// (columns ordered the same as the first row observed for each group, plus
// the aggregation outputs). Group order follows first appearance, matching
// the ResultSet's otherwise append-in-order semantics.
func (rs *ResultSet) GroupBy(columns []string, aggs []Aggregation) *ResultSet {
	type group struct {
		key  Row
		rows []Row
	}
	order := make([]string, 0)
	groups := make(map[string]*group)

	for _, r := range rs.rows {
		key := make(Row, len(columns))
		for _, c := range columns {
			key[c] = r[c]
		}
		k := dedupKey(key, columns)
		g, ok := groups[k]
		if !ok {
			g = &group{key: key}
			groups[k] = g
			order = append(order, k)
		}
		g.rows = append(g.rows, r)
	}

	out := &ResultSet{rows: make([]Row, 0, len(order))}
	for _, k := range order {
		g := groups[k]
		row := cloneRow(g.key)
		for _, a := range aggs {
			row[a.Output] = aggregate(g.rows, a.Column, a.Func)
		}
		out.rows = append(out.rows, row)
	}
	return out
}

func aggregate(rows []Row, column string, fn AggFunc) any {
	switch fn {
	case AggCount:
		return len(rows)
	case AggFirst:
		if len(rows) == 0 {
			return nil
		}
		return rows[0][column]
	case AggList:
		vals := make([]any, len(rows))
		for i, r := range rows {
			vals[i] = r[column]
		}
		return vals
	case AggSum, AggMean, AggMin, AggMax:
		return numericAggregate(rows, column, fn)
	default:
		panic(fmt.Sprintf("resultset: unknown aggregation %q", fn))
	}
}

func numericAggregate(rows []Row, column string, fn AggFunc) float64 {
	var sum float64
	var min, max float64
	n := 0
	for _, r := range rows {
		f, ok := toFloat(r[column])
		if !ok {
			continue
		}
		if n == 0 {
			min, max = f, f
		} else {
			if f < min {
				min = f
			}
			if f > max {
				max = f
			}
		}
		sum += f
		n++
	}
	switch fn {
	case AggSum:
		return sum
	case AggMean:
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	case AggMin:
		return min
	case AggMax:
		return max
	default:
		return 0
	}
}

// Columns returns the set of distinct column names present across all rows,
// sorted, used by callers building reports over a ResultSet whose schema is
// only known at runtime.
func (rs *ResultSet) Columns() []string {
	set := make(map[string]bool)
	for _, r := range rs.rows {
		for k := range r {
			set[k] = true
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
