package resultset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleRows() []Row {
	return []Row{
		{"order": 0, "agent.name": "a1", "scenario.product": "coffee", "answer.q1": "yes", "score": 4.0},
		{"order": 1, "agent.name": "a2", "scenario.product": "tea", "answer.q1": "no", "score": 2.0},
		{"order": 2, "agent.name": "a1", "scenario.product": "coffee", "answer.q1": "yes", "score": 5.0},
	}
}

func newTestResultSet() *ResultSet {
	rs := New()
	for _, r := range sampleRows() {
		rs.Insert(r)
	}
	return rs
}

func TestInsertOrdersByOrderColumn(t *testing.T) {
	rs := New()
	rs.Insert(Row{"order": 2})
	rs.Insert(Row{"order": 0})
	rs.Insert(Row{"order": 1})

	var orders []int
	for _, r := range rs.Rows() {
		orders = append(orders, r["order"].(int))
	}
	require.Equal(t, []int{0, 1, 2}, orders)
}

func TestSelectWildcardPrefix(t *testing.T) {
	rs := newTestResultSet()
	projected := rs.Select("order", "answer.*")
	for _, r := range projected.Rows() {
		require.Contains(t, r, "order")
		require.Contains(t, r, "answer.q1")
		require.NotContains(t, r, "agent.name")
	}
}

func TestFilterPredicate(t *testing.T) {
	rs := newTestResultSet()
	filtered := rs.Filter(func(r Row) bool { return r["answer.q1"] == "yes" })
	require.Equal(t, 2, filtered.Len())
}

func TestSortByScoreAscending(t *testing.T) {
	rs := newTestResultSet()
	sorted := rs.SortBy("score")
	scores := make([]float64, sorted.Len())
	for i, r := range sorted.Rows() {
		scores[i] = r["score"].(float64)
	}
	require.Equal(t, []float64{2.0, 4.0, 5.0}, scores)
}

func TestGroupBySumAndCount(t *testing.T) {
	rs := newTestResultSet()
	grouped := rs.GroupBy([]string{"agent.name"}, []Aggregation{
		{Output: "total_score", Column: "score", Func: AggSum},
		{Output: "n", Column: "score", Func: AggCount},
	})
	require.Equal(t, 2, grouped.Len())
	for _, r := range grouped.Rows() {
		if r["agent.name"] == "a1" {
			require.Equal(t, 9.0, r["total_score"])
			require.Equal(t, 2, r["n"])
		}
	}
}

func TestDedupByColumns(t *testing.T) {
	rs := newTestResultSet()
	deduped := rs.Dedup("agent.name", "scenario.product")
	require.Equal(t, 2, deduped.Len())
}

func TestShuffleDeterministic(t *testing.T) {
	rs := newTestResultSet()
	a := rs.Shuffle(Seed{Lo: 42, Hi: 7})
	b := rs.Shuffle(Seed{Lo: 42, Hi: 7})
	require.Equal(t, a.Rows(), b.Rows())
}

func TestSampleClampsAndIsDeterministic(t *testing.T) {
	rs := newTestResultSet()
	a := rs.Sample(10, Seed{Lo: 1, Hi: 2})
	require.Equal(t, 3, a.Len())

	b := rs.Sample(2, Seed{Lo: 1, Hi: 2})
	c := rs.Sample(2, Seed{Lo: 1, Hi: 2})
	require.Equal(t, b.Rows(), c.Rows())
}

func TestAddAndDropColumn(t *testing.T) {
	rs := newTestResultSet()
	withFlag := rs.AddColumn("liked", func(r Row) any { return r["answer.q1"] == "yes" })
	require.Equal(t, true, withFlag.Rows()[0]["liked"])

	dropped := withFlag.DropColumn("liked")
	require.NotContains(t, dropped.Rows()[0], "liked")
}

func TestFlattenDictColumn(t *testing.T) {
	rs := New()
	rs.Insert(Row{"order": 0, "meta": map[string]any{"a": 1, "b": 2}})
	flat := rs.Flatten("meta")
	require.Equal(t, 1, flat.Rows()[0]["meta.a"])
	require.Equal(t, 2, flat.Rows()[0]["meta.b"])
	require.NotContains(t, flat.Rows()[0], "meta")
}
