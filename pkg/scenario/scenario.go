// Package scenario defines the Scenario data model (spec §3): a flat bag of
// named fields substituted into question templates at render time.
package scenario

import "edsl/pkg/model"

// Scenario is one row of substitution data. Fields are opaque to the
// execution core (spec Non-goals: scenario construction/import is out of
// scope); only template rendering and cache fingerprinting interpret them.
type Scenario struct {
	Name   string
	Fields map[string]any
	Files  map[string]model.FileRef
}

// Field looks up a scalar field by dotted path (e.g. "profile.age"), used by
// the prompt renderer's {{ scenario.profile.age }} resolution.
func (s Scenario) Field(path []string) (any, bool) {
	var cur any = s.Fields
	for _, part := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// List is an ordered collection of scenarios, produced upstream of the
// execution core (e.g. from a CSV or dataframe importer) and treated here as
// an opaque sequence (spec Non-goals).
type List []Scenario

// Names returns the scenario names in order, used for ResultSet labeling.
func (l List) Names() []string {
	out := make([]string, len(l))
	for i, s := range l {
		out[i] = s.Name
	}
	return out
}
