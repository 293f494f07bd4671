package validate

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"edsl/pkg/question"
)

// TestValidateIdempotence checks spec §8 invariant 5: "for every answer
// satisfying its schema, validate(answer) returns Valid(answer_normalized)
// with normalize(normalize(a)) == normalize(a))" — re-validating an already
// normalized answer must return the identical answer. It covers checkbox
// selections (option casing resolved to the catalog spelling) and numerical
// answers re-entered as float64.
// Grounded on the teacher's gopter-based property suite style
// (runtime/registry/cache_property_test.go: gopter.NewProperties +
// prop.ForAll over a hand-rolled generator).
func TestValidateIdempotence(t *testing.T) {
	options := []string{"alpha", "beta", "gamma", "delta"}
	q := question.Question{
		Name:    "q1",
		Type:    question.TypeCheckbox,
		Options: options,
		Constraints: question.Constraints{
			MinSelections: 1,
			MaxSelections: len(options),
		},
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("checkbox validation is idempotent once normalized", prop.ForAll(
		func(idxs []int) bool {
			selected := make([]string, 0, len(idxs))
			seen := make(map[string]bool)
			for _, i := range idxs {
				opt := options[i%len(options)]
				if !seen[opt] {
					seen[opt] = true
					selected = append(selected, opt)
				}
			}
			if len(selected) == 0 {
				selected = append(selected, options[0])
			}

			r := NewRegistry()
			first := r.Validate(context.Background(), q, selected)
			if !first.Valid {
				// MaxSelections/MinSelections violated by this draw; not a
				// counterexample to idempotence.
				return true
			}
			second := r.Validate(context.Background(), q, first.Answer)
			if !second.Valid {
				return false
			}
			return stringSliceEqual(first.Answer.([]string), second.Answer.([]string))
		},
		gen.SliceOf(gen.IntRange(0, len(options)-1)),
	))

	properties.Property("numerical validation is idempotent on float re-entry", prop.ForAll(
		func(n float64) bool {
			nq := question.Question{Name: "n1", Type: question.TypeNumerical}
			r := NewRegistry()
			first := r.Validate(context.Background(), nq, n)
			if !first.Valid {
				return false
			}
			second := r.Validate(context.Background(), nq, first.Answer)
			return second.Valid && second.Answer.(float64) == first.Answer.(float64)
		},
		gen.Float64Range(-1_000_000, 1_000_000),
	))

	properties.TestingRun(t)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
