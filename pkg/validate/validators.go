package validate

import (
	"sort"
	"strings"

	"edsl/pkg/question"
)

func optionMatch(options []string, raw string) (string, bool) {
	for _, o := range options {
		if o == raw {
			return o, true
		}
	}
	for _, o := range options {
		if strings.EqualFold(o, raw) {
			return o, true
		}
	}
	return "", false
}

func validateChoice(q question.Question, raw any, allowOther bool) Result {
	s, ok := asString(raw)
	if !ok {
		return invalid(ErrorKindSchemaMismatch, "expected string")
	}
	if q.Constraints.Permissive {
		return Result{Valid: true, Answer: s}
	}
	if match, ok := optionMatch(q.Options, s); ok {
		return Result{Valid: true, Answer: match}
	}
	if allowOther {
		return Result{Valid: true, Answer: s}
	}
	return invalid(ErrorKindUnknownOption, "answer not among question_options")
}

func validateYesNo(raw any) Result {
	switch v := raw.(type) {
	case bool:
		if v {
			return Result{Valid: true, Answer: "Yes"}
		}
		return Result{Valid: true, Answer: "No"}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "y", "true":
			return Result{Valid: true, Answer: "Yes"}
		case "no", "n", "false":
			return Result{Valid: true, Answer: "No"}
		}
	}
	return invalid(ErrorKindUnknownOption, "expected Yes or No")
}

func toStringSlice(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := asString(e)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		var out []string
		for _, p := range strings.Split(v, ",") {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func validateCheckbox(q question.Question, raw any) Result {
	items, ok := toStringSlice(raw)
	if !ok {
		return invalid(ErrorKindSchemaMismatch, "expected a list of selections")
	}
	var resolved []string
	for _, it := range items {
		if q.Constraints.Permissive {
			resolved = append(resolved, it)
			continue
		}
		m, ok := optionMatch(q.Options, it)
		if !ok {
			return invalid(ErrorKindUnknownOption, "selection not among question_options: "+it)
		}
		resolved = append(resolved, m)
	}
	if q.Constraints.MinSelections > 0 && len(resolved) < q.Constraints.MinSelections {
		return invalid(ErrorKindOutOfRange, "too few selections")
	}
	if q.Constraints.MaxSelections > 0 && len(resolved) > q.Constraints.MaxSelections {
		return invalid(ErrorKindOutOfRange, "too many selections")
	}
	return Result{Valid: true, Answer: resolved}
}

func validateTopK(q question.Question, raw any) Result {
	items, ok := toStringSlice(raw)
	if !ok {
		return invalid(ErrorKindSchemaMismatch, "expected a ranked list")
	}
	k := q.Constraints.MaxSelections
	if k > 0 && len(items) > k {
		items = items[:k]
	}
	return Result{Valid: true, Answer: items}
}

func toNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		return parseFloatLoose(v)
	default:
		return 0, false
	}
}

func validateNumerical(q question.Question, raw any) Result {
	n, ok := toNumber(raw)
	if !ok {
		return invalid(ErrorKindUnparseable, "expected a number")
	}
	if q.Constraints.MinValue != nil && n < *q.Constraints.MinValue {
		return invalid(ErrorKindOutOfRange, "below min_value")
	}
	if q.Constraints.MaxValue != nil && n > *q.Constraints.MaxValue {
		return invalid(ErrorKindOutOfRange, "above max_value")
	}
	return Result{Valid: true, Answer: n}
}

func validateScale(q question.Question, raw any) Result {
	if n, ok := toNumber(raw); ok {
		return checkScaleBounds(q, n)
	}
	if s, ok := asString(raw); ok {
		if n, ok := resolveScaleLabel(q, s); ok {
			return checkScaleBounds(q, n)
		}
	}
	return invalid(ErrorKindUnparseable, "expected an integer scale value or label")
}

func checkScaleBounds(q question.Question, n float64) Result {
	if q.Constraints.MinValue != nil && n < *q.Constraints.MinValue {
		return invalid(ErrorKindOutOfRange, "below scale minimum")
	}
	if q.Constraints.MaxValue != nil && n > *q.Constraints.MaxValue {
		return invalid(ErrorKindOutOfRange, "above scale maximum")
	}
	return Result{Valid: true, Answer: n}
}

// resolveScaleLabel resolves a textual label to its scale integer via
// exact -> case-insensitive -> substring matching (spec §4.3).
func resolveScaleLabel(q question.Question, s string) (float64, bool) {
	trimmed := strings.TrimSpace(s)
	for v, label := range q.Constraints.ScaleLabels {
		if label == trimmed {
			return float64(v), true
		}
	}
	lower := strings.ToLower(trimmed)
	for v, label := range q.Constraints.ScaleLabels {
		if strings.ToLower(label) == lower {
			return float64(v), true
		}
	}
	var bestV float64
	bestLen := -1
	for v, label := range q.Constraints.ScaleLabels {
		ll := strings.ToLower(label)
		if strings.Contains(lower, ll) && len(ll) > bestLen {
			bestV, bestLen = float64(v), len(ll)
		}
	}
	if bestLen >= 0 {
		return bestV, true
	}
	return 0, false
}

func validateList(q question.Question, raw any) Result {
	items, ok := toStringSlice(raw)
	if !ok {
		return invalid(ErrorKindSchemaMismatch, "expected a list")
	}
	if q.Constraints.MinListItems > 0 && len(items) < q.Constraints.MinListItems {
		return invalid(ErrorKindOutOfRange, "too few items")
	}
	if q.Constraints.MaxListItems > 0 && len(items) > q.Constraints.MaxListItems {
		return invalid(ErrorKindOutOfRange, "too many items")
	}
	return Result{Valid: true, Answer: items}
}

func validateDict(q question.Question, raw any) Result {
	m, ok := raw.(map[string]any)
	if !ok {
		return invalid(ErrorKindSchemaMismatch, "expected an object")
	}
	if len(q.Constraints.DictFields) == 0 {
		return Result{Valid: true, Answer: m}
	}
	for _, f := range q.Constraints.DictFields {
		v, ok := m[f.Name]
		if !ok {
			return invalid(ErrorKindSchemaMismatch, "missing field "+f.Name)
		}
		if !fieldTypeMatches(f.Type, v) {
			return invalid(ErrorKindSchemaMismatch, "field "+f.Name+" has wrong type")
		}
	}
	return Result{Valid: true, Answer: m}
}

func fieldTypeMatches(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := toNumber(v)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "list":
		_, ok := v.([]any)
		return ok
	case "dict":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

func validateMatrix(q question.Question, raw any) Result {
	rows, ok := raw.(map[string]any)
	if !ok {
		return invalid(ErrorKindSchemaMismatch, "expected a row->selection object")
	}
	resolved := make(map[string]any, len(rows))
	for row, sel := range rows {
		s, ok := asString(sel)
		if !ok {
			return invalid(ErrorKindSchemaMismatch, "row "+row+" selection must be a string")
		}
		if q.Constraints.Permissive {
			resolved[row] = s
			continue
		}
		m, ok := optionMatch(q.Options, s)
		if !ok {
			return invalid(ErrorKindUnknownOption, "row "+row+" selection not among question_options")
		}
		resolved[row] = m
	}
	return Result{Valid: true, Answer: resolved}
}

func validateRank(q question.Question, raw any) Result {
	items, ok := toStringSlice(raw)
	if !ok {
		return invalid(ErrorKindSchemaMismatch, "expected a ranked list")
	}
	seen := make(map[string]bool, len(items))
	var deduped []string
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		deduped = append(deduped, it)
	}
	if len(q.Options) > 0 {
		for _, it := range deduped {
			if _, ok := optionMatch(q.Options, it); !ok {
				return invalid(ErrorKindUnknownOption, "rank item not among question_options: "+it)
			}
		}
	}
	return Result{Valid: true, Answer: deduped}
}

func validateBudget(q question.Question, raw any) Result {
	m, ok := raw.(map[string]any)
	if !ok {
		return invalid(ErrorKindSchemaMismatch, "expected an allocation object")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	resolved := make(map[string]float64, len(m))
	var total float64
	for _, k := range keys {
		n, ok := toNumber(m[k])
		if !ok || n < 0 {
			return invalid(ErrorKindSchemaMismatch, "allocation to "+k+" must be a non-negative number")
		}
		resolved[k] = n
		total += n
	}
	tol := q.Constraints.BudgetTolerance
	if tol == 0 {
		tol = 0.01
	}
	if q.Constraints.BudgetTotal > 0 {
		diff := total - q.Constraints.BudgetTotal
		if diff < -tol || diff > tol {
			return invalid(ErrorKindOutOfRange, "allocation does not sum to the declared budget")
		}
	}
	out := make(map[string]any, len(resolved))
	for k, v := range resolved {
		out[k] = v
	}
	return Result{Valid: true, Answer: out}
}
