package validate

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"edsl/pkg/question"
)

// repair applies q's deterministic repair strategy (spec §4.3 item 2) to a
// raw value that failed its first validation pass. It returns the repaired
// value and true when a strategy could produce a plausibly-valid value;
// false means repair could not help and the turn should fail validation.
func repair(q question.Question, raw any) (any, bool) {
	rec, ok := question.Catalog[q.Type]
	if !ok {
		return nil, false
	}
	switch rec.RepairStrategy {
	case "trim_and_wrap":
		if s, ok := asString(raw); ok {
			return strings.TrimSpace(s), true
		}
		return nil, false
	case "nearest_option", "nearest_option_or_other":
		s, ok := extractText(raw)
		if !ok {
			return nil, false
		}
		return strings.TrimSpace(s), true
	case "coerce_bool":
		if s, ok := extractText(raw); ok {
			return s, true
		}
		return nil, false
	case "filter_known_options":
		items, ok := toStringSlice(raw)
		if !ok {
			if s, ok := extractText(raw); ok {
				items, _ = toStringSlice(s)
			}
		}
		if items == nil {
			return nil, false
		}
		var kept []string
		for _, it := range items {
			if m, ok := optionMatch(q.Options, it); ok {
				kept = append(kept, m)
			}
		}
		return kept, len(kept) > 0
	case "truncate_to_k":
		items, ok := toStringSlice(raw)
		if !ok {
			return nil, false
		}
		return items, true
	case "extract_number":
		s, ok := extractText(raw)
		if !ok {
			return nil, false
		}
		m := numberRe.FindString(s)
		if m == "" {
			return nil, false
		}
		n, ok := parseFloatLoose(m)
		if !ok {
			return nil, false
		}
		return n, true
	case "clamp_to_scale":
		n, ok := toNumber(raw)
		if !ok {
			if s, ok := extractText(raw); ok {
				m := numberRe.FindString(s)
				n, ok = parseFloatLoose(m)
				if !ok {
					return nil, false
				}
			} else {
				return nil, false
			}
		}
		if q.Constraints.MinValue != nil && n < *q.Constraints.MinValue {
			n = *q.Constraints.MinValue
		}
		if q.Constraints.MaxValue != nil && n > *q.Constraints.MaxValue {
			n = *q.Constraints.MaxValue
		}
		return n, true
	case "split_to_list":
		items, ok := toStringSlice(raw)
		if !ok {
			return nil, false
		}
		return items, true
	case "coerce_fields":
		if m, ok := extractJSONObject(raw); ok {
			return m, true
		}
		return nil, false
	case "coerce_rows":
		if m, ok := extractJSONObject(raw); ok {
			return m, true
		}
		return nil, false
	case "dedupe_rank":
		items, ok := toStringSlice(raw)
		if !ok {
			return nil, false
		}
		return items, true
	case "renormalize_budget":
		m, ok := extractJSONObject(raw)
		if !ok {
			return nil, false
		}
		return renormalize(q, m), true
	case "schema_repair":
		if m, ok := extractJSONObject(raw); ok {
			return m, true
		}
		return nil, false
	default:
		return nil, false
	}
}

var numberRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

func parseFloatLoose(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func extractText(raw any) (string, bool) {
	if s, ok := raw.(string); ok {
		return s, true
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// jsonObjectRe finds the first {...} span in free text, used to recover a
// JSON object a model wrapped in prose or code fences (spec §4.3: "Parse a
// JSON-looking substring out of the raw text").
var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

func extractJSONObject(raw any) (map[string]any, bool) {
	if m, ok := raw.(map[string]any); ok {
		return m, true
	}
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	match := jsonObjectRe.FindString(s)
	if match == "" {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(match), &m); err != nil {
		return nil, false
	}
	return m, true
}

func renormalize(q question.Question, m map[string]any) map[string]any {
	if q.Constraints.BudgetTotal <= 0 {
		return m
	}
	var total float64
	nums := make(map[string]float64, len(m))
	for k, v := range m {
		if n, ok := toNumber(v); ok && n >= 0 {
			nums[k] = n
			total += n
		}
	}
	if total == 0 {
		return m
	}
	scale := q.Constraints.BudgetTotal / total
	out := make(map[string]any, len(nums))
	for k, n := range nums {
		out[k] = n * scale
	}
	return out
}
