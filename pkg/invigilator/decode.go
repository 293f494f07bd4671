package invigilator

import (
	"encoding/json"
	"strconv"
	"strings"

	"edsl/pkg/question"
)

// envelope is the optional structured shape a model may wrap its answer in:
// {"answer": ..., "comment": "...", "generated_tokens": "..."} (spec §4.7
// "the model may return a structured envelope separating the answer from a
// free-text comment"). decodeResponse also accepts a bare JSON value or plain
// text with no envelope at all.
type envelope struct {
	Answer          json.RawMessage `json:"answer"`
	Comment         string          `json:"comment"`
	GeneratedTokens string          `json:"generated_tokens"`
}

// decodeResponse turns a model's raw text output into a candidate answer
// value shaped the way pkg/validate expects for q's type, plus any
// free-text comment accompanying it.
func decodeResponse(q question.Question, raw string) (answer any, comment string) {
	trimmed := strings.TrimSpace(raw)

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err == nil && len(env.Answer) > 0 {
		return decodeValue(q, env.Answer), env.Comment
	}

	if v, ok := decodeBareJSON(q, trimmed); ok {
		return v, ""
	}

	return decodeScalar(q, trimmed), ""
}

// decodeValue decodes a json.RawMessage answer field into the Go shape q's
// validator expects.
func decodeValue(q question.Question, raw json.RawMessage) any {
	if v, ok := decodeBareJSON(q, string(raw)); ok {
		return v
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decodeScalar(q, s)
	}
	return string(raw)
}

// decodeBareJSON attempts to parse s as JSON and returns the decoded value
// when it parses to a shape meaningful for q's type (array, object, number,
// bool). A bare JSON string is intentionally NOT accepted here so it falls
// through to decodeScalar, which applies per-type scalar parsing (e.g.
// numerical text, comma-separated lists).
func decodeBareJSON(q question.Question, s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	switch s[0] {
	case '[', '{':
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v, true
		}
		return nil, false
	}
	switch q.Type {
	case question.TypeNumerical, question.TypeLinearScale, question.TypeLikertFive, question.TypeBudget:
		var f float64
		if err := json.Unmarshal([]byte(s), &f); err == nil {
			return f, true
		}
	case question.TypeYesNo:
		var b bool
		if err := json.Unmarshal([]byte(s), &b); err == nil {
			return b, true
		}
	}
	return nil, false
}

// decodeScalar applies per-type scalar parsing to a plain-text response,
// used when the model did not emit JSON at all (the common case for
// providers not using native structured output).
func decodeScalar(q question.Question, s string) any {
	switch q.Type {
	case question.TypeList, question.TypeCheckbox, question.TypeTopK, question.TypeRank:
		return splitLines(s)
	case question.TypeNumerical, question.TypeLinearScale, question.TypeLikertFive:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
		return s
	case question.TypeYesNo:
		return s
	default:
		return s
	}
}

// splitLines splits a multi-line or comma-separated plain-text list response
// into its items, trimming surrounding whitespace and common list markers.
func splitLines(s string) []string {
	sep := "\n"
	if !strings.Contains(s, "\n") && strings.Contains(s, ",") {
		sep = ","
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		t = strings.TrimPrefix(t, "- ")
		t = strings.TrimPrefix(t, "* ")
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
