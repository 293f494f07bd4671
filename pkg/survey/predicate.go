package survey

import (
	"fmt"
	"strconv"
	"strings"
)

// EvalContext is the state a rule predicate is evaluated against: the
// answers accumulated so far, keyed by question name, and whether the
// current question's turn ended in an unrecoverable validation failure
// (the reserved @exception variable, SPEC_FULL.md §D.3).
type EvalContext struct {
	Answers   map[string]any
	Exception bool
}

// Predicate is a boolean expression over prior answers (spec §4.1: "field
// selectors, comparisons, boolean connectives, membership").
type Predicate interface {
	Eval(ctx EvalContext) (bool, error)
}

// Always is the default predicate used for unconditional rules.
type Always struct{}

func (Always) Eval(EvalContext) (bool, error) { return true, nil }

// Not negates a predicate.
type Not struct{ P Predicate }

func (n Not) Eval(ctx EvalContext) (bool, error) {
	v, err := n.P.Eval(ctx)
	return !v, err
}

// And is a conjunction of predicates, short-circuiting on the first false.
type And []Predicate

func (a And) Eval(ctx EvalContext) (bool, error) {
	for _, p := range a {
		v, err := p.Eval(ctx)
		if err != nil {
			return false, err
		}
		if !v {
			return false, nil
		}
	}
	return true, nil
}

// Or is a disjunction of predicates, short-circuiting on the first true.
type Or []Predicate

func (o Or) Eval(ctx EvalContext) (bool, error) {
	for _, p := range o {
		v, err := p.Eval(ctx)
		if err != nil {
			return false, err
		}
		if v {
			return true, nil
		}
	}
	return false, nil
}

// ExceptionIs tests the reserved @exception variable.
type ExceptionIs bool

func (e ExceptionIs) Eval(ctx EvalContext) (bool, error) {
	return ctx.Exception == bool(e), nil
}

// CompareOp is a comparison operator over a field selector and a literal.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpGt CompareOp = ">"
	OpLt CompareOp = "<"
	OpGe CompareOp = ">="
	OpLe CompareOp = "<="
)

// Compare evaluates Field (a dotted path such as "q1.answer") against Value
// using Op. Field resolution walks ctx.Answers; "q1.answer" and "q1" are
// equivalent since an answer is stored directly under its question name.
type Compare struct {
	Field string
	Op    CompareOp
	Value any
}

func (c Compare) Eval(ctx EvalContext) (bool, error) {
	actual, ok := resolveField(ctx.Answers, c.Field)
	if !ok {
		return false, nil
	}
	switch c.Op {
	case OpEq:
		return looseEqual(actual, c.Value), nil
	case OpNe:
		return !looseEqual(actual, c.Value), nil
	case OpGt, OpLt, OpGe, OpLe:
		af, aok := toFloat(actual)
		bf, bok := toFloat(c.Value)
		if !aok || !bok {
			return false, fmt.Errorf("predicate: cannot compare non-numeric field %q", c.Field)
		}
		switch c.Op {
		case OpGt:
			return af > bf, nil
		case OpLt:
			return af < bf, nil
		case OpGe:
			return af >= bf, nil
		case OpLe:
			return af <= bf, nil
		}
	}
	return false, fmt.Errorf("predicate: unknown operator %q", c.Op)
}

// In is a membership test: Field's value must equal one of Values.
type In struct {
	Field  string
	Values []any
}

func (m In) Eval(ctx EvalContext) (bool, error) {
	actual, ok := resolveField(ctx.Answers, m.Field)
	if !ok {
		return false, nil
	}
	for _, v := range m.Values {
		if looseEqual(actual, v) {
			return true, nil
		}
	}
	return false, nil
}

func resolveField(answers map[string]any, path string) (any, bool) {
	if path == "@exception" {
		return nil, false // handled via ExceptionIs; not a field lookup
	}
	parts := strings.Split(path, ".")
	if len(parts) > 1 && parts[1] == "answer" {
		// "q1.answer" and bare "q1" both mean the stored answer for q1.
		parts = append(parts[:1], parts[2:]...)
	}
	var cur any = answers
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
