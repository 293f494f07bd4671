package survey

import (
	"encoding/json"
	"fmt"

	"edsl/pkg/question"
)

// wireRule mirrors Rule but carries Predicate as a tagged JSON variant so a
// Survey round-trips through storage (e.g. a cache or a resumable job
// descriptor) without losing predicate semantics, following the same
// Kind-discriminator approach used elsewhere in the runtime for interface
// fields.
type wireRule struct {
	From      string          `json:"from"`
	Predicate json.RawMessage `json:"predicate"`
	To        string          `json:"to"`
	Priority  int             `json:"priority"`
}

type wireSurvey struct {
	ID        string               `json:"id"`
	Questions []question.Question  `json:"questions"`
	Rules     []wireRule           `json:"rules"`
	Memory    map[string][]string  `json:"memory"`
	Groups    map[string]Group     `json:"groups"`
}

// MarshalJSON encodes the Survey for persistence or transport.
func (s *Survey) MarshalJSON() ([]byte, error) {
	w := wireSurvey{
		ID:        s.ID,
		Questions: s.questions,
		Memory:    s.memory,
		Groups:    s.groups,
	}
	for _, r := range s.rules {
		pb, err := encodePredicate(r.Predicate)
		if err != nil {
			return nil, fmt.Errorf("encode rule from %q: %w", r.From, err)
		}
		w.Rules = append(w.Rules, wireRule{From: r.From, Predicate: pb, To: r.To, Priority: r.Priority})
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a Survey previously produced by MarshalJSON and
// re-establishes its internal index so Next/MemoryFor behave identically to
// a Survey built via AddQuestion/AddRule.
func (s *Survey) UnmarshalJSON(data []byte) error {
	var w wireSurvey
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = *New(w.ID)
	for _, q := range w.Questions {
		if err := s.AddQuestion(q); err != nil {
			return err
		}
	}
	for name, priors := range w.Memory {
		if err := s.SetMemory(name, priors...); err != nil {
			return err
		}
	}
	for name, g := range w.Groups {
		if g.Start < 0 || g.End > len(s.questions) {
			return fmt.Errorf("survey %q: group %q: out of range", s.ID, name)
		}
		s.groups[name] = g
	}
	for _, wr := range w.Rules {
		p, err := decodePredicate(wr.Predicate)
		if err != nil {
			return fmt.Errorf("decode rule from %q: %w", wr.From, err)
		}
		if err := s.AddRule(Rule{From: wr.From, Predicate: p, To: wr.To, Priority: wr.Priority}); err != nil {
			return err
		}
	}
	return nil
}

type predicateEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encodePredicate(p Predicate) (json.RawMessage, error) {
	switch v := p.(type) {
	case Always:
		return marshalEnvelope("always", nil)
	case ExceptionIs:
		return marshalEnvelope("exception_is", v)
	case Compare:
		return marshalEnvelope("compare", v)
	case In:
		return marshalEnvelope("in", v)
	case Not:
		inner, err := encodePredicate(v.P)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("not", json.RawMessage(inner))
	case And:
		items, err := encodePredicateList([]Predicate(v))
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("and", items)
	case Or:
		items, err := encodePredicateList([]Predicate(v))
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("or", items)
	default:
		return nil, fmt.Errorf("unsupported predicate type %T", p)
	}
}

func encodePredicateList(ps []Predicate) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(ps))
	for _, p := range ps {
		b, err := encodePredicate(p)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func marshalEnvelope(kind string, data any) (json.RawMessage, error) {
	db, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(predicateEnvelope{Kind: kind, Data: db})
}

func decodePredicate(raw json.RawMessage) (Predicate, error) {
	if len(raw) == 0 {
		return Always{}, nil
	}
	var env predicateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case "always", "":
		return Always{}, nil
	case "exception_is":
		var v ExceptionIs
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "compare":
		var v Compare
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "in":
		var v In
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "not":
		var inner json.RawMessage
		if err := json.Unmarshal(env.Data, &inner); err != nil {
			return nil, err
		}
		p, err := decodePredicate(inner)
		if err != nil {
			return nil, err
		}
		return Not{P: p}, nil
	case "and":
		ps, err := decodePredicateList(env.Data)
		if err != nil {
			return nil, err
		}
		return And(ps), nil
	case "or":
		ps, err := decodePredicateList(env.Data)
		if err != nil {
			return nil, err
		}
		return Or(ps), nil
	default:
		return nil, fmt.Errorf("unknown predicate kind %q", env.Kind)
	}
}

func decodePredicateList(raw json.RawMessage) ([]Predicate, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, err
	}
	out := make([]Predicate, 0, len(raws))
	for _, r := range raws {
		p, err := decodePredicate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
