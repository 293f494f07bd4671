// Package survey implements the Survey DAG (spec §4.1, §9 C9): an ordered
// sequence of questions plus skip/stop rules and a memory plan, with
// construction-time validation and a next()/memory_for() flow API.
package survey

import (
	"fmt"
	"sort"

	"edsl/pkg/question"
)

// End is the sentinel next-question naming survey termination.
const End = ""

// Rule is one (from-question, predicate, next-question-or-END) edge (spec
// §4.1). Rules added later take priority over earlier ones at equal
// Priority; an explicit Priority overrides insertion order.
type Rule struct {
	From      string
	Predicate Predicate
	To        string
	Priority  int

	seq int // insertion sequence, used as the priority tie-break
}

// Group names a contiguous span of questions by source-order index range
// [Start, End).
type Group struct {
	Start, End int
}

// Survey is an ordered sequence of Questions plus rules, a memory plan, and
// named question groups. A Survey is immutable once Validate succeeds;
// callers should not mutate it concurrently with Interview execution.
type Survey struct {
	ID        string
	questions []question.Question
	index     map[string]int
	rules     []Rule
	memory    map[string][]string
	groups    map[string]Group
	ruleSeq   int
}

// New constructs an empty Survey identified by id.
func New(id string) *Survey {
	return &Survey{
		ID:     id,
		index:  make(map[string]int),
		memory: make(map[string][]string),
		groups: make(map[string]Group),
	}
}

// AddQuestion appends q to the survey. Returns an error if q fails its own
// Validate or if its name collides with an existing question.
func (s *Survey) AddQuestion(q question.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if _, exists := s.index[q.Name]; exists {
		return fmt.Errorf("survey %q: duplicate question name %q", s.ID, q.Name)
	}
	s.index[q.Name] = len(s.questions)
	s.questions = append(s.questions, q)
	return nil
}

// AddRule registers a flow rule. The target question (or End) is checked at
// Validate time, not here, since rules may be added before their target
// question exists.
func (s *Survey) AddRule(r Rule) error {
	if _, ok := s.index[r.From]; !ok {
		return fmt.Errorf("survey %q: rule from unknown question %q", s.ID, r.From)
	}
	if r.Predicate == nil {
		r.Predicate = Always{}
	}
	s.ruleSeq++
	r.seq = s.ruleSeq
	s.rules = append(s.rules, r)
	return nil
}

// SetMemory declares the ordered set of prior question names whose
// (text, answer) pairs must be visible when rendering question.
func (s *Survey) SetMemory(questionName string, priorQuestionNames ...string) error {
	if _, ok := s.index[questionName]; !ok {
		return fmt.Errorf("survey %q: memory target unknown question %q", s.ID, questionName)
	}
	s.memory[questionName] = append([]string(nil), priorQuestionNames...)
	return nil
}

// AddGroup names the contiguous span of questions [fromName, toName]
// inclusive, in source order.
func (s *Survey) AddGroup(name, fromName, toName string) error {
	from, ok := s.index[fromName]
	if !ok {
		return fmt.Errorf("survey %q: group %q: unknown start question %q", s.ID, name, fromName)
	}
	to, ok := s.index[toName]
	if !ok {
		return fmt.Errorf("survey %q: group %q: unknown end question %q", s.ID, name, toName)
	}
	if to < from {
		return fmt.Errorf("survey %q: group %q: end precedes start", s.ID, name)
	}
	s.groups[name] = Group{Start: from, End: to + 1}
	return nil
}

// Questions returns the questions in source order. The returned slice must
// not be mutated by callers.
func (s *Survey) Questions() []question.Question { return s.questions }

// Question looks up a question by name.
func (s *Survey) Question(name string) (question.Question, bool) {
	i, ok := s.index[name]
	if !ok {
		return question.Question{}, false
	}
	return s.questions[i], true
}

// First returns the name of the first question, or End if the survey is
// empty.
func (s *Survey) First() string {
	if len(s.questions) == 0 {
		return End
	}
	return s.questions[0].Name
}

// Next implements Survey.next(current_question, answers_so_far) → next |
// END (spec §4.1): rules whose From equals current are tested in priority
// order (higher Priority first, then most-recently-added first); the first
// whose predicate holds wins. Absent a match, the next question in source
// order is chosen, or End if current was last.
func (s *Survey) Next(current string, ctx EvalContext) (string, error) {
	var matching []Rule
	for _, r := range s.rules {
		if r.From == current {
			matching = append(matching, r)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		if matching[i].Priority != matching[j].Priority {
			return matching[i].Priority > matching[j].Priority
		}
		return matching[i].seq > matching[j].seq
	})
	for _, r := range matching {
		ok, err := r.Predicate.Eval(ctx)
		if err != nil {
			return End, err
		}
		if ok {
			return r.To, nil
		}
	}
	i, ok := s.index[current]
	if !ok {
		return End, fmt.Errorf("survey %q: unknown current question %q", s.ID, current)
	}
	if i+1 >= len(s.questions) {
		return End, nil
	}
	return s.questions[i+1].Name, nil
}

// MemoryPair is one entry of a rendered memory plan: the prior question and
// the answer given to it.
type MemoryPair struct {
	Question question.Question
	Answer   any
}

// MemoryFor returns the ordered (question, answer) pairs declared for
// questionName's memory plan (spec "Survey.memory_for"), resolved against
// answers. Questions with no declared answer yet are omitted.
func (s *Survey) MemoryFor(questionName string, answers map[string]any) []MemoryPair {
	names := s.memory[questionName]
	out := make([]MemoryPair, 0, len(names))
	for _, n := range names {
		q, ok := s.Question(n)
		if !ok {
			continue
		}
		a, ok := answers[n]
		if !ok {
			continue
		}
		out = append(out, MemoryPair{Question: q, Answer: a})
	}
	return out
}

// Validate checks the construction-time invariants of spec §4.1: DAG
// reachability from the first question, rule targets known, memory
// references backward-only, and question-name uniqueness (already enforced
// incrementally by AddQuestion).
func (s *Survey) Validate() error {
	for _, r := range s.rules {
		if r.To != End {
			if _, ok := s.index[r.To]; !ok {
				return fmt.Errorf("survey %q: rule from %q targets unknown question %q", s.ID, r.From, r.To)
			}
		}
	}
	for target, priors := range s.memory {
		ti, ok := s.index[target]
		if !ok {
			return fmt.Errorf("survey %q: memory declared for unknown question %q", s.ID, target)
		}
		for _, p := range priors {
			pi, ok := s.index[p]
			if !ok {
				return fmt.Errorf("survey %q: memory for %q references unknown question %q", s.ID, target, p)
			}
			if pi >= ti {
				return fmt.Errorf("survey %q: memory for %q references non-backward question %q", s.ID, target, p)
			}
		}
	}
	if err := s.checkReachability(); err != nil {
		return err
	}
	return nil
}

// checkReachability walks the DAG from First() using only the default
// (no-rule) fallthrough plus declared rule targets, confirming every
// question is reachable via some combination of answers. Because rule
// predicates are data-dependent, reachability is checked structurally: a
// question is reachable if it is the first question, the default successor
// of a reachable question, or the explicit target of a rule whose From is
// reachable.
func (s *Survey) checkReachability() error {
	if len(s.questions) == 0 {
		return nil
	}
	reachable := map[string]bool{s.First(): true}
	changed := true
	for changed {
		changed = false
		for i, q := range s.questions {
			if !reachable[q.Name] {
				continue
			}
			if i+1 < len(s.questions) {
				next := s.questions[i+1].Name
				if !reachable[next] {
					reachable[next] = true
					changed = true
				}
			}
		}
		for _, r := range s.rules {
			if reachable[r.From] && r.To != End && !reachable[r.To] {
				reachable[r.To] = true
				changed = true
			}
		}
	}
	for _, q := range s.questions {
		if !reachable[q.Name] {
			return fmt.Errorf("survey %q: question %q is unreachable", s.ID, q.Name)
		}
	}
	return nil
}

// QuestionGroups returns the declared named spans.
func (s *Survey) QuestionGroups() map[string]Group { return s.groups }

// IndexOf returns the source-order index of a question name.
func (s *Survey) IndexOf(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}
