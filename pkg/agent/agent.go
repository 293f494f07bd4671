// Package agent defines the Agent data model (spec §3): a named bag of
// traits plus optional direct-answer short-circuit functions.
package agent

import "edsl/pkg/question"

// Answer is a validated answer value in the shape question.TypeRecord.Shape
// describes for the question it answers.
type Answer = any

// DirectAnswerFunc is a short-circuit that bypasses model invocation for one
// question (spec "Agent direct-answer short-circuit"). It is called
// synchronously with the question, the active scenario fields, and the
// answers accumulated so far; its return value enters validation directly —
// no model call, no cache interaction, no bucket consumption.
type DirectAnswerFunc func(q question.Question, scenarioFields map[string]any, priorAnswers map[string]Answer) (Answer, bool)

// Agent is a mapping of trait name to value, plus optional direct-answer
// functions keyed by question name. Agents are immutable after construction
// and freely sharable across concurrent interviews.
type Agent struct {
	Name                       string
	Traits                     map[string]any
	TraitsPresentationTemplate string
	directAnswers              map[string]DirectAnswerFunc
	dynamicTraits              map[string]func(answers map[string]Answer) (any, bool)
}

// New constructs an Agent with the given name and traits.
func New(name string, traits map[string]any) *Agent {
	return &Agent{Name: name, Traits: traits}
}

// WithDirectAnswer registers a direct-answer short-circuit for questionName
// and returns the same Agent for chaining.
func (a *Agent) WithDirectAnswer(questionName string, fn DirectAnswerFunc) *Agent {
	if a.directAnswers == nil {
		a.directAnswers = make(map[string]DirectAnswerFunc)
	}
	a.directAnswers[questionName] = fn
	return a
}

// DirectAnswer returns the direct-answer function registered for
// questionName, if any.
func (a *Agent) DirectAnswer(questionName string) (DirectAnswerFunc, bool) {
	fn, ok := a.directAnswers[questionName]
	return fn, ok
}

// WithDynamicTrait registers a trait that is computed from the answers
// accumulated so far rather than fixed at construction (SPEC_FULL.md §D.4).
// It lets an agent's persona evolve mid-interview, e.g. a "frustration"
// trait derived from how many prior answers expressed dissatisfaction.
func (a *Agent) WithDynamicTrait(name string, fn func(answers map[string]Answer) (any, bool)) *Agent {
	if a.dynamicTraits == nil {
		a.dynamicTraits = make(map[string]func(map[string]Answer) (any, bool))
	}
	a.dynamicTraits[name] = fn
	return a
}

// DynamicTrait evaluates a dynamic trait against the answers accumulated so
// far. It falls back to the static Traits map when no dynamic function is
// registered under name.
func (a *Agent) DynamicTrait(name string, answers map[string]Answer) (any, bool) {
	if fn, ok := a.dynamicTraits[name]; ok {
		return fn(answers)
	}
	v, ok := a.Traits[name]
	return v, ok
}

// DynamicTraitNames returns the names of every trait registered via
// WithDynamicTrait, so a caller (the Prompt Renderer) can resolve them
// eagerly against the answers accumulated so far rather than only on a
// cache-miss lookup by name.
func (a *Agent) DynamicTraitNames() []string {
	names := make([]string, 0, len(a.dynamicTraits))
	for name := range a.dynamicTraits {
		names = append(names, name)
	}
	return names
}

// Hash identifies this agent's content for interview-identity hashing (spec
// "initial_hash ... content hash of (survey_id, agent_hash, scenario_hash,
// model_identity, iteration)"). Direct-answer and dynamic-trait functions
// are not hashed: two agents with identical traits but different behavior
// functions are treated as identical for dedup purposes, matching the
// spec's definition of agent identity as its trait mapping.
func (a *Agent) Hash() (string, error) {
	return hashTraits(a.Name, a.Traits)
}
