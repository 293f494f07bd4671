package prompt

import (
	"fmt"
	"strings"

	"edsl/pkg/agent"
	"edsl/pkg/question"
	"edsl/pkg/scenario"
	"edsl/pkg/survey"
)

// defaultAgentInstructions is used when an agent has no
// TraitsPresentationTemplate (spec §4.2: "Agent instruction template (from
// the agent, or a default if absent)").
const defaultAgentInstructions = "You are answering a survey question. Respond only as instructed; do not break character."

// Renderer produces (system_prompt, user_prompt) pairs for a question turn
// (spec §4.2, §9 C1).
type Renderer struct {
	cache *Cache
}

// NewRenderer constructs a Renderer backed by a Cache of the given capacity.
func NewRenderer(templateCacheCapacity int) (*Renderer, error) {
	c, err := NewCache(templateCacheCapacity)
	if err != nil {
		return nil, err
	}
	return &Renderer{cache: c}, nil
}

// Render expands q's templates against sc, ag, and the rendered memory
// plan, producing the (system_prompt, user_prompt) pair consumed by the
// model adapter. answers is the Interview's accumulated answers-so-far
// (SPEC_FULL.md §D.4), consulted for any agent trait that Agent.DynamicTrait
// resolves rather than having it sit statically in ag.Traits.
func (r *Renderer) Render(q question.Question, sc scenario.Scenario, ag *agent.Agent, memory []survey.MemoryPair, answers map[string]agent.Answer) (system, user string, err error) {
	data := renderContext(sc, ag, memory, answers)

	agentTemplate := defaultAgentInstructions
	if ag != nil && ag.TraitsPresentationTemplate != "" {
		agentTemplate = ag.TraitsPresentationTemplate
	}
	system, err = r.cache.Render(agentTemplate, data)
	if err != nil {
		return "", "", err
	}

	// A compute question's user prompt is its rendered Text alone: the
	// arithmetic expression the invigilator evaluates, with no instructions.
	if q.Type == question.TypeCompute {
		user, err = r.cache.Render(q.Text, data)
		if err != nil {
			return "", "", err
		}
		return system, user, nil
	}

	options := q.Options
	if q.OptionsTemplate != "" {
		rendered, err := r.cache.Render(q.OptionsTemplate, data)
		if err != nil {
			return "", "", err
		}
		options = splitOptions(rendered)
	}

	var b strings.Builder

	presentationTemplate := q.PresentationTemplate
	if presentationTemplate == "" {
		presentationTemplate = q.Text
	}
	presentation, err := r.cache.Render(presentationTemplate, data)
	if err != nil {
		return "", "", err
	}
	b.WriteString(presentation)
	b.WriteString("\n\n")

	instructions := q.InstructionTemplate
	if instructions == "" {
		instructions = defaultInstructions(q, options)
	} else {
		instructions, err = r.cache.Render(instructions, data)
		if err != nil {
			return "", "", err
		}
	}
	b.WriteString(instructions)

	if len(memory) > 0 {
		b.WriteString("\n\nPrior answers in this interview:\n")
		for _, m := range memory {
			fmt.Fprintf(&b, "- %s: %v\n", m.Question.Text, m.Answer)
		}
	}

	b.WriteString("\n\n")
	qText, err := r.cache.Render(q.Text, data)
	if err != nil {
		return "", "", err
	}
	b.WriteString(qText)
	if len(options) > 0 {
		b.WriteString("\nOptions: ")
		b.WriteString(strings.Join(options, ", "))
	}

	return system, b.String(), nil
}

func splitOptions(rendered string) []string {
	parts := strings.Split(rendered, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func defaultInstructions(q question.Question, options []string) string {
	rec := question.Catalog[q.Type]
	switch q.Type {
	case question.TypeFreeText:
		return "Respond with free text."
	case question.TypeMultipleChoice, question.TypeDropdown:
		return "Respond with exactly one of the listed options."
	case question.TypeMultipleChoiceOther:
		return "Respond with exactly one of the listed options, or write your own if none fit."
	case question.TypeYesNo:
		return "Respond with Yes or No."
	case question.TypeCheckbox:
		return fmt.Sprintf("Select between %d and %d of the listed options.", q.Constraints.MinSelections, q.Constraints.MaxSelections)
	case question.TypeTopK:
		return fmt.Sprintf("Select your top %d options, in order.", q.Constraints.MaxSelections)
	case question.TypeNumerical:
		return "Respond with a single number."
	case question.TypeLinearScale, question.TypeLikertFive:
		return "Respond with a single integer on the given scale."
	case question.TypeList:
		return "Respond with a list of short items, one per line."
	case question.TypeDict, question.TypeExtract:
		return "Respond with a JSON object matching the requested fields."
	case question.TypeMatrix:
		return "Respond with one selection per row."
	case question.TypeRank:
		return "Respond with the options ranked in your preferred order."
	case question.TypeBudget:
		return fmt.Sprintf("Allocate a total of %.2f across the listed options.", q.Constraints.BudgetTotal)
	case question.TypePydanticSchema:
		return "Respond with a JSON object matching the requested schema."
	default:
		_ = rec
		return "Respond as instructed."
	}
}

// renderContext assembles the template data tree: scenario fields, agent
// traits, and one entry per memory-plan question so templates may pipe
// {{ prior_question.answer }} / {{ prior_question.answer[i] }} (spec §4.1
// "Piping").
func renderContext(sc scenario.Scenario, ag *agent.Agent, memory []survey.MemoryPair, answers map[string]agent.Answer) map[string]any {
	data := map[string]any{
		"scenario": sc.Fields,
	}
	data["agent"] = agentTraits(ag, answers)
	for _, m := range memory {
		entry := map[string]any{"answer": toAnyList(m.Answer)}
		data[m.Question.Name] = entry
	}
	return data
}

// agentTraits merges ag's static Traits with its dynamic traits, resolving
// each dynamic trait against answers. A dynamic trait only fills in when its
// name is absent from the static Traits map (SPEC_FULL.md §D.4: "consulted
// by the Prompt Renderer when a trait name is not present in the static
// Traits map"), since the template engine resolves {{ agent.x }} by a single
// map lookup and has no notion of a fallback once compiled.
func agentTraits(ag *agent.Agent, answers map[string]agent.Answer) map[string]any {
	if ag == nil {
		return map[string]any{}
	}
	traits := make(map[string]any, len(ag.Traits))
	for k, v := range ag.Traits {
		traits[k] = v
	}
	for _, name := range ag.DynamicTraitNames() {
		if _, ok := traits[name]; ok {
			continue
		}
		if v, ok := ag.DynamicTrait(name, answers); ok {
			traits[name] = v
		}
	}
	return traits
}

// toAnyList normalizes a stored answer into the []any shape the reference
// resolver expects for bracket indexing ({{ q.answer[i] }}), leaving
// non-list answers untouched.
func toAnyList(v any) any {
	switch t := v.(type) {
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		return t
	default:
		return v
	}
}
