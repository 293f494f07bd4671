package prompt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edsl/pkg/agent"
	"edsl/pkg/question"
	"edsl/pkg/scenario"
)

// TestRenderResolvesDynamicTrait checks SPEC_FULL.md §D.4: a trait absent
// from Agent.Traits but registered via WithDynamicTrait is resolved against
// the answers accumulated so far and reaches the rendered user prompt —
// exercising the path from Render down through agentTraits that the
// invigilator's turn loop drives with its own accumulated t.Answers.
func TestRenderResolvesDynamicTrait(t *testing.T) {
	r, err := NewRenderer(2048)
	require.NoError(t, err)

	ag := agent.New("restless", map[string]any{"age": 42})
	ag.WithDynamicTrait("mood", func(answers map[string]agent.Answer) (any, bool) {
		if answers["q1"] == "No" {
			return "frustrated", true
		}
		return "content", true
	})

	q := question.Question{
		Name: "q2",
		Type: question.TypeFreeText,
		Text: "Given that you feel {{ agent.mood }}, say more.",
	}

	_, user, err := r.Render(q, scenario.Scenario{}, ag, nil, map[string]agent.Answer{"q1": "No"})
	require.NoError(t, err)
	require.Contains(t, user, "Given that you feel frustrated, say more.")
}

// TestRenderStaticTraitTakesPriorityOverDynamic checks that a dynamic trait
// never shadows a statically declared trait of the same name.
func TestRenderStaticTraitTakesPriorityOverDynamic(t *testing.T) {
	r, err := NewRenderer(2048)
	require.NoError(t, err)

	ag := agent.New("fixed", map[string]any{"mood": "calm"})
	ag.WithDynamicTrait("mood", func(map[string]agent.Answer) (any, bool) { return "frustrated", true })

	q := question.Question{Name: "q2", Type: question.TypeFreeText, Text: "You are {{ agent.mood }}."}

	_, user, err := r.Render(q, scenario.Scenario{}, ag, nil, nil)
	require.NoError(t, err)
	require.Contains(t, user, "You are calm.")
}

// TestRenderMissingDynamicTraitFallsThrough checks that when a dynamic trait
// function declines to answer, the reference is unresolved rather than
// silently substituted, consistent with spec §4.1's TemplateRenderError
// behavior for any other unresolved reference.
func TestRenderMissingDynamicTraitFallsThrough(t *testing.T) {
	r, err := NewRenderer(2048)
	require.NoError(t, err)

	ag := agent.New("undecided", map[string]any{})
	ag.WithDynamicTrait("mood", func(map[string]agent.Answer) (any, bool) { return nil, false })

	q := question.Question{Name: "q2", Type: question.TypeFreeText, Text: "You are {{ agent.mood }}."}

	_, _, err = r.Render(q, scenario.Scenario{}, ag, nil, nil)
	require.Error(t, err)
	var tmplErr *TemplateRenderError
	require.ErrorAs(t, err, &tmplErr)
}
