package resultset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"edsl/pkg/agent"
	"edsl/pkg/bucket"
	"edsl/pkg/cache"
	"edsl/pkg/interview"
	"edsl/pkg/invigilator"
	"edsl/pkg/model"
	"edsl/pkg/modeladapter"
	"edsl/pkg/prompt"
	"edsl/pkg/question"
	"edsl/pkg/scenario"
	"edsl/pkg/survey"
	"edsl/pkg/validate"
)

func TestFromInterviewProducesExpectedColumns(t *testing.T) {
	s := survey.New("demo")
	require.NoError(t, s.AddQuestion(question.Question{Name: "q1", Type: question.TypeFreeText, Text: "How was your day?"}))
	require.NoError(t, s.Validate())

	r, err := prompt.NewRenderer(2048)
	require.NoError(t, err)
	inv := invigilator.New(r, cache.New(cache.NewMemoryStore()), bucket.NewCollection(), validate.NewRegistry())
	iv := interview.New(inv, modeladapter.NewTestClient())

	id := interview.Identity{
		Survey:   s,
		Agent:    agent.New("a1", map[string]any{"mood": "curious"}),
		Scenario: scenario.Scenario{Name: "s1", Fields: map[string]any{"product": "coffee"}},
		Model:    model.Identity{Service: "test", ModelName: "test-1"},
		Order:    5,
	}

	res, err := iv.Run(context.Background(), id)
	require.NoError(t, err)

	row := FromInterview(res, s)
	require.Equal(t, 5, row["order"])
	require.Equal(t, "curious", row["agent.mood"])
	require.Equal(t, "coffee", row["scenario.product"])
	require.NotEmpty(t, row["answer.q1"])
	require.Equal(t, string(question.TypeFreeText), row["question_type.q1"])
	require.Equal(t, true, row["validated.q1"])
}
