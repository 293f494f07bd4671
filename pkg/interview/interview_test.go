package interview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"edsl/pkg/agent"
	"edsl/pkg/bucket"
	"edsl/pkg/cache"
	"edsl/pkg/invigilator"
	"edsl/pkg/model"
	"edsl/pkg/modeladapter"
	"edsl/pkg/prompt"
	"edsl/pkg/question"
	"edsl/pkg/scenario"
	"edsl/pkg/survey"
	"edsl/pkg/validate"
)

func newTestSurvey(t *testing.T) *survey.Survey {
	t.Helper()
	s := survey.New("demo")
	require.NoError(t, s.AddQuestion(question.Question{Name: "q1", Type: question.TypeFreeText, Text: "How was your day?"}))
	require.NoError(t, s.AddQuestion(question.Question{Name: "q2", Type: question.TypeYesNo, Text: "Would you recommend us?"}))
	require.NoError(t, s.Validate())
	return s
}

func newTestInterview(t *testing.T) *Interview {
	t.Helper()
	r, err := prompt.NewRenderer(2048)
	require.NoError(t, err)
	inv := invigilator.New(r, cache.New(cache.NewMemoryStore()), bucket.NewCollection(), validate.NewRegistry())
	return New(inv, modeladapter.NewTestClient())
}

func TestInterviewRunWalksAllQuestionsInOrder(t *testing.T) {
	iv := newTestInterview(t)
	// The default test client answers with a hash placeholder that yes_no
	// validation rejects, so this walk answers every question with "Yes".
	iv.Client = &modeladapter.TestClient{Responder: func(model.Identity, model.Request) string { return "Yes" }}
	s := newTestSurvey(t)
	ag := agent.New("respondent", map[string]any{"persona": "skeptic"})

	id := Identity{
		Survey:   s,
		Agent:    ag,
		Scenario: scenario.Scenario{Name: "baseline"},
		Model:    model.Identity{Service: "test", ModelName: "test-1"},
		Order:    3,
	}

	res, err := iv.Run(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, res.Fatal)
	require.Equal(t, 3, res.Order)
	require.Contains(t, res.Answers, "q1")
	require.Contains(t, res.Answers, "q2")
	require.Len(t, res.Turns, 2)
	require.Empty(t, res.Exceptions)
	require.NotEmpty(t, res.InitialHash)
}

func TestInterviewInitialHashStableAndSensitiveToInputs(t *testing.T) {
	s := newTestSurvey(t)
	base := Identity{
		Survey:   s,
		Agent:    agent.New("a", map[string]any{"x": 1}),
		Scenario: scenario.Scenario{Name: "s1", Fields: map[string]any{"k": "v"}},
		Model:    model.Identity{Service: "test", ModelName: "test-1"},
	}

	h1, err := InitialHash(base)
	require.NoError(t, err)
	h2, err := InitialHash(base)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	changed := base
	changed.Iteration = 1
	h3, err := InitialHash(changed)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestInterviewRecordsValidationFailureAsExceptionNotFatal(t *testing.T) {
	r, err := prompt.NewRenderer(2048)
	require.NoError(t, err)
	inv := invigilator.New(r, cache.New(cache.NewMemoryStore()), bucket.NewCollection(), validate.NewRegistry())
	iv := New(inv, &badClient{})

	s := survey.New("bad")
	require.NoError(t, s.AddQuestion(question.Question{Name: "rating", Type: question.TypeNumerical, Text: "Rate 1-10"}))
	require.NoError(t, s.Validate())

	id := Identity{
		Survey:   s,
		Scenario: scenario.Scenario{Name: "s1"},
		Model:    model.Identity{Service: "test", ModelName: "test-1"},
	}

	res, err := iv.Run(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, res.Fatal)
	require.Len(t, res.Exceptions, 1)
	require.Equal(t, "rating", res.Exceptions[0].QuestionName)
	require.Nil(t, res.Answers["rating"])
}

type badClient struct{}

func (badClient) Call(_ context.Context, _ model.Identity, _ model.Request) (*model.RawResponse, error) {
	return &model.RawResponse{Raw: "definitely not a number"}, nil
}
