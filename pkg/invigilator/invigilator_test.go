package invigilator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"edsl/pkg/agent"
	"edsl/pkg/bucket"
	"edsl/pkg/cache"
	"edsl/pkg/model"
	"edsl/pkg/modeladapter"
	"edsl/pkg/prompt"
	"edsl/pkg/question"
	"edsl/pkg/scenario"
	"edsl/pkg/validate"
)

func newTestInvigilator(t *testing.T) *Invigilator {
	t.Helper()
	r, err := prompt.NewRenderer(2048)
	require.NoError(t, err)
	c := cache.New(cache.NewMemoryStore())
	b := bucket.NewCollection()
	v := validate.NewRegistry()
	return New(r, c, b, v)
}

func TestInvigilatorRunFreeTextCachesSecondCall(t *testing.T) {
	inv := newTestInvigilator(t)
	client := modeladapter.NewTestClient()

	q := question.Question{Name: "opinion", Type: question.TypeFreeText, Text: "What do you think of {{ scenario.product }}?"}
	sc := scenario.Scenario{Name: "s1", Fields: map[string]any{"product": "coffee"}}
	identity := model.Identity{Service: "test", ModelName: "test-1"}

	turn := Turn{Question: q, Scenario: sc, Identity: identity, Client: client, Iteration: 0}

	rec1, err := inv.Run(context.Background(), turn)
	require.NoError(t, err)
	require.True(t, rec1.Validated)
	require.False(t, rec1.CacheHit)
	require.NotEmpty(t, rec1.Answer)

	rec2, err := inv.Run(context.Background(), turn)
	require.NoError(t, err)
	require.True(t, rec2.CacheHit)
	require.Equal(t, rec1.Answer, rec2.Answer)
	require.Equal(t, rec1.CacheKey, rec2.CacheKey)
}

func TestInvigilatorRunDerivedMarkdownSkipsModel(t *testing.T) {
	inv := newTestInvigilator(t)

	q := question.Question{Name: "intro", Type: question.TypeMarkdown, Text: "Welcome, {{ scenario.name }}."}
	sc := scenario.Scenario{Name: "s1", Fields: map[string]any{"name": "Ada"}}

	turn := Turn{Question: q, Scenario: sc, Identity: model.Identity{Service: "test", ModelName: "test-1"}}
	rec, err := inv.Run(context.Background(), turn)
	require.NoError(t, err)
	require.True(t, rec.Validated)
	require.Contains(t, rec.Answer, "Ada")
}

func TestInvigilatorRunComputeSkipsModel(t *testing.T) {
	inv := newTestInvigilator(t)

	q := question.Question{Name: "total", Type: question.TypeCompute, Text: "2 + 3 * {{ scenario.multiplier }}"}
	sc := scenario.Scenario{Name: "s1", Fields: map[string]any{"multiplier": 4}}

	turn := Turn{Question: q, Scenario: sc, Identity: model.Identity{Service: "test", ModelName: "test-1"}}
	rec, err := inv.Run(context.Background(), turn)
	require.NoError(t, err)
	require.True(t, rec.Validated)
	require.Equal(t, 14.0, rec.Answer)
}

func TestInvigilatorRunDirectAnswerShortCircuitsModel(t *testing.T) {
	inv := newTestInvigilator(t)

	q := question.Question{Name: "age_band", Type: question.TypeFreeText, Text: "How old are you?"}
	sc := scenario.Scenario{Name: "s1"}
	ag := agent.New("respondent", map[string]any{}).WithDirectAnswer("age_band", func(_ question.Question, _ map[string]any, _ map[string]agent.Answer) (agent.Answer, bool) {
		return "30-40", true
	})

	turn := Turn{Question: q, Scenario: sc, Agent: ag, Identity: model.Identity{Service: "test", ModelName: "test-1"}, Client: modeladapter.NewTestClient()}
	rec, err := inv.Run(context.Background(), turn)
	require.NoError(t, err)
	require.True(t, rec.Validated)
	require.Equal(t, "30-40", rec.Answer)
	require.Empty(t, rec.RawModelResponse)
}

func TestInvigilatorRunValidationFailureIsRecordedNotFatal(t *testing.T) {
	inv := newTestInvigilator(t)
	client := &stubClient{response: "not a number at all"}

	q := question.Question{Name: "rating", Type: question.TypeNumerical, Text: "Rate 1-10"}
	sc := scenario.Scenario{Name: "s1"}

	turn := Turn{Question: q, Scenario: sc, Identity: model.Identity{Service: "test", ModelName: "test-1"}, Client: client}
	rec, err := inv.Run(context.Background(), turn)
	require.NoError(t, err)
	require.False(t, rec.Validated)
	require.Error(t, rec.Err)
}

type stubClient struct {
	response string
	calls    int
}

func (c *stubClient) Call(_ context.Context, _ model.Identity, _ model.Request) (*model.RawResponse, error) {
	c.calls++
	return &model.RawResponse{Raw: c.response}, nil
}
