package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"edsl/pkg/agent"
	"edsl/pkg/bucket"
	"edsl/pkg/cache"
	"edsl/pkg/engine"
	"edsl/pkg/engine/inmem"
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

func newTestRunner(t *testing.T) (*engine.Runner, *survey.Survey) {
	t.Helper()

	s := survey.New("demo")
	require.NoError(t, s.AddQuestion(question.Question{Name: "q1", Type: question.TypeFreeText, Text: "How was your day?"}))
	require.NoError(t, s.Validate())

	r, err := prompt.NewRenderer(2048)
	require.NoError(t, err)
	inv := invigilator.New(r, cache.New(cache.NewMemoryStore()), bucket.NewCollection(), validate.NewRegistry())

	identity := model.Identity{Service: "test", ModelName: "test-1"}
	clients := map[string]model.Client{identity.Key(): modeladapter.NewTestClient()}

	eng := inmem.New()
	runner, err := engine.NewRunner(context.Background(), eng, inv, s, clients)
	require.NoError(t, err)
	return runner, s
}

func TestRunnerRunProducesACompleteInterviewOverTheEngine(t *testing.T) {
	runner, s := newTestRunner(t)

	id := interview.Identity{
		Survey:   s,
		Agent:    agent.New("a1", map[string]any{"mood": "curious"}),
		Scenario: scenario.Scenario{Name: "s1", Fields: map[string]any{"product": "coffee"}},
		Model:    model.Identity{Service: "test", ModelName: "test-1"},
	}

	res, err := runner.Run(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, res.InitialHash)
	require.Contains(t, res.Turns, "q1")
	require.True(t, res.Turns["q1"].Validated)
}

func TestRunnerStartHandleWaitMatchesRun(t *testing.T) {
	runner, s := newTestRunner(t)

	id := interview.Identity{
		Survey:   s,
		Scenario: scenario.Scenario{Name: "s1"},
		Model:    model.Identity{Service: "test", ModelName: "test-1"},
	}

	h, err := runner.Start(context.Background(), id)
	require.NoError(t, err)

	var res interview.Result
	require.NoError(t, h.Wait(context.Background(), &res))
	require.Contains(t, res.Answers, "q1")
}
