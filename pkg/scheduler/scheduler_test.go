package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"edsl/pkg/agent"
	"edsl/pkg/bucket"
	"edsl/pkg/cache"
	"edsl/pkg/execerr"
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

func newTestJob(t *testing.T, agents int, scenarios int) (Job, *invigilator.Invigilator) {
	t.Helper()

	s := survey.New("demo")
	require.NoError(t, s.AddQuestion(question.Question{Name: "q1", Type: question.TypeFreeText, Text: "How was your day?"}))
	require.NoError(t, s.Validate())

	r, err := prompt.NewRenderer(2048)
	require.NoError(t, err)
	inv := invigilator.New(r, cache.New(cache.NewMemoryStore()), bucket.NewCollection(), validate.NewRegistry())

	var ags []*agent.Agent
	for i := 0; i < agents; i++ {
		ags = append(ags, agent.New(label(i, "agent"), map[string]any{"n": i}))
	}
	var scs []scenario.Scenario
	for i := 0; i < scenarios; i++ {
		scs = append(scs, scenario.Scenario{Name: label(i, "scenario"), Fields: map[string]any{"n": i}})
	}

	job := Job{
		Survey:    s,
		Agents:    ags,
		Scenarios: scs,
		Models: []ModelSpec{
			{Identity: model.Identity{Service: "test", ModelName: "test-1"}, Client: modeladapter.NewTestClient()},
		},
		Iterations: 1,
	}
	return job, inv
}

func label(n int, prefix string) string {
	return fmt.Sprintf("%s%d", prefix, n)
}

func TestSchedulerRunProducesOneRowPerCartesianPoint(t *testing.T) {
	job, inv := newTestJob(t, 2, 3)
	sched := New(job, inv, WithConcurrency(4))

	rs, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, job.total(), rs.Len())
	require.Equal(t, 6, job.total())
}

func TestSchedulerResultsAreOrderedByOrdinal(t *testing.T) {
	job, inv := newTestJob(t, 2, 2)
	sched := New(job, inv, WithConcurrency(1))

	rs, err := sched.Run(context.Background())
	require.NoError(t, err)

	rows := rs.Rows()
	require.Len(t, rows, 4)
	for i, row := range rows {
		require.Equal(t, i, row["order"])
	}
}

func TestSchedulerStatusReachesDoneAfterWait(t *testing.T) {
	job, inv := newTestJob(t, 1, 1)
	sched := New(job, inv)

	h := sched.Start(context.Background())
	_, err := h.Wait()
	require.NoError(t, err)

	snap := h.Status()
	require.Equal(t, job.total(), snap.Done)
	require.Equal(t, 0, snap.Running)
	require.Equal(t, 0, snap.Queued)
}

// authFailClient always returns an auth ProviderError, exercising the
// scheduler's fatal-cancellation path (spec §7: "auth is fatal, job aborts").
type authFailClient struct{}

func (authFailClient) Call(ctx context.Context, identity model.Identity, req model.Request) (*model.RawResponse, error) {
	return nil, execerr.NewProviderError("test", "Call", 401, execerr.ProviderErrorKindAuth, "invalid_api_key", "invalid api key", "", false, nil)
}

func TestSchedulerCancelsJobOnFatalAuthError(t *testing.T) {
	job, inv := newTestJob(t, 3, 3)
	job.Models[0].Client = authFailClient{}
	sched := New(job, inv, WithConcurrency(2))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs, err := sched.Run(ctx)
	require.Error(t, err)
	require.LessOrEqual(t, rs.Len(), job.total())
}

func TestSchedulerHandleCancel(t *testing.T) {
	job, inv := newTestJob(t, 5, 5)
	sched := New(job, inv, WithConcurrency(1))

	h := sched.Start(context.Background())
	h.Cancel()
	_, _ = h.Wait()

	snap := h.Status()
	require.LessOrEqual(t, snap.Done, job.total())
}
