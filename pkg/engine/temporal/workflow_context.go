package temporal

import (
	"context"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"edsl/pkg/engine"
	"edsl/pkg/telemetry"
)

// defaultActivityTimeout bounds an activity's schedule-to-start and
// start-to-close time when neither ActivityRequest.Timeout nor the
// registered ActivityOptions.Timeout sets one. A RunTurn activity without a
// generous default could block until the whole workflow's run timeout when
// workers are briefly unavailable.
const defaultActivityTimeout = 5 * time.Minute

type workflowContext struct {
	engine     *Engine
	ctx        workflow.Context
	workflowID string
	runID      string
}

func newWorkflowContext(e *Engine, ctx workflow.Context) *workflowContext {
	info := workflow.GetInfo(ctx)
	wfCtx := &workflowContext{
		engine:     e,
		ctx:        ctx,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
	}
	e.workflowContexts.Store(wfCtx.runID, wfCtx)
	return wfCtx
}

func (w *workflowContext) Context() context.Context {
	return engine.WithWorkflowContext(context.Background(), w)
}

func (w *workflowContext) WorkflowID() string { return w.workflowID }
func (w *workflowContext) RunID() string      { return w.runID }

func (w *workflowContext) Logger() telemetry.Logger   { return w.engine.logger }
func (w *workflowContext) Metrics() telemetry.Metrics { return w.engine.metrics }
func (w *workflowContext) Tracer() telemetry.Tracer   { return w.engine.tracer }

func (w *workflowContext) Now() time.Time { return workflow.Now(w.ctx) }

func (w *workflowContext) ExecuteActivity(_ context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(context.Background(), req)
	if err != nil {
		return err
	}
	return fut.Get(context.Background(), result)
}

func (w *workflowContext) ExecuteActivityAsync(_ context.Context, req engine.ActivityRequest) (engine.Future, error) {
	actx := workflow.WithActivityOptions(w.ctx, w.activityOptionsFor(req))
	fut := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return &future{ctx: actx, future: fut}, nil
}

func (w *workflowContext) activityOptionsFor(req engine.ActivityRequest) workflow.ActivityOptions {
	defaults := w.engine.activityOptionsFor(req.Name)

	timeout := req.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	if timeout == 0 {
		timeout = defaultActivityTimeout
	}

	retry := req.RetryPolicy
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = defaults.RetryPolicy.MaxAttempts
	}
	if retry.InitialInterval == 0 {
		retry.InitialInterval = defaults.RetryPolicy.InitialInterval
	}
	if retry.BackoffCoefficient == 0 {
		retry.BackoffCoefficient = defaults.RetryPolicy.BackoffCoefficient
	}

	return workflow.ActivityOptions{
		ScheduleToStartTimeout: timeout,
		StartToCloseTimeout:    timeout,
		RetryPolicy:            convertRetryPolicy(retry),
	}
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	return &signalReceiver{ctx: w.ctx, ch: workflow.GetSignalChannel(w.ctx, name)}
}

// future adapts a Temporal workflow.Future to engine.Future. Its Get ignores
// the context.Context argument entirely: workflow.Future.Get requires the
// workflow.Context the activity was scheduled on (engine.Future's plain
// context.Context signature exists for the in-memory engine, where ordinary
// goroutines service it), and that workflow.Context is always deterministic
// replay state, never caller-supplied.
type future struct {
	ctx    workflow.Context
	future workflow.Future
}

func (f *future) Get(_ context.Context, result any) error {
	return normalizeErr(f.future.Get(f.ctx, result))
}

func (f *future) IsReady() bool { return f.future.IsReady() }

type signalReceiver struct {
	ctx workflow.Context
	ch  workflow.ReceiveChannel
}

func (s *signalReceiver) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.ctx, dest)
	return nil
}

func (s *signalReceiver) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}

// normalizeErr translates Temporal's cancellation error into context.Canceled
// so the scheduler's execerr classification does not need to special-case
// Temporal error types (spec §7's propagation policy is backend-agnostic).
func normalizeErr(err error) error {
	if err == nil {
		return nil
	}
	if sdktemporal.IsCanceledError(err) {
		return context.Canceled
	}
	return err
}

