// Package temporal implements engine.Engine on top of Temporal, the durable
// execution backend an Interview workflow runs on when a run must survive a
// worker restart between two question turns. Grounded on the teacher's
// runtime/agent/engine/temporal/engine.go (client/worker lifecycle, one
// worker per task queue, OTEL interceptors wired automatically), trimmed of
// the teacher's typed planner/tool/hook activity surface — this module has
// exactly one activity kind, RunTurn — and of child-workflow support, which
// an Interview has no use for.
package temporal

import (
	"context"
	"fmt"
	"sync"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"edsl/pkg/engine"
	"edsl/pkg/telemetry"
)

// Options configures the Temporal engine adapter.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, ClientOptions
	// constructs one lazily.
	Client client.Client

	// ClientOptions builds the Temporal client when Client is nil.
	ClientOptions *client.Options

	// TaskQueue is the queue the worker polls and the default used when a
	// WorkflowStartRequest omits one. Required.
	TaskQueue string

	WorkerOptions worker.Options

	// DisableTracing/DisableMetrics opt out of the OTEL interceptors wired
	// in by default.
	DisableTracing bool
	DisableMetrics bool

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Engine implements engine.Engine on Temporal.
type Engine struct {
	client      client.Client
	closeClient bool

	defaultQueue string
	workerOpts   worker.Options

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	mu              sync.Mutex
	worker          worker.Worker
	workerStarted   bool
	activityOptions map[string]engine.ActivityOptions

	workflowContexts sync.Map // temporal RunID -> engine.WorkflowContext
}

// New constructs a Temporal-backed Engine.
func New(opts Options) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporal engine: TaskQueue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}

	var tracingInterceptor interceptor.Interceptor
	var metricsHandler client.MetricsHandler
	if !opts.DisableTracing {
		ti, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
		if err != nil {
			return nil, fmt.Errorf("temporal engine: configure tracing interceptor: %w", err)
		}
		tracingInterceptor = ti
	}
	if !opts.DisableMetrics {
		metricsHandler = temporalotel.NewMetricsHandler(temporalotel.MetricsHandlerOptions{})
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporal engine: ClientOptions is required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		if tracingInterceptor != nil {
			clientOpts.Interceptors = append(clientOpts.Interceptors, tracingInterceptor)
		}
		if metricsHandler != nil && clientOpts.MetricsHandler == nil {
			clientOpts.MetricsHandler = metricsHandler
		}
		var err error
		cli, err = client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: create client: %w", err)
		}
		closeClient = true
	}

	workerOpts := opts.WorkerOptions
	if tracingInterceptor != nil {
		workerOpts.Interceptors = append(workerOpts.Interceptors, tracingInterceptor)
	}

	e := &Engine{
		client:          cli,
		closeClient:     closeClient,
		defaultQueue:    opts.TaskQueue,
		workerOpts:      workerOpts,
		logger:          logger,
		metrics:         metrics,
		tracer:          tracer,
		activityOptions: make(map[string]engine.ActivityOptions),
	}
	e.worker = worker.New(cli, opts.TaskQueue, workerOpts)
	return e, nil
}

// RegisterWorkflow registers def's handler with the Temporal worker.
func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid workflow definition")
	}
	e.worker.RegisterWorkflowWithOptions(
		func(tctx workflow.Context, input any) (any, error) {
			wfCtx := newWorkflowContext(e, tctx)
			defer e.workflowContexts.Delete(wfCtx.RunID())
			return def.Handler(wfCtx, input)
		},
		workflow.RegisterOptions{Name: def.Name},
	)
	return nil
}

// RegisterActivity registers def's handler with the Temporal worker.
func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid activity definition")
	}
	e.worker.RegisterActivityWithOptions(
		func(actx context.Context, input any) (any, error) {
			return def.Handler(engine.WithActivityContext(actx), input)
		},
		activity.RegisterOptions{Name: def.Name},
	)
	e.mu.Lock()
	e.activityOptions[def.Name] = def.Options
	e.mu.Unlock()
	return nil
}

// StartWorkflow begins a Temporal workflow execution for req.
func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	if req.Workflow == "" {
		return nil, fmt.Errorf("temporal engine: Workflow name is required")
	}
	e.ensureWorkerStarted()

	queue := req.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}

	startOpts := client.StartWorkflowOptions{
		ID:        req.ID,
		TaskQueue: queue,
	}
	if req.RunTimeout > 0 {
		startOpts.WorkflowRunTimeout = req.RunTimeout
	}
	if rp := convertRetryPolicy(req.RetryPolicy); rp != nil {
		startOpts.RetryPolicy = rp
	}

	run, err := e.client.ExecuteWorkflow(ctx, startOpts, req.Workflow, req.Input)
	if err != nil {
		return nil, err
	}
	return &workflowHandle{run: run, client: e.client}, nil
}

// QueryRunStatus describes the workflow's current execution status by
// asking Temporal's visibility API.
func (e *Engine) QueryRunStatus(ctx context.Context, runID string) (engine.RunStatus, error) {
	// runID here is the caller-assigned workflow ID (WorkflowStartRequest.ID),
	// matching the in-memory engine's convention of tracking status by that
	// same ID; Temporal's own per-attempt RunID is left unspecified so the
	// latest execution is described.
	desc, err := e.client.DescribeWorkflowExecution(ctx, runID, "")
	if err != nil {
		return "", engine.ErrWorkflowNotFound
	}
	switch desc.GetWorkflowExecutionInfo().GetStatus().String() {
	case "WORKFLOW_EXECUTION_STATUS_RUNNING":
		return engine.RunStatusRunning, nil
	case "WORKFLOW_EXECUTION_STATUS_COMPLETED":
		return engine.RunStatusCompleted, nil
	case "WORKFLOW_EXECUTION_STATUS_CANCELED", "WORKFLOW_EXECUTION_STATUS_TERMINATED":
		return engine.RunStatusCanceled, nil
	default:
		return engine.RunStatusFailed, nil
	}
}

// Start launches the worker; call once after all Register* calls complete.
func (e *Engine) Start() error {
	e.ensureWorkerStarted()
	return nil
}

// Stop gracefully stops the worker.
func (e *Engine) Stop() {
	e.worker.Stop()
}

// Close shuts down the Temporal client, if this Engine created it.
func (e *Engine) Close() error {
	if e.closeClient && e.client != nil {
		e.client.Close()
	}
	return nil
}

func (e *Engine) ensureWorkerStarted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.workerStarted {
		return
	}
	e.workerStarted = true
	go func() {
		if err := e.worker.Run(worker.InterruptCh()); err != nil {
			e.logger.Error(context.Background(), "temporal worker exited", "err", err)
		}
	}()
}

func (e *Engine) activityOptionsFor(name string) engine.ActivityOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activityOptions[name]
}

func convertRetryPolicy(r engine.RetryPolicy) *sdktemporal.RetryPolicy {
	if r.MaxAttempts == 0 && r.InitialInterval == 0 && r.BackoffCoefficient == 0 {
		return nil
	}
	policy := &sdktemporal.RetryPolicy{}
	if r.MaxAttempts > 0 {
		//nolint:gosec // MaxAttempts is bounded by caller-supplied scheduler config.
		policy.MaximumAttempts = int32(r.MaxAttempts)
	}
	if r.InitialInterval > 0 {
		policy.InitialInterval = r.InitialInterval
	}
	if r.BackoffCoefficient > 0 {
		policy.BackoffCoefficient = r.BackoffCoefficient
	}
	return policy
}

type workflowHandle struct {
	run    client.WorkflowRun
	client client.Client
}

func (h *workflowHandle) Wait(ctx context.Context, result any) error {
	return h.run.Get(ctx, result)
}

func (h *workflowHandle) Signal(ctx context.Context, name string, payload any) error {
	return h.client.SignalWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), name, payload)
}

func (h *workflowHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}
