// Package engine defines the durable-execution abstractions an Interview
// runs on: a workflow/activity split so the exact same Interview state
// machine can run in-process (pkg/engine/inmem, for tests and small jobs) or
// on Temporal (pkg/engine/temporal, for runs that must survive a process
// restart mid-survey). Grounded on the teacher's
// runtime/agent/engine/engine.go, whose Engine/WorkflowContext/Future split
// already separates "what a workflow does" from "which backend runs it";
// this package keeps that split and retargets the domain types it carries
// from tool-calling agent runs to survey interviews.
package engine

import (
	"context"
	"errors"
	"time"

	"edsl/pkg/telemetry"
)

type (
	// Engine abstracts workflow/activity registration and execution so
	// adapters (Temporal, in-memory, or a future custom backend) can be
	// swapped without touching the interview-workflow wiring in this
	// package's workflow.go.
	Engine interface {
		// RegisterWorkflow registers a workflow definition with the engine.
		// Must be called during initialization, before StartWorkflow.
		// Returns an error if the name is already registered.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity definition. Must be called
		// during initialization, before any workflow that calls it runs.
		// Returns an error if the name is already registered.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow begins a new workflow execution and returns a handle
		// for waiting on or cancelling it. req.ID must be unique for the
		// engine instance; starting two workflows with the same ID is an
		// error on backends that enforce run uniqueness.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)

		// QueryRunStatus reports a running or completed workflow's lifecycle
		// status. Returns ErrWorkflowNotFound if runID is unknown.
		QueryRunStatus(ctx context.Context, runID string) (RunStatus, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default task queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is the Interview's durable entry point (the function
	// workflow.go's NewInterviewWorkflow returns). It must be deterministic: given the same input and
	// the same sequence of activity results, it must make the same calls in
	// the same order, since a replaying backend (Temporal) re-executes it
	// from the start on every history replay.
	WorkflowFunc func(wf WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to a running workflow.
	// Implementations must keep activity execution and signal delivery
	// deterministic under replay; only Context(), ExecuteActivity(Async),
	// SignalChannel, and Now are safe to use from workflow code — direct
	// I/O, system time, or random number generation inside a WorkflowFunc
	// breaks replay on backends that need it.
	WorkflowContext interface {
		// Context returns the Go context backing this workflow execution.
		Context() context.Context

		// WorkflowID returns the caller-assigned identifier for this run.
		WorkflowID() string

		// RunID returns the engine-assigned run identifier.
		RunID() string

		// ExecuteActivity schedules req and blocks for its result, decoding
		// it into result (a pointer).
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules req without blocking, returning a
		// Future resolved later via Future.Get. Use this to run independent
		// activities concurrently.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the channel carrying signals sent under
		// name (e.g. a pause/resume or human-input signal sent to a running
		// Interview).
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns the workflow's current time in a replay-safe manner.
		Now() time.Time
	}

	// Future represents a pending activity result. Get may be called more
	// than once and returns the same result/err each time.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler under a logical name.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc performs one side-effecting unit of work — in this
	// module, one Invigilator.Run call for one question (the handler
	// workflow.go's NewTurnActivityHandler returns). Unlike WorkflowFunc, activities may perform I/O.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout behavior for an activity.
	ActivityOptions struct {
		RetryPolicy RetryPolicy
		// Timeout bounds one activity attempt; each retry gets its own
		// budget. Zero means no timeout.
		Timeout time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		// ID must be unique within the engine's scope; Runner.Start derives
		// it from the interview's InitialHash plus a run UUID.
		ID        string
		Workflow  string
		TaskQueue string
		Input     any
		// RunTimeout bounds the whole workflow execution (spec §4.9's
		// per-interview wall-clock budget, carried through to the engine
		// layer). Zero means no timeout.
		RunTimeout  time.Duration
		RetryPolicy RetryPolicy
	}

	// ActivityRequest carries one activity invocation's request from
	// workflow code.
	ActivityRequest struct {
		Name        string
		Input       any
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers wait on, signal, or cancel a running
	// workflow.
	WorkflowHandle interface {
		// Wait blocks until the workflow completes, decoding its return
		// value into result.
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy is shared by workflow starts and activity invocations.
	// Zero-valued fields mean "use the engine's default".
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes engine-agnostic signal delivery to workflow
	// code (e.g. an operator-issued pause/resume for a long-running run).
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}

	// RunStatus is a workflow execution's lifecycle state.
	RunStatus string
)

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// ErrWorkflowNotFound is returned by QueryRunStatus for an unknown run ID.
var ErrWorkflowNotFound = errors.New("engine: workflow not found")
