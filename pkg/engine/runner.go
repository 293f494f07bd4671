package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"edsl/pkg/interview"
	"edsl/pkg/invigilator"
	"edsl/pkg/model"
	"edsl/pkg/survey"
)

// Runner wires an Interview onto an Engine: one InterviewWorkflowName
// workflow and one TurnActivityName activity, registered once and reused
// across every Interview started through it. Use Runner instead of
// interview.Interview directly when a run must survive a process restart
// between two question turns (spec §4.9's durability concerns, carried down
// to the per-interview level).
type Runner struct {
	Engine Engine
}

// NewRunner constructs a Runner and registers the interview workflow and
// RunTurn activity with eng. clients resolves a model.Client by
// model.Identity.Key() for every model point the runner will be asked to
// run; s is the Survey every started Interview walks.
func NewRunner(ctx context.Context, eng Engine, inv *invigilator.Invigilator, s *survey.Survey, clients map[string]model.Client) (*Runner, error) {
	if err := eng.RegisterWorkflow(ctx, WorkflowDefinition{
		Name:    InterviewWorkflowName,
		Handler: NewInterviewWorkflow(),
	}); err != nil {
		return nil, fmt.Errorf("engine: register interview workflow: %w", err)
	}
	if err := eng.RegisterActivity(ctx, ActivityDefinition{
		Name:    TurnActivityName,
		Handler: NewTurnActivityHandler(inv, s, clients),
	}); err != nil {
		return nil, fmt.Errorf("engine: register turn activity: %w", err)
	}
	return &Runner{Engine: eng}, nil
}

// Start begins a durable Interview execution for id and returns a handle
// whose Wait decodes into an interview.Result.
func (r *Runner) Start(ctx context.Context, id interview.Identity) (WorkflowHandle, error) {
	hash, err := interview.InitialHash(id)
	if err != nil {
		return nil, err
	}
	return r.Engine.StartWorkflow(ctx, WorkflowStartRequest{
		ID:       fmt.Sprintf("interview-%s-%s", hash, uuid.NewString()),
		Workflow: InterviewWorkflowName,
		Input:    id,
	})
}

// Run starts id and blocks for its interview.Result.
func (r *Runner) Run(ctx context.Context, id interview.Identity) (interview.Result, error) {
	h, err := r.Start(ctx, id)
	if err != nil {
		return interview.Result{}, err
	}
	var res interview.Result
	err = h.Wait(ctx, &res)
	return res, err
}
