package engine

import (
	"context"
	"fmt"

	"edsl/pkg/agent"
	"edsl/pkg/execerr"
	"edsl/pkg/interview"
	"edsl/pkg/invigilator"
	"edsl/pkg/model"
	"edsl/pkg/scenario"
	"edsl/pkg/survey"
)

// InterviewWorkflowName and TurnActivityName are the engine-wide logical
// names an Interview's workflow and its per-question activity are
// registered under (spec §9's C7/C6 split: one workflow per Interview, one
// activity per question Turn).
const (
	InterviewWorkflowName = "edsl.Interview"
	TurnActivityName      = "edsl.RunTurn"
)

// TurnInput is the serializable projection of invigilator.Turn sent to the
// RunTurn activity. It omits Turn.Client: a model.Client is not
// JSON-serializable and, on a durable backend, the activity runs in a
// worker process that already holds the right client — TurnInput.Identity
// is how that worker's TurnActivityHandler looks it up.
type TurnInput struct {
	QuestionName string
	Scenario     scenario.Scenario
	Agent        *agent.Agent
	Identity     model.Identity
	Params       model.Parameters
	Memory       []survey.MemoryPair
	Answers      map[string]any
	Iteration    int
}

// NewTurnActivityHandler returns the ActivityFunc registered under
// TurnActivityName. s resolves each Turn's full question.Question (workflow
// code only has the question's name, so the Survey is looked up inside the
// activity rather than carried on the wire); clients resolves the
// model.Client for a TurnInput's model.Identity.
func NewTurnActivityHandler(inv *invigilator.Invigilator, s *survey.Survey, clients map[string]model.Client) ActivityFunc {
	return func(ctx context.Context, rawInput any) (any, error) {
		in, ok := rawInput.(TurnInput)
		if !ok {
			return nil, fmt.Errorf("engine: RunTurn: unexpected input type %T", rawInput)
		}
		q, ok := s.Question(in.QuestionName)
		if !ok {
			return nil, fmt.Errorf("engine: RunTurn: survey %q has no question %q", s.ID, in.QuestionName)
		}
		client, ok := clients[in.Identity.Key()]
		if !ok {
			return nil, fmt.Errorf("engine: RunTurn: no model client registered for %q", in.Identity.Key())
		}
		rec, err := inv.Run(ctx, invigilator.Turn{
			Question:  q,
			Scenario:  in.Scenario,
			Agent:     in.Agent,
			Identity:  in.Identity,
			Params:    in.Params,
			Client:    client,
			Memory:    in.Memory,
			Answers:   in.Answers,
			Iteration: in.Iteration,
		})
		return rec, err
	}
}

// NewInterviewWorkflow returns the WorkflowFunc registered under
// InterviewWorkflowName. It reimplements interview.Interview.Run's state
// machine (spec §4.8) one level up, replacing the in-process call to
// Invigilator.Run with wf.ExecuteActivity(TurnActivityName, ...) so each
// question turn is checkpointed by the engine: a process restart between
// two questions resumes the Interview from its last completed turn instead
// of re-running it from the first question.
func NewInterviewWorkflow() WorkflowFunc {
	return func(wf WorkflowContext, rawInput any) (any, error) {
		id, ok := rawInput.(interview.Identity)
		if !ok {
			return nil, fmt.Errorf("engine: Interview workflow: unexpected input type %T", rawInput)
		}

		hash, err := interview.InitialHash(id)
		if err != nil {
			return nil, err
		}

		res := interview.Result{
			Order:       id.Order,
			Identity:    id,
			InitialHash: hash,
			Answers:     make(map[string]any),
			Turns:       make(map[string]interview.Turn),
		}

		current := id.Survey.First()
		exceptionFlag := false

		for current != survey.End {
			select {
			case <-wf.Context().Done():
				res.Fatal = wf.Context().Err()
				return res, res.Fatal
			default:
			}

			memory := id.Survey.MemoryFor(current, res.Answers)

			var rec invigilator.Recorded
			err := wf.ExecuteActivity(wf.Context(), ActivityRequest{
				Name: TurnActivityName,
				Input: TurnInput{
					QuestionName: current,
					Scenario:     id.Scenario,
					Agent:        id.Agent,
					Identity:     id.Model,
					Params:       id.Params,
					Memory:       memory,
					Answers:      res.Answers,
					Iteration:    id.Iteration,
				},
			}, &rec)
			if err != nil {
				res.Fatal = err
				return res, err
			}

			res.Turns[current] = interview.Turn{Recorded: rec}

			if rec.Err != nil {
				exceptionFlag = true
				kind, ok := execerr.KindOf(rec.Err)
				if !ok {
					kind = execerr.KindValidation
				}
				res.Exceptions = append(res.Exceptions, interview.Exception{
					QuestionName: current,
					Kind:         kind,
					Message:      rec.Err.Error(),
				})
				res.Answers[current] = nil
			} else {
				exceptionFlag = false
				res.Answers[current] = rec.Answer
			}

			next, err := id.Survey.Next(current, survey.EvalContext{Answers: res.Answers, Exception: exceptionFlag})
			if err != nil {
				res.Fatal = fmt.Errorf("engine: Interview workflow: survey %q: next after %q: %w", id.Survey.ID, current, err)
				return res, res.Fatal
			}
			current = next
		}

		return res, nil
	}
}
