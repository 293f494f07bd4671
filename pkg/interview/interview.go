// Package interview implements the Interview (C7, spec §4.8): one run of a
// Survey against a single (agent, scenario, model, iteration) tuple. Grounded
// on the teacher's workflow/activity separation (runtime/agent/engine): an
// Interview plays the role of a workflow whose question turns are the
// activities, sequential within the interview, run many-in-parallel across
// the population by the scheduler.
package interview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"edsl/pkg/agent"
	"edsl/pkg/execerr"
	"edsl/pkg/invigilator"
	"edsl/pkg/model"
	"edsl/pkg/scenario"
	"edsl/pkg/survey"
	"edsl/pkg/telemetry"
)

// Identity is the (agent, scenario, model, iteration) tuple that selects one
// point in the population Cartesian product (spec §4.8).
type Identity struct {
	Survey    *survey.Survey
	Agent     *agent.Agent
	Scenario  scenario.Scenario
	Model     model.Identity
	Params    model.Parameters
	Iteration int

	// Order is the interview's ordinal position in the scheduler's
	// canonical Cartesian enumeration (spec §4.9), carried through to the
	// emitted Result so out-of-order completion can still be assembled in
	// order.
	Order int
}

// Exception is one per-question failure recorded on an Interview's exception
// list (spec §4.8 "Exception handling"). It never aborts the Interview by
// itself; only a fatal error does.
type Exception struct {
	QuestionName string
	Kind         execerr.Kind
	Message      string
}

// Turn is the recorded detail for one completed question, carried through to
// the emitted Result (spec §4.7 "Recorded output").
type Turn struct {
	invigilator.Recorded
}

// Result is the Interview's emitted output row precursor (spec §3 "Result").
// pkg/resultset flattens this into a Row.
type Result struct {
	Order      int
	Identity   Identity
	InitialHash string
	Answers    map[string]any
	Turns      map[string]Turn
	Exceptions []Exception
	Fatal      error
}

// hashInput is the canonical-JSON shape fingerprinted into InitialHash (spec
// §4.8: "content hash of (survey_id, agent_hash, scenario_hash,
// model_identity, iteration)").
type hashInput struct {
	SurveyID     string        `json:"survey_id"`
	AgentHash    string        `json:"agent_hash"`
	ScenarioHash string        `json:"scenario_hash"`
	ModelIdentity model.Identity `json:"model_identity"`
	Iteration    int           `json:"iteration"`
}

// InitialHash computes id's stable content hash, used for deduplication and
// logging (spec §4.8).
func InitialHash(id Identity) (string, error) {
	agentHash := ""
	if id.Agent != nil {
		h, err := id.Agent.Hash()
		if err != nil {
			return "", fmt.Errorf("interview: agent hash: %w", err)
		}
		agentHash = h
	}
	scenarioBytes, err := model.CanonicalJSON(id.Scenario.Fields)
	if err != nil {
		return "", fmt.Errorf("interview: scenario hash: %w", err)
	}
	scenarioSum := sha256.Sum256(scenarioBytes)

	surveyID := ""
	if id.Survey != nil {
		surveyID = id.Survey.ID
	}

	b, err := model.CanonicalJSON(hashInput{
		SurveyID:      surveyID,
		AgentHash:     agentHash,
		ScenarioHash:  hex.EncodeToString(scenarioSum[:]),
		ModelIdentity: id.Model,
		Iteration:     id.Iteration,
	})
	if err != nil {
		return "", fmt.Errorf("interview: initial hash: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Interview walks a Survey for one Identity to completion (spec §4.8's state
// machine), issuing one Invigilator turn per question in survey-DAG order.
type Interview struct {
	Inv     *invigilator.Invigilator
	Client  model.Client
	Logger  telemetry.Logger
	Tracer  telemetry.Tracer

	// StopOnFirstError ends the interview at the first FailedValidation
	// turn instead of continuing (spec §4.7 "the Interview continues
	// unless configured to stop on first error").
	StopOnFirstError bool
}

// New constructs an Interview runner over inv, calling client for every
// question turn.
func New(inv *invigilator.Invigilator, client model.Client) *Interview {
	return &Interview{
		Inv:    inv,
		Client: client,
		Logger: telemetry.NewNoopLogger(),
		Tracer: telemetry.NewNoopTracer(),
	}
}

// Run executes id's survey to completion, returning its Result. A non-nil
// error is returned only for a fatal, job-aborting failure (spec §4.8:
// "Fatal errors emit a partial Result with the exception set"); the partial
// Result is still returned alongside that error so the caller can record it.
func (iv *Interview) Run(ctx context.Context, id Identity) (Result, error) {
	ctx, span := iv.Tracer.Start(ctx, "interview.Run")
	defer span.End()

	hash, err := InitialHash(id)
	if err != nil {
		return Result{Order: id.Order, Identity: id}, err
	}

	res := Result{
		Order:       id.Order,
		Identity:    id,
		InitialHash: hash,
		Answers:     make(map[string]any),
		Turns:       make(map[string]Turn),
	}

	current := id.Survey.First()
	exceptionFlag := false

	for current != survey.End {
		select {
		case <-ctx.Done():
			res.Fatal = ctx.Err()
			return res, res.Fatal
		default:
		}

		q, ok := id.Survey.Question(current)
		if !ok {
			res.Fatal = fmt.Errorf("interview: survey %q: unknown question %q in flow", id.Survey.ID, current)
			return res, res.Fatal
		}

		memory := id.Survey.MemoryFor(current, res.Answers)

		rec, err := iv.Inv.Run(ctx, invigilator.Turn{
			Question:  q,
			Scenario:  id.Scenario,
			Agent:     id.Agent,
			Identity:  id.Model,
			Params:    id.Params,
			Client:    iv.Client,
			Memory:    memory,
			Answers:   res.Answers,
			Iteration: id.Iteration,
		})
		if err != nil {
			res.Fatal = err
			return res, err
		}

		res.Turns[current] = Turn{Recorded: rec}

		if rec.Err != nil {
			exceptionFlag = true
			kind, ok := execerr.KindOf(rec.Err)
			if !ok {
				kind = execerr.KindValidation
			}
			res.Exceptions = append(res.Exceptions, Exception{
				QuestionName: current,
				Kind:         kind,
				Message:      rec.Err.Error(),
			})
			res.Answers[current] = nil
			if iv.StopOnFirstError {
				return res, nil
			}
		} else {
			exceptionFlag = false
			res.Answers[current] = rec.Answer
		}

		next, err := id.Survey.Next(current, survey.EvalContext{Answers: res.Answers, Exception: exceptionFlag})
		if err != nil {
			res.Fatal = fmt.Errorf("interview: survey %q: next after %q: %w", id.Survey.ID, current, err)
			return res, res.Fatal
		}
		current = next
	}

	return res, nil
}
