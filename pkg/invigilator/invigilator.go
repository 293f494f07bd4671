// Package invigilator orchestrates one question turn: render, cache/model,
// validate, repair, record (spec §4.7, §9 C6). It is the component that sits
// between an Interview and the cache/bucket/model-adapter/validator
// subsystems, grounded on the teacher's per-call orchestration in
// runtime/agent/runtime/runtime.go (render request, acquire resources,
// invoke, classify outcome) retargeted from tool-calling turns to survey
// question turns.
package invigilator

import (
	"context"
	"fmt"

	"edsl/pkg/agent"
	"edsl/pkg/bucket"
	"edsl/pkg/cache"
	"edsl/pkg/execerr"
	"edsl/pkg/model"
	"edsl/pkg/prompt"
	"edsl/pkg/question"
	"edsl/pkg/scenario"
	"edsl/pkg/survey"
	"edsl/pkg/telemetry"
	"edsl/pkg/validate"
)

// defaultMaxRepairAttempts bounds the number of corrective re-calls to the
// model after the validator registry's own structural repair is exhausted
// (spec §4.7: "Repair (≤ R attempts with deterministic strategies; each
// attempt may re-call model with a corrective follow-up prompt ...)").
const defaultMaxRepairAttempts = 2

// Recorded is the per-turn output recorded on the Interview (spec §4.7
// "Recorded output").
type Recorded struct {
	QuestionName     string
	Answer           any
	Comment          string
	GeneratedTokens  string
	RawModelResponse string
	SystemPrompt     string
	UserPrompt       string
	CacheKey         string
	CacheHit         bool
	Validated        bool
	InputTokens      int
	OutputTokens     int
	Cost             model.TokenCost

	// Err carries the per-turn failure (TemplateRenderError, ValidationError,
	// a non-fatal ProviderError, ...), if any. A non-nil Err here never
	// propagates to other turns or interviews (spec §7 "Propagation
	// policy"); only the error returned from Run does.
	Err error
}

// Turn bundles the inputs for one question turn.
type Turn struct {
	Question  question.Question
	Scenario  scenario.Scenario
	Agent     *agent.Agent
	Identity  model.Identity
	Params    model.Parameters
	Client    model.Client
	Memory    []survey.MemoryPair
	Answers   map[string]any
	Iteration int
	Fresh     bool
}

// Config tunes the invigilator's behavior.
type Config struct {
	// MaxRepairAttempts bounds corrective re-calls to the model (spec §4.7).
	// Zero selects defaultMaxRepairAttempts.
	MaxRepairAttempts int
}

// Invigilator runs one turn at a time (spec §4.7 state machine). A single
// Invigilator value is shared read-only across every concurrently-running
// Interview; the Cache and Buckets it wraps supply their own synchronization
// (spec §5).
type Invigilator struct {
	Renderer   *prompt.Renderer
	Cache      *cache.Cache
	Buckets    *bucket.Collection
	Validators *validate.Registry

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer

	Config Config
}

// Option configures an Invigilator at construction.
type Option func(*Invigilator)

// WithTelemetry wires a Logger/Metrics/Tracer triple, defaulting to the noop
// set when omitted.
func WithTelemetry(l telemetry.Logger, m telemetry.Metrics, t telemetry.Tracer) Option {
	return func(inv *Invigilator) { inv.Logger, inv.Metrics, inv.Tracer = l, m, t }
}

// WithMaxRepairAttempts overrides the default repair-attempt bound.
func WithMaxRepairAttempts(n int) Option {
	return func(inv *Invigilator) { inv.Config.MaxRepairAttempts = n }
}

// New constructs an Invigilator over the given renderer, cache, bucket
// collection, and validator registry.
func New(r *prompt.Renderer, c *cache.Cache, b *bucket.Collection, v *validate.Registry, opts ...Option) *Invigilator {
	inv := &Invigilator{
		Renderer:   r,
		Cache:      c,
		Buckets:    b,
		Validators: v,
		Logger:     telemetry.NewNoopLogger(),
		Metrics:    telemetry.NewNoopMetrics(),
		Tracer:     telemetry.NewNoopTracer(),
	}
	for _, o := range opts {
		o(inv)
	}
	return inv
}

func (inv *Invigilator) maxRepairAttempts() int {
	if inv.Config.MaxRepairAttempts > 0 {
		return inv.Config.MaxRepairAttempts
	}
	return defaultMaxRepairAttempts
}

// Run executes one question turn to completion, returning a Recorded value
// describing the outcome. The returned error is non-nil only for failures
// that must abort the owning Interview (fatal provider errors, e.g. auth);
// every other failure is captured on Recorded.Err and the turn is still
// "recorded" per spec §4.7's failure policy.
func (inv *Invigilator) Run(ctx context.Context, t Turn) (Recorded, error) {
	ctx, span := inv.Tracer.Start(ctx, "invigilator.Run")
	defer span.End()

	if !question.IsAsked(t.Question.Type) {
		return inv.runDerived(ctx, t)
	}

	if t.Agent != nil {
		if fn, ok := t.Agent.DirectAnswer(t.Question.Name); ok {
			return inv.runDirectAnswer(ctx, t, fn)
		}
	}

	rec := Recorded{QuestionName: t.Question.Name}

	system, user, err := inv.Renderer.Render(t.Question, t.Scenario, t.Agent, t.Memory, t.Answers)
	if err != nil {
		rec.Err = execerr.New(execerr.KindTemplateRender, t.Question.Name, err.Error(), err)
		return rec, nil
	}
	rec.SystemPrompt, rec.UserPrompt = system, user

	entry, hit, fp, err := inv.lookupOrBuild(ctx, t, system, user)
	rec.CacheKey = fp
	rec.CacheHit = hit
	if err != nil {
		if fatal := inv.classifyFatal(err); fatal != nil {
			return rec, fatal
		}
		rec.Err = execerr.New(execerr.KindProvider, t.Question.Name, err.Error(), err)
		return rec, nil
	}
	inv.applyUsage(&rec, entry.Output)

	return inv.validateAndRepair(ctx, t, rec, system, user, entry.Output.Raw)
}

func (inv *Invigilator) applyUsage(rec *Recorded, raw model.RawResponse) {
	rec.RawModelResponse = raw.Raw
	rec.GeneratedTokens = raw.Raw
	rec.InputTokens += raw.InputTokens
	rec.OutputTokens += raw.OutputTokens
	rec.Cost.InputTokens += raw.Cost.InputTokens
	rec.Cost.OutputTokens += raw.Cost.OutputTokens
	rec.Cost.CacheReadTokens += raw.Cost.CacheReadTokens
	rec.Cost.CacheWriteTokens += raw.Cost.CacheWriteTokens
	rec.Cost.USD += raw.Cost.USD
}

// classifyFatal reports the error that should abort the owning Interview (and
// potentially cancel the whole job), or nil when err is a per-turn-only
// failure (spec §7: "auth is fatal (job aborts) ... other kinds are per-turn").
func (inv *Invigilator) classifyFatal(err error) error {
	if pe, ok := execerr.AsProviderError(err); ok && pe.Kind == execerr.ProviderErrorKindAuth {
		return err
	}
	return nil
}

// validateAndRepair decodes raw into a candidate answer, validates it, and —
// on failure — re-calls the model with a corrective follow-up prompt up to
// Config.MaxRepairAttempts times before declaring FailedValidation (spec
// §4.7).
func (inv *Invigilator) validateAndRepair(ctx context.Context, t Turn, rec Recorded, system, user, raw string) (Recorded, error) {
	answer, comment := decodeResponse(t.Question, raw)
	if comment != "" {
		rec.Comment = comment
	}
	result := inv.Validators.Validate(ctx, t.Question, answer)

	attempts := inv.maxRepairAttempts()
	for attempt := 0; !result.Valid && attempt < attempts; attempt++ {
		correctiveUser := fmt.Sprintf(
			"%s\n\nYour previous response was invalid (%s): %s. Please respond again, strictly following the instructions above.",
			user, result.ErrorKind, result.Message,
		)
		entry, _, fp, err := inv.lookupOrBuild(ctx, t, system, correctiveUser)
		if err != nil {
			if fatal := inv.classifyFatal(err); fatal != nil {
				return rec, fatal
			}
			break
		}
		rec.CacheKey = fp
		inv.applyUsage(&rec, entry.Output)
		answer, comment = decodeResponse(t.Question, entry.Output.Raw)
		if comment != "" {
			rec.Comment = comment
		}
		result = inv.Validators.Validate(ctx, t.Question, answer)
	}

	if !result.Valid {
		rec.Validated = false
		rec.Err = execerr.New(execerr.KindValidation, t.Question.Name, result.Message, nil)
		return rec, nil
	}
	rec.Validated = true
	rec.Answer = result.Answer
	return rec, nil
}

// runDirectAnswer short-circuits a turn via the agent's direct-answer
// function: no template render, no cache interaction, no bucket consumption
// (spec §4.7 "Agent direct-answer short-circuit").
func (inv *Invigilator) runDirectAnswer(ctx context.Context, t Turn, fn agent.DirectAnswerFunc) (Recorded, error) {
	rec := Recorded{QuestionName: t.Question.Name}
	v, ok := fn(t.Question, t.Scenario.Fields, t.Answers)
	if !ok {
		rec.Err = execerr.New(execerr.KindValidation, t.Question.Name, "direct-answer function declined to answer", nil)
		return rec, nil
	}
	result := inv.Validators.Validate(ctx, t.Question, v)
	if !result.Valid {
		rec.Err = execerr.New(execerr.KindValidation, t.Question.Name, result.Message, nil)
		return rec, nil
	}
	rec.Validated = true
	rec.Answer = result.Answer
	return rec, nil
}

// runDerived handles the markdown/compute question types, neither of which
// reaches a model call (spec §6.2, question.IsAsked).
func (inv *Invigilator) runDerived(ctx context.Context, t Turn) (Recorded, error) {
	rec := Recorded{QuestionName: t.Question.Name}
	system, user, err := inv.Renderer.Render(t.Question, t.Scenario, t.Agent, t.Memory, t.Answers)
	if err != nil {
		rec.Err = execerr.New(execerr.KindTemplateRender, t.Question.Name, err.Error(), err)
		return rec, nil
	}
	rec.SystemPrompt, rec.UserPrompt = system, user

	switch t.Question.Type {
	case question.TypeMarkdown:
		rec.Answer = user
		rec.Validated = true
		return rec, nil
	case question.TypeCompute:
		v, err := evalArithmetic(user)
		if err != nil {
			rec.Err = execerr.New(execerr.KindValidation, t.Question.Name, err.Error(), err)
			return rec, nil
		}
		rec.Answer = v
		rec.Validated = true
		return rec, nil
	default:
		rec.Err = execerr.New(execerr.KindValidation, t.Question.Name, "unsupported derived question type", nil)
		return rec, nil
	}
}

// lookupOrBuild resolves the cache fingerprint for (system, user) under t's
// model identity/params/iteration, consulting the cache before acquiring
// buckets and invoking the model on a miss (spec §4.4, §4.7 CacheLookup /
// AcquireBuckets / Model.call / CacheInsert). hit reports whether the lookup
// preceding the build found an existing entry.
func (inv *Invigilator) lookupOrBuild(ctx context.Context, t Turn, system, user string) (cache.Entry, bool, string, error) {
	if t.Fresh {
		entry, fp, err := inv.Cache.Fresh(ctx, t.Identity, t.Params, system, user, t.Iteration, inv.builder(t, system, user))
		return entry, false, fp, err
	}
	fp, err := cache.Fingerprint(t.Identity, t.Params, system, user, t.Iteration)
	if err != nil {
		return cache.Entry{}, false, "", err
	}
	if e, ok, err := inv.Cache.Lookup(ctx, fp); err != nil {
		return cache.Entry{}, false, fp, err
	} else if ok {
		return e, true, fp, nil
	}
	e, err := inv.Cache.GetOrBuild(ctx, fp, inv.builder(t, system, user))
	return e, false, fp, err
}

// builder acquires the model's token/request buckets and invokes t.Client,
// producing the cache.Entry that GetOrBuild/Fresh will insert (spec §4.5
// "Batching optimization": both buckets must be held before the model call).
func (inv *Invigilator) builder(t Turn, system, user string) cache.Builder {
	return func(ctx context.Context) (cache.Entry, error) {
		if inv.Buckets != nil {
			estimated := estimateTokens(system) + estimateTokens(user) + t.Params.MaxOutputTokens
			if estimated <= 0 {
				estimated = estimateTokens(system) + estimateTokens(user) + 256
			}
			if err := inv.Buckets.AcquireBoth(ctx, t.Identity, estimated); err != nil {
				return cache.Entry{}, execerr.New(execerr.KindBucket, t.Question.Name, err.Error(), err)
			}
		}
		raw, err := t.Client.Call(ctx, t.Identity, model.Request{
			System:    system,
			User:      user,
			Params:    t.Params,
			Iteration: t.Iteration,
		})
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{
			ModelIdentity: t.Identity,
			Parameters:    t.Params,
			SystemPrompt:  system,
			UserPrompt:    user,
			Iteration:     t.Iteration,
			Output:        *raw,
		}, nil
	}
}

// estimateTokens is a rough whitespace-based token estimate used to size a
// bucket acquisition before the real usage is known (mirrors
// modeladapter.TestClient's own estimator; duplicated here since that one is
// unexported and the two estimates serve different purposes: cost reporting
// there, pre-call capacity planning here).
func estimateTokens(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}
