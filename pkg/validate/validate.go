// Package validate implements the Response Schema & Validator Registry
// (spec §4.3, §9 C2): per-question-type structural validation plus ordered
// deterministic repair strategies applied to malformed model responses
// before a turn is declared FailedValidation.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"edsl/pkg/question"
)

// ErrorKind classifies a validation failure for the append-only
// validation-failure log (spec §4.3).
type ErrorKind string

const (
	ErrorKindSchemaMismatch ErrorKind = "schema_mismatch"
	ErrorKindOutOfRange     ErrorKind = "out_of_range"
	ErrorKindUnknownOption  ErrorKind = "unknown_option"
	ErrorKindUnparseable    ErrorKind = "unparseable"
)

// Result is the outcome of validating (and possibly repairing) a raw model
// response against a question's schema.
type Result struct {
	Valid   bool
	Answer  any
	Comment string
	ErrorKind ErrorKind
	Message string
}

// FailureRecord is the append-only, never-loss-critical log entry emitted on
// a validation failure (spec §4.3).
type FailureRecord struct {
	QuestionType question.Type
	QuestionName string
	ErrorKind    ErrorKind
	InvalidData  any
}

// Registry holds per-question-type validators and a schema compiler shared
// across dict/extract/pydantic_schema validation. A single Registry is
// shared across the scheduler's whole worker pool (cmd/edslctl/run.go wires
// one into every Invigilator), so schemas and failures are guarded by mu
// rather than relying on call-site synchronization.
type Registry struct {
	mu       sync.Mutex
	compiler *jsonschema.Compiler
	schemas  map[string]*jsonschema.Schema
	failures []FailureRecord
}

// NewRegistry constructs a Registry.
func NewRegistry() *Registry {
	return &Registry{compiler: jsonschema.NewCompiler(), schemas: make(map[string]*jsonschema.Schema)}
}

// Failures returns a snapshot of the accumulated validation-failure log
// records.
func (r *Registry) Failures() []FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FailureRecord(nil), r.failures...)
}

func (r *Registry) logFailure(q question.Question, kind ErrorKind, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, FailureRecord{
		QuestionType: q.Type,
		QuestionName: q.Name,
		ErrorKind:    kind,
		InvalidData:  data,
	})
}

// Validate checks raw (the decoded JSON body of a model response, or the
// direct-answer value from an Agent short-circuit) against q's schema,
// applying q's repair strategy when the first pass fails. It returns a
// Result with Valid=false (and a FailureRecord appended) when every repair
// attempt is exhausted.
func (r *Registry) Validate(_ context.Context, q question.Question, raw any) Result {
	res := r.validateOnce(q, raw)
	if res.Valid {
		return res
	}
	repaired, ok := repair(q, raw)
	if !ok {
		r.logFailure(q, res.ErrorKind, raw)
		return res
	}
	res2 := r.validateOnce(q, repaired)
	if !res2.Valid {
		r.logFailure(q, res2.ErrorKind, raw)
	}
	return res2
}

func (r *Registry) validateOnce(q question.Question, raw any) Result {
	switch q.Type {
	case question.TypeFreeText, question.TypeMarkdown:
		s, ok := asString(raw)
		if !ok {
			return invalid(ErrorKindSchemaMismatch, "expected string")
		}
		return Result{Valid: true, Answer: s}

	case question.TypeMultipleChoice, question.TypeDropdown:
		return validateChoice(q, raw, false)
	case question.TypeMultipleChoiceOther:
		return validateChoice(q, raw, true)
	case question.TypeYesNo:
		return validateYesNo(raw)
	case question.TypeCheckbox:
		return validateCheckbox(q, raw)
	case question.TypeTopK:
		return validateTopK(q, raw)
	case question.TypeNumerical:
		return validateNumerical(q, raw)
	case question.TypeLinearScale, question.TypeLikertFive:
		return validateScale(q, raw)
	case question.TypeList:
		return validateList(q, raw)
	case question.TypeDict, question.TypeExtract:
		return validateDict(q, raw)
	case question.TypeMatrix:
		return validateMatrix(q, raw)
	case question.TypeRank:
		return validateRank(q, raw)
	case question.TypeBudget:
		return validateBudget(q, raw)
	case question.TypeCompute:
		return Result{Valid: true, Answer: raw}
	case question.TypePydanticSchema:
		return r.validateSchema(q, raw)
	default:
		return invalid(ErrorKindSchemaMismatch, fmt.Sprintf("unsupported question type %q", q.Type))
	}
}

// validateSchema validates a pydantic_schema-typed answer (spec §6.2:
// "answer conforms to a caller-supplied structural schema"). When the
// question carries a raw JSON-schema document (Constraints.SchemaJSON) it
// is compiled and checked with jsonschema/v6; otherwise validation falls
// back to DictFields-based field checking, same as extract.
func (r *Registry) validateSchema(q question.Question, raw any) Result {
	if len(q.Constraints.SchemaJSON) == 0 {
		return validateDict(q, raw)
	}
	schema, err := r.compileSchema(q.Name, q.Constraints.SchemaJSON)
	if err != nil {
		return invalid(ErrorKindSchemaMismatch, fmt.Sprintf("compile schema: %v", err))
	}
	if err := schema.Validate(raw); err != nil {
		return invalid(ErrorKindSchemaMismatch, err.Error())
	}
	return Result{Valid: true, Answer: raw}
}

// compileSchema compiles (and memoizes, by resource name) the JSON-schema
// document declared for q, so repeated turns for the same question across
// many interviews compile the schema at most once.
func (r *Registry) compileSchema(name string, doc []byte) (*jsonschema.Schema, error) {
	resource := name + ".schema.json"

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.schemas[resource]; ok {
		return s, nil
	}
	var decoded any
	if err := json.Unmarshal(doc, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if err := r.compiler.AddResource(resource, decoded); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := r.compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	r.schemas[resource] = schema
	return schema, nil
}

func invalid(kind ErrorKind, msg string) Result {
	return Result{Valid: false, ErrorKind: kind, Message: msg}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
