package question

// AnswerShape describes the Go shape a validated answer for a question type
// takes once validate.Registry has accepted it (spec §6.2).
type AnswerShape string

const (
	ShapeString  AnswerShape = "string"
	ShapeBool    AnswerShape = "bool"
	ShapeNumber  AnswerShape = "number"
	ShapeList    AnswerShape = "list"
	ShapeDict    AnswerShape = "dict"
	ShapeMatrix  AnswerShape = "matrix"
	ShapeNone    AnswerShape = "none"
)

// TypeRecord is the catalog entry for one question Type: its answer shape,
// whether comments/other text is structurally meaningful, and the default
// repair strategy class used when a model response fails validation (spec
// §9 "deterministic repair strategies, registered per question type").
type TypeRecord struct {
	Shape          AnswerShape
	AllowsOther    bool
	RepairStrategy string
}

// Catalog is the closed registry of known question types. It is read-only
// after package initialization.
var Catalog = map[Type]TypeRecord{
	TypeFreeText:            {Shape: ShapeString, RepairStrategy: "trim_and_wrap"},
	TypeMultipleChoice:      {Shape: ShapeString, RepairStrategy: "nearest_option"},
	TypeYesNo:               {Shape: ShapeString, RepairStrategy: "coerce_bool"},
	TypeMultipleChoiceOther: {Shape: ShapeString, AllowsOther: true, RepairStrategy: "nearest_option_or_other"},
	TypeCheckbox:            {Shape: ShapeList, RepairStrategy: "filter_known_options"},
	TypeTopK:                {Shape: ShapeList, RepairStrategy: "truncate_to_k"},
	TypeNumerical:           {Shape: ShapeNumber, RepairStrategy: "extract_number"},
	TypeLinearScale:         {Shape: ShapeNumber, RepairStrategy: "clamp_to_scale"},
	TypeLikertFive:          {Shape: ShapeNumber, RepairStrategy: "clamp_to_scale"},
	TypeList:                {Shape: ShapeList, RepairStrategy: "split_to_list"},
	TypeDict:                {Shape: ShapeDict, RepairStrategy: "coerce_fields"},
	TypeMatrix:              {Shape: ShapeMatrix, RepairStrategy: "coerce_rows"},
	TypeRank:                {Shape: ShapeList, RepairStrategy: "dedupe_rank"},
	TypeBudget:              {Shape: ShapeDict, RepairStrategy: "renormalize_budget"},
	TypeExtract:             {Shape: ShapeDict, RepairStrategy: "coerce_fields"},
	TypeDropdown:            {Shape: ShapeString, RepairStrategy: "nearest_option"},
	TypeMarkdown:            {Shape: ShapeNone, RepairStrategy: "none"},
	TypeCompute:             {Shape: ShapeNumber, RepairStrategy: "none"},
	TypePydanticSchema:      {Shape: ShapeDict, RepairStrategy: "schema_repair"},
}

// IsAsked reports whether a question type is actually posed to a model
// (markdown and compute are structural/derived and never reach an
// invigilator's model call, per spec §6.2).
func IsAsked(t Type) bool {
	return t != TypeMarkdown && t != TypeCompute
}
