package modeladapter

import "edsl/pkg/model"

// priceKey identifies a (service, model) row in the published price table
// (spec §4.6: "per-token-class costs (using the published price table keyed
// by (service, model))").
type priceKey struct {
	Service string
	Model   string
}

// pricePerMillion holds USD cost per 1M tokens, input and output priced
// separately since providers charge output at a different rate.
type pricePerMillion struct {
	Input  float64
	Output float64
}

// priceTable is a conservative snapshot of list prices. Callers needing
// current, authoritative pricing should refresh this table from the
// provider's published rates; the core only requires that a table exists
// and is consulted consistently.
var priceTable = map[priceKey]pricePerMillion{
	{"anthropic", "claude-opus-4"}:    {Input: 15.00, Output: 75.00},
	{"anthropic", "claude-sonnet-4"}:  {Input: 3.00, Output: 15.00},
	{"anthropic", "claude-haiku-3.5"}: {Input: 0.80, Output: 4.00},
	{"openai", "gpt-4o"}:              {Input: 2.50, Output: 10.00},
	{"openai", "gpt-4o-mini"}:         {Input: 0.15, Output: 0.60},
	{"bedrock", "anthropic.claude-3-5-sonnet"}: {Input: 3.00, Output: 15.00},
	{"test", "test"}:                  {Input: 0, Output: 0},
}

// ComputeCost prices a call's token counts against priceTable. An unknown
// (service, model) pair prices at zero rather than erroring, since cost
// accounting must never block a call from completing.
func ComputeCost(service, modelName string, inputTokens, outputTokens int) model.TokenCost {
	p := priceTable[priceKey{Service: service, Model: modelName}]
	return model.TokenCost{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		USD:          float64(inputTokens)/1e6*p.Input + float64(outputTokens)/1e6*p.Output,
	}
}

// RegisterPrice overrides or adds a price table entry, used by callers that
// load current pricing from a config file or remote source at startup.
func RegisterPrice(service, modelName string, inputPerMillion, outputPerMillion float64) {
	priceTable[priceKey{Service: service, Model: modelName}] = pricePerMillion{Input: inputPerMillion, Output: outputPerMillion}
}
