// Package modeladapter implements the Model Adapter (C5, spec §4.6): one
// model.Client per provider, translating the execution core's single
// system/user-prompt Request into a provider-native call and normalizing the
// result (tokens, cost, finish reason, error classification). Grounded on the
// teacher's features/model/{anthropic,openai,bedrock} adapters, narrowed from
// a multi-turn tool-calling transcript to EDSL's one-shot call shape.
package modeladapter

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"edsl/pkg/execerr"
	"edsl/pkg/model"
)

// MessagesClient is the subset of the Anthropic SDK client this adapter
// depends on, matching the teacher's anthropic.MessagesClient so a fake can
// stand in for tests without a live API key.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicOptions configures defaults applied when a Request does not
// specify them.
type AnthropicOptions struct {
	MaxTokens   int
	Temperature float64
}

// AnthropicClient implements model.Client on top of Anthropic's Messages API.
type AnthropicClient struct {
	msg  MessagesClient
	opts AnthropicOptions
}

// NewAnthropicClient builds an Anthropic-backed model.Client from msg.
func NewAnthropicClient(msg MessagesClient, opts AnthropicOptions) (*AnthropicClient, error) {
	if msg == nil {
		return nil, errors.New("modeladapter: anthropic messages client is required")
	}
	return &AnthropicClient{msg: msg, opts: opts}, nil
}

// NewAnthropicClientFromAPIKey constructs a client against the real
// Anthropic API using apiKey.
func NewAnthropicClientFromAPIKey(apiKey string, opts AnthropicOptions) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("modeladapter: anthropic api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicClient(&c.Messages, opts)
}

// Call issues a single Messages.New request carrying req.System as the
// system prompt and req.User as the sole user message, per EDSL's one-shot
// call shape (spec §4.6, §6.5).
func (c *AnthropicClient) Call(ctx context.Context, identity model.Identity, req model.Request) (*model.RawResponse, error) {
	maxTokens := req.Params.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}
	if maxTokens <= 0 {
		return nil, execerr.New(execerr.KindProvider, "", "anthropic: max_output_tokens is required", nil)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(identity.ModelName),
		MaxTokens: int64(maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.User))},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	temp := req.Params.Temperature
	if temp <= 0 {
		temp = c.opts.Temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	return translateAnthropicResponse(identity, msg), nil
}

func translateAnthropicResponse(identity model.Identity, msg *sdk.Message) *model.RawResponse {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	in := int(msg.Usage.InputTokens)
	out := int(msg.Usage.OutputTokens)
	return &model.RawResponse{
		Raw:             text,
		InputTokens:     in,
		OutputTokens:    out,
		Cost:            ComputeCost(identity.Service, identity.ModelName, in, out),
		ProviderModelID: string(msg.Model),
		FinishReason:    string(msg.StopReason),
	}
}

// httpStatusError is satisfied by the Anthropic, OpenAI and AWS SDK error
// types, all of which expose the failing HTTP status this way, letting one
// classifier serve every HTTP-backed adapter without depending on any single
// SDK's concrete error type.
type httpStatusError interface {
	error
	StatusCode() int
}

func classifyAnthropicError(err error) error {
	var se httpStatusError
	if errors.As(err, &se) {
		kind, retryable := classifyHTTPStatus(se.StatusCode())
		return execerr.NewProviderError("anthropic", "messages.new", se.StatusCode(), kind, "", err.Error(), "", retryable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return execerr.NewProviderError("anthropic", "messages.new", 0, execerr.ProviderErrorKindOther, "", err.Error(), "", false, err)
	}
	return execerr.NewProviderError("anthropic", "messages.new", 0, execerr.ProviderErrorKindOther, "", err.Error(), "", true, err)
}

// classifyHTTPStatus maps a provider's HTTP status to a ProviderErrorKind and
// whether the failure is worth retrying, shared shape across all HTTP-backed
// adapters (spec §4.6, §7).
func classifyHTTPStatus(status int) (execerr.ProviderErrorKind, bool) {
	switch {
	case status == 401 || status == 403:
		return execerr.ProviderErrorKindAuth, false
	case status == 429:
		return execerr.ProviderErrorKindQuota, true
	case status >= 500:
		return execerr.ProviderErrorKindOther, true
	case status == 400 || status == 422:
		return execerr.ProviderErrorKindMalformed, false
	default:
		return execerr.ProviderErrorKindOther, false
	}
}
