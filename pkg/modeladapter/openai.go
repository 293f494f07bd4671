package modeladapter

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"edsl/pkg/execerr"
	"edsl/pkg/model"
)

// ChatClient is the subset of the official OpenAI SDK client this adapter
// depends on. The teacher's own OpenAI file imports the unofficial
// sashabaranov/go-openai package, which is absent from its go.mod; this
// adapter targets github.com/openai/openai-go, the package go.mod actually
// declares.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIOptions configures defaults applied when a Request does not specify
// them.
type OpenAIOptions struct {
	MaxTokens   int
	Temperature float64
}

// OpenAIClient implements model.Client on top of the Chat Completions API.
type OpenAIClient struct {
	chat ChatClient
	opts OpenAIOptions
}

// NewOpenAIClient builds an OpenAI-backed model.Client from chat.
func NewOpenAIClient(chat ChatClient, opts OpenAIOptions) (*OpenAIClient, error) {
	if chat == nil {
		return nil, errors.New("modeladapter: openai chat client is required")
	}
	return &OpenAIClient{chat: chat, opts: opts}, nil
}

// NewOpenAIClientFromAPIKey constructs a client against the real OpenAI API
// using apiKey.
func NewOpenAIClientFromAPIKey(apiKey string, opts OpenAIOptions) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("modeladapter: openai api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIClient(&chatCompletionsAdapter{c.Chat.Completions}, opts)
}

// chatCompletionsAdapter narrows *openai.ChatCompletionService to ChatClient.
type chatCompletionsAdapter struct {
	svc openai.ChatCompletionService
}

func (a *chatCompletionsAdapter) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	return a.svc.New(ctx, body, opts...)
}

// Call issues a single Chat Completions request with req.System and req.User
// as the system and user messages, per EDSL's one-shot call shape.
func (c *OpenAIClient) Call(ctx context.Context, identity model.Identity, req model.Request) (*model.RawResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(identity.ModelName),
		Messages: messages,
	}
	maxTokens := req.Params.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	temp := req.Params.Temperature
	if temp <= 0 {
		temp = c.opts.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	return translateOpenAIResponse(identity, resp), nil
}

func translateOpenAIResponse(identity model.Identity, resp *openai.ChatCompletion) *model.RawResponse {
	var text, finish string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		finish = string(resp.Choices[0].FinishReason)
	}
	in := int(resp.Usage.PromptTokens)
	out := int(resp.Usage.CompletionTokens)
	return &model.RawResponse{
		Raw:             text,
		InputTokens:     in,
		OutputTokens:    out,
		Cost:            ComputeCost(identity.Service, identity.ModelName, in, out),
		ProviderModelID: resp.Model,
		FinishReason:    finish,
	}
}

func classifyOpenAIError(err error) error {
	var se httpStatusError
	if errors.As(err, &se) {
		kind, retryable := classifyHTTPStatus(se.StatusCode())
		return execerr.NewProviderError("openai", "chat.completions.new", se.StatusCode(), kind, "", err.Error(), "", retryable, err)
	}
	return execerr.NewProviderError("openai", "chat.completions.new", 0, execerr.ProviderErrorKindOther, "", err.Error(), "", true, err)
}
