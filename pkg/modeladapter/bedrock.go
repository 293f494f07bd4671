package modeladapter

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"edsl/pkg/execerr"
	"edsl/pkg/model"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client this
// adapter depends on, matching *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockOptions configures defaults applied when a Request does not specify
// them.
type BedrockOptions struct {
	MaxTokens   int
	Temperature float32
}

// BedrockClient implements model.Client on top of the Bedrock Converse API.
type BedrockClient struct {
	runtime RuntimeClient
	opts    BedrockOptions
}

// NewBedrockClient builds a Bedrock-backed model.Client from runtime.
func NewBedrockClient(runtime RuntimeClient, opts BedrockOptions) (*BedrockClient, error) {
	if runtime == nil {
		return nil, errors.New("modeladapter: bedrock runtime client is required")
	}
	return &BedrockClient{runtime: runtime, opts: opts}, nil
}

// Call issues a single Converse request with req.System and req.User as the
// system and user content, per EDSL's one-shot call shape.
func (c *BedrockClient) Call(ctx context.Context, identity model.Identity, req model.Request) (*model.RawResponse, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(identity.ModelName),
		Messages: []brtypes.Message{
			{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: req.User}},
			},
		},
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}

	maxTokens := int32(req.Params.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = int32(c.opts.MaxTokens)
	}
	temp := float32(req.Params.Temperature)
	if temp <= 0 {
		temp = c.opts.Temperature
	}
	if maxTokens > 0 || temp > 0 {
		cfg := &brtypes.InferenceConfiguration{}
		if maxTokens > 0 {
			cfg.MaxTokens = aws.Int32(maxTokens)
		}
		if temp > 0 {
			cfg.Temperature = aws.Float32(temp)
		}
		input.InferenceConfig = cfg
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, classifyBedrockError(err)
	}
	return translateBedrockResponse(identity, out), nil
}

func translateBedrockResponse(identity model.Identity, out *bedrockruntime.ConverseOutput) *model.RawResponse {
	var text string
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += t.Value
			}
		}
	}
	var in, out2 int
	if out.Usage != nil {
		in = int(aws.ToInt32(out.Usage.InputTokens))
		out2 = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return &model.RawResponse{
		Raw:          text,
		InputTokens:  in,
		OutputTokens: out2,
		Cost:         ComputeCost(identity.Service, identity.ModelName, in, out2),
		FinishReason: string(out.StopReason),
	}
}

func classifyBedrockError(err error) error {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		kind, retryable := classifyHTTPStatus(re.HTTPStatusCode())
		return execerr.NewProviderError("bedrock", "converse", re.HTTPStatusCode(), kind, "", err.Error(), "", retryable, err)
	}
	return execerr.NewProviderError("bedrock", "converse", 0, execerr.ProviderErrorKindOther, "", err.Error(), "", true, err)
}
