package modeladapter

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"edsl/pkg/execerr"
	"edsl/pkg/model"
)

// GatewayClient is a generic escape hatch for model-serving endpoints that
// expose only a bare gRPC surface (no Go SDK in the teacher's or the wider
// example corpus's dependency set) by exchanging google.protobuf.Struct
// envelopes rather than a generated request/response type, so one adapter
// serves any gateway that agrees on a small field convention. Concrete
// providers with a dedicated SDK (Anthropic, OpenAI, Bedrock) get their own
// thin adapter instead; this is the fallback for everything else.
type GatewayClient struct {
	conn   *grpc.ClientConn
	method string
}

// NewGatewayClient builds a GatewayClient that invokes the given fully
// qualified method (e.g. "/modelgateway.Gateway/Call") over conn.
func NewGatewayClient(conn *grpc.ClientConn, method string) *GatewayClient {
	return &GatewayClient{conn: conn, method: method}
}

// Call encodes req as a google.protobuf.Struct and issues a unary RPC,
// decoding the response Struct's "text"/"input_tokens"/"output_tokens"
// fields back into a RawResponse.
func (c *GatewayClient) Call(ctx context.Context, identity model.Identity, req model.Request) (*model.RawResponse, error) {
	in, err := structpb.NewStruct(map[string]any{
		"service":           identity.Service,
		"model":             identity.ModelName,
		"system":            req.System,
		"user":              req.User,
		"temperature":       req.Params.Temperature,
		"max_output_tokens": req.Params.MaxOutputTokens,
		"iteration":         req.Iteration,
	})
	if err != nil {
		return nil, execerr.New(execerr.KindProvider, "", "gateway: encode request", err)
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, c.method, in, out); err != nil {
		return nil, classifyGRPCError(err)
	}

	fields := out.AsMap()
	text, _ := fields["text"].(string)
	inputTokens, _ := fields["input_tokens"].(float64)
	outputTokens, _ := fields["output_tokens"].(float64)
	finish, _ := fields["finish_reason"].(string)
	return &model.RawResponse{
		Raw:          text,
		InputTokens:  int(inputTokens),
		OutputTokens: int(outputTokens),
		Cost:         ComputeCost(identity.Service, identity.ModelName, int(inputTokens), int(outputTokens)),
		FinishReason: finish,
	}, nil
}

func classifyGRPCError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return execerr.NewProviderError("gateway", "call", 0, execerr.ProviderErrorKindOther, "", err.Error(), "", true, err)
	}
	kind, retryable := classifyGRPCCode(st.Code())
	return execerr.NewProviderError("gateway", "call", 0, kind, st.Code().String(), st.Message(), "", retryable, err)
}

func classifyGRPCCode(code codes.Code) (execerr.ProviderErrorKind, bool) {
	switch code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return execerr.ProviderErrorKindAuth, false
	case codes.ResourceExhausted:
		return execerr.ProviderErrorKindQuota, true
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return execerr.ProviderErrorKindOther, true
	case codes.InvalidArgument, codes.FailedPrecondition:
		return execerr.ProviderErrorKindMalformed, false
	default:
		return execerr.ProviderErrorKindOther, false
	}
}
