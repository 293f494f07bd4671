package modeladapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"edsl/pkg/model"
)

// TestClient is the spec's deterministic "test" model (spec §4.6: "a special
// deterministic test model used for fixtures and CI"). It derives a
// reproducible response from the request content with no network access, so
// scenarios built against it produce stable cache fingerprints and stable
// golden output across runs.
type TestClient struct {
	// Responder optionally overrides the canned response. It receives the
	// rendered prompts and returns the text to answer with; when nil, a
	// hash-derived placeholder answer is produced.
	Responder func(identity model.Identity, req model.Request) string
}

// NewTestClient constructs a deterministic model.Client.
func NewTestClient() *TestClient { return &TestClient{} }

func (c *TestClient) Call(_ context.Context, identity model.Identity, req model.Request) (*model.RawResponse, error) {
	text := c.Responder
	var raw string
	if text != nil {
		raw = text(identity, req)
	} else {
		raw = deterministicAnswer(req)
	}
	inputTokens := estimateTokens(req.System) + estimateTokens(req.User)
	outputTokens := estimateTokens(raw)
	return &model.RawResponse{
		Raw:             raw,
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		Cost:            ComputeCost(identity.Service, identity.ModelName, inputTokens, outputTokens),
		ProviderModelID: "test",
		FinishReason:    "stop",
	}, nil
}

// deterministicAnswer derives a short, stable string from a content hash of
// the system and user prompts, so repeated calls with identical input (the normal case,
// since the cache otherwise short-circuits them) are reproducible even
// without the cache.
func deterministicAnswer(req model.Request) string {
	sum := sha256.Sum256([]byte(req.System + "\x00" + req.User))
	return fmt.Sprintf("test-answer-%s", hex.EncodeToString(sum[:4]))
}

// estimateTokens is a rough whitespace-based token estimate used only by the
// test client, which has no provider usage metadata to report.
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
