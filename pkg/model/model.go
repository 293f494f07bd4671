// Package model defines the provider-agnostic model identity and call types
// shared by the cache, model adapter, and invigilator. It is adapted from the
// teacher's runtime/agent/model package, narrowed to EDSL's single-turn
// system/user-prompt call shape (spec §4.6, §6.5) instead of a full
// multi-turn tool-calling transcript.
package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

type (
	// Parameters captures the sampling/decoding knobs for a model call.
	// Two Parameters values are compared by their canonical JSON encoding
	// when computing cache fingerprints (spec §4.4, §6.3).
	Parameters struct {
		Temperature      float64        `json:"temperature,omitempty"`
		TopP             float64        `json:"top_p,omitempty"`
		FrequencyPenalty float64        `json:"frequency_penalty,omitempty"`
		PresencePenalty  float64        `json:"presence_penalty,omitempty"`
		MaxOutputTokens  int            `json:"max_output_tokens,omitempty"`
		Extra            map[string]any `json:"extra,omitempty"`
	}

	// Identity uniquely identifies a model configuration. Per spec §3,
	// (Service, ModelName, Parameters) is the model's identity; two
	// Identity values with equal identity are interchangeable.
	Identity struct {
		Service    string     `json:"service"`
		ModelName  string     `json:"model_name"`
		Parameters Parameters `json:"parameters"`
	}

	// FileRef references a binary blob attached to a request (e.g. a
	// scenario file field). Bytes are hashed into the cache fingerprint
	// rather than embedded verbatim (spec §4.4).
	FileRef struct {
		Name   string
		Format string
		Bytes  []byte
		URI    string
	}

	// Request captures a single model invocation: a rendered system and
	// user prompt, sampling parameters, an optional response schema used
	// to request provider-native structured output, and optional file
	// attachments.
	Request struct {
		System         string
		User           string
		Params         Parameters
		ResponseSchema any
		Files          []FileRef
		Iteration      int
	}

	// TokenCost reports the published per-token-class price applied to a
	// call (spec §4.6 "published price table keyed by (service, model)").
	TokenCost struct {
		InputTokens      int
		OutputTokens     int
		CacheReadTokens  int
		CacheWriteTokens int
		USD              float64
	}

	// RawResponse is the result of a model call before validation. Raw
	// holds the raw provider payload (opaque string/object per spec §3
	// CacheEntry.output); Structured optionally holds a provider-parsed
	// JSON value when the adapter used native structured output.
	RawResponse struct {
		Raw             string
		Structured      any
		InputTokens     int
		OutputTokens    int
		Cost            TokenCost
		ProviderModelID string
		FinishReason    string
	}

	// Client is the uniform call interface over heterogeneous providers
	// (spec §4.6, §6.5). Implementations translate Request into a
	// provider-specific call and normalize the result, including cost
	// accounting and retry/error classification.
	Client interface {
		Call(ctx context.Context, identity Identity, req Request) (*RawResponse, error)
	}
)

// Key returns a stable string identity for the model, suitable for map keys
// and log fields. It is not used for cache fingerprints (those use the
// canonical JSON encoding so they remain stable across field additions).
func (id Identity) Key() string {
	return id.Service + "::" + id.ModelName + "::" + id.paramsFingerprint()
}

func (id Identity) paramsFingerprint() string {
	b, _ := canonicalJSON(id.Parameters)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// canonicalJSON encodes v with sorted object keys and no insignificant
// whitespace, matching the cache fingerprint contract in spec §4.4/§6.3.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalCanonical(generic)
}

func marshalCanonical(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := marshalCanonical(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte{'['}
		for i, e := range t {
			if i > 0 {
				out = append(out, ',')
			}
			eb, err := marshalCanonical(e)
			if err != nil {
				return nil, err
			}
			out = append(out, eb...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(t)
	}
}

// CanonicalJSON exposes marshalCanonical to sibling packages (cache
// fingerprinting, survey serialization round-trip checks).
func CanonicalJSON(v any) ([]byte, error) { return canonicalJSON(v) }
