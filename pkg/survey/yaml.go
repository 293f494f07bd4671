package survey

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// LoadYAML parses a human-authored YAML survey document (spec §6.1
// "persisted form") into a Survey. YAML is decoded into the same generic
// shape MarshalJSON/UnmarshalJSON already define, then routed through the
// existing JSON codec, so a hand-written YAML survey gets the identical
// validation and predicate-envelope handling a JSON one does rather than a
// second parallel decoder to keep in sync. Grounded on the teacher's
// integration_tests/framework/runner.go use of gopkg.in/yaml.v3 for
// human-authored test fixtures.
func LoadYAML(data []byte) (*Survey, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("survey: parse yaml: %w", err)
	}
	jsonBytes, err := json.Marshal(convertYAMLMapKeys(generic))
	if err != nil {
		return nil, fmt.Errorf("survey: re-encode yaml as json: %w", err)
	}
	s := &Survey{}
	if err := json.Unmarshal(jsonBytes, s); err != nil {
		return nil, fmt.Errorf("survey: decode: %w", err)
	}
	return s, nil
}

// DumpYAML renders s back to YAML, reusing MarshalJSON's envelope so the two
// representations never drift. Named DumpYAML rather than MarshalYAML since
// its signature ([]byte, error) doesn't match yaml.Marshaler's
// (any, error) — Survey's wire format belongs to the JSON codec in
// serialize.go; this is a convenience export on top of it, not a second
// source of truth.
func (s *Survey) DumpYAML() ([]byte, error) {
	jsonBytes, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(jsonBytes, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

// convertYAMLMapKeys recursively rewrites map[string]interface{} keys
// produced by yaml.v3 (which decodes mappings as map[string]interface{}
// when given an `any` destination, but may nest map[any]interface{} from
// merge keys) into the map[string]any shape encoding/json can marshal.
func convertYAMLMapKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = convertYAMLMapKeys(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = convertYAMLMapKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = convertYAMLMapKeys(e)
		}
		return out
	default:
		return v
	}
}
