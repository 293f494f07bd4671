package agent

import (
	"crypto/sha256"
	"encoding/hex"

	"edsl/pkg/model"
)

func hashTraits(name string, traits map[string]any) (string, error) {
	b, err := model.CanonicalJSON(map[string]any{"name": name, "traits": traits})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
