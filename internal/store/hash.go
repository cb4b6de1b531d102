package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashArtifact computes a deterministic digest of the artifact's
// canonical JSON serialization. The artifact is decoded and
// re-encoded so that key order and whitespace do not affect the
// digest; two versions with equal hashes are content-identical.
func HashArtifact(artifact json.RawMessage) (string, error) {
	var decoded any
	if err := json.Unmarshal(artifact, &decoded); err != nil {
		return "", fmt.Errorf("%w: artifact is not valid JSON: %v", ErrInvalidConfig, err)
	}

	canonical, err := json.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize artifact: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
