package jupiter

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
)

// CanonicalPrivateKey normalizes a private key to base58, the only form the
// aggregator accepts. Keys arrive from wallet providers in base58 or base64;
// the conversion happens here, at the single wire edge, so the rest of the
// system never sees a base64 key.
func CanonicalPrivateKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty private key")
	}

	if raw, err := base58.Decode(key); err == nil && len(raw) == ed25519.PrivateKeySize {
		return key, nil
	}

	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("private key is neither base58 nor base64")
	}
	if len(raw) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("decoded key is %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	return base58.Encode(raw), nil
}
