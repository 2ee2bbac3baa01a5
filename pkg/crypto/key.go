package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ErrMissingKey is returned when no encryption secret is configured.
var ErrMissingKey = errors.New("crypto: encryption key not configured")

// DeriveKey turns configured secret material into a 32-byte key. A secret
// that is already a hex or base64 encoding of exactly 32 bytes is used as
// is; anything else is compressed with SHA-256.
func DeriveKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingKey
	}
	if len(secret) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(secret); err == nil {
			return key, nil
		}
	}
	if len(secret) == base64.StdEncoding.EncodedLen(KeySize) {
		if key, err := base64.StdEncoding.DecodeString(secret); err == nil && len(key) == KeySize {
			return key, nil
		}
	}
	sum := sha256.Sum256([]byte(secret))
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key, nil
}
