package store

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// tokenLength is the entropy of generated session tokens in bytes.
const tokenLength = 32

// NewSessionToken generates a cryptographically random session identifier,
// base58-encoded so it is safe in cookies and URLs without escaping.
func NewSessionToken() (string, error) {
	raw := make([]byte, tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base58.Encode(raw), nil
}
