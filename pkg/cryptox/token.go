package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Nonce size constants (in bytes before encoding).
const (
	// NonceSize128 provides 128 bits of entropy (22 chars base64url).
	NonceSize128 = 16
	// NonceSize256 provides 256 bits of entropy (43 chars base64url).
	NonceSize256 = 32
)

// GenerateNonce creates a cryptographically secure random value of the
// specified byte length, base64url encoded without padding. Authorization
// attempts use it for the state parameter.
func GenerateNonce(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("nonce size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random nonce: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// EqualNonce compares two nonces in constant time.
func EqualNonce(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
