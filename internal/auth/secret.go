package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// secretBytes is the entropy of a refresh-token secret (256 bits).
const secretBytes = 32

// NewRefreshSecret returns a fresh URL-safe refresh-token secret.
func NewRefreshSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenHasher computes the durable lookup hash of a refresh-token secret.
type TokenHasher struct {
	key []byte
}

// NewTokenHasher returns a hasher keyed with key. An empty key degrades to
// plain SHA-256, which is only acceptable in development.
func NewTokenHasher(key string) *TokenHasher {
	return &TokenHasher{key: []byte(key)}
}

// Hash returns the hex HMAC-SHA256 of secret.
func (h *TokenHasher) Hash(secret string) string {
	if len(h.key) == 0 {
		sum := sha256.Sum256([]byte(secret))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}
