// Package security holds the cryptographic primitives behind keyforge
// credentials: API key generation and verification, password hashing,
// and session token signing.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// PrefixLength is the fixed length of the indexed, non-secret
	// portion of a generated key: the 8-char environment marker plus
	// the first 8 characters of the random token. Everything after it
	// is the secret remainder (>= 128 bits of entropy).
	PrefixLength = 16

	secretBytes = 24 // 192 bits, 32 chars base64url

	liveMarker = "sk_live_"
	testMarker = "sk_test_"
)

// SecretCodec generates API key material and verifies presented
// remainders against stored hashes. The environment marker makes key
// provenance visible to operators without weakening the secret.
type SecretCodec struct {
	marker string
}

// NewSecretCodec returns a codec stamping keys for the given
// environment ("prod" keys read sk_live_..., everything else sk_test_...).
func NewSecretCodec(environment string) *SecretCodec {
	marker := testMarker
	if environment == "prod" {
		marker = liveMarker
	}
	return &SecretCodec{marker: marker}
}

// GenerateSecret produces a fresh key. It returns the full plaintext
// (shown to the caller exactly once), the lookup prefix, and the hash
// of the remainder. Neither the plaintext nor the remainder is ever
// persisted.
func (c *SecretCodec) GenerateSecret() (plaintext, prefix, hash string, err error) {
	raw := make([]byte, secretBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	plaintext = c.marker + base64.RawURLEncoding.EncodeToString(raw)
	prefix = plaintext[:PrefixLength]
	hash = HashRemainder(plaintext[PrefixLength:])
	return plaintext, prefix, hash, nil
}

// SplitKey splits a presented key into its prefix and secret
// remainder. ok is false when the input is too short to contain any
// secret material.
func SplitKey(presented string) (prefix, remainder string, ok bool) {
	if len(presented) <= PrefixLength {
		return "", "", false
	}
	return presented[:PrefixLength], presented[PrefixLength:], true
}

// HashRemainder returns the hex-encoded SHA-256 digest of the secret
// remainder. The digest is what gets stored.
func HashRemainder(remainder string) string {
	sum := sha256.Sum256([]byte(remainder))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the candidate remainder matches the stored
// hash. Comparison is constant-time; malformed input yields false,
// never an error.
func (c *SecretCodec) Verify(remainder, storedHash string) bool {
	candidate := HashRemainder(remainder)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}
