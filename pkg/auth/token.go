package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// MinTokenBytes is the smallest amount of randomness accepted for tokens (256 bits).
const MinTokenBytes = 32

// GenerateToken returns base64url(n random bytes) without padding.
func GenerateToken(n int) (string, error) {
	if n < MinTokenBytes {
		return "", fmt.Errorf("token length %d is below minimum of %d bytes", n, MinTokenBytes)
	}
	randomBytes := make([]byte, n)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// HashToken computes the SHA256 hash of a token for lookup
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks that token is base64url and carries enough entropy.
func ValidateTokenFormat(token string) error {
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	if len(decoded) < MinTokenBytes {
		return fmt.Errorf("token is too short")
	}
	return nil
}
