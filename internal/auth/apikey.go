package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the default bcrypt cost factor
const DefaultBcryptCost = 12

// APIKeyVerifier checks presented API keys against a stored bcrypt hash
type APIKeyVerifier struct {
	hash string
}

// NewAPIKeyVerifier creates a verifier for one configured hash
func NewAPIKeyVerifier(hash string) *APIKeyVerifier {
	return &APIKeyVerifier{hash: hash}
}

// Verify reports whether the presented key matches the stored hash
func (v *APIKeyVerifier) Verify(key string) bool {
	if v.hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(v.hash), []byte(key)) == nil
}

// HashAPIKey produces the bcrypt hash to store in configuration
func HashAPIKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), DefaultBcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(bytes), nil
}
