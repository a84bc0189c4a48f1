package csrf

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

const (
	TokenLength = 32 // bytes
	TokenTTL    = 24 * time.Hour

	CookieName = "csrf_token"
	HeaderName = "X-CSRF-Token"
	FormField  = "csrf_token"
)

// GenerateToken creates a cryptographically secure random token
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// ValidateToken compares the cookie token with the submitted one.
// Both sides are hashed first so tokens of different length go through the
// same fixed-size constant-time comparison.
func ValidateToken(cookieToken, requestToken string) bool {
	if cookieToken == "" || requestToken == "" {
		return false
	}
	a := sha256.Sum256([]byte(cookieToken))
	b := sha256.Sum256([]byte(requestToken))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
