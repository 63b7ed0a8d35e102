// internal/pkg/csrf/csrf.go
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"
)

// Double-submit cookie protection: the token lives in a cookie readable by
// client script and must be echoed back in a request header on every
// mutating request.
const (
	CookieName = "csrf-token"
	HeaderName = "x-csrf-token"
	TokenTTL   = 24 * time.Hour
)

// GenerateToken returns a random 32-byte URL-safe token.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokensMatch compares the cookie and header values in constant time.
// Differing lengths never match; subtle.ConstantTimeCompare already
// returns 0 for them without short-circuiting on content.
func TokensMatch(cookieValue, headerValue string) bool {
	if cookieValue == "" || headerValue == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieValue), []byte(headerValue)) == 1
}
