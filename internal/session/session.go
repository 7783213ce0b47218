// Package session manages authenticated per-bot sessions for the Odin
// gateway. Sessions are produced by a SIWB login and cached in a local
// BoltDB file so repeated pipeline runs do not re-authenticate.
package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the signing context for one bot. The key material lives only
// here; callers borrow a Session for the duration of one pipeline run.
type Session struct {
	Bot       string    `json:"bot"`
	Principal string    `json:"principal"`
	Token     string    `json:"token"`
	Secret    string    `json:"secret"`
	ExpiresAt time.Time `json:"expires_at"`
}

// expirySkew guards against using a session that expires mid-pipeline.
const expirySkew = 30 * time.Second

// Valid reports whether the session can still be used for signed calls.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.Principal == "" || s.Token == "" {
		return false
	}
	exp := s.ExpiresAt
	if exp.IsZero() {
		var err error
		exp, err = tokenExpiry(s.Token)
		if err != nil {
			return false
		}
	}
	return now.Add(expirySkew).Before(exp)
}

// tokenExpiry extracts the exp claim from the gateway JWT without
// verifying its signature; validity is the gateway's concern, we only
// need the expiration window for cache decisions.
func tokenExpiry(token string) (time.Time, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse session token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("session token has no exp claim")
	}
	return exp.Time, nil
}

// AuthError signals that no cached session existed and re-authentication
// failed. The pipeline fails fast on it; no funds have moved.
type AuthError struct {
	Bot string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for bot %s: %v", e.Bot, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
