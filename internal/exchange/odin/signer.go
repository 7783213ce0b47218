package odin

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sign derives the request signature for an authenticated gateway call
// from the session secret, the request nonce, the caller principal and
// the millisecond timestamp.
func Sign(secret, nonce, principal, ts string) string {
	h1 := sha256.Sum256([]byte(nonce + ts + principal))
	h2 := sha256.Sum256([]byte(hex.EncodeToString(h1[:]) + secret))
	return hex.EncodeToString(h2[:])
}
