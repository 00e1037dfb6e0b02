// Package auth implements the request signing contract for the ingest API.
//
// Clients sign "<unix-seconds>:<raw body bytes>" with HMAC-SHA256 using their
// credential secret and send the lowercase hex digest in X-Signature. The raw
// body bytes are signed exactly as received; the server never re-serializes
// before verifying, so canonicalization mismatches are impossible. This is the
// v1 wire contract and must not change without versioning.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SigningString builds the canonical byte sequence covered by the signature.
func SigningString(timestamp string, body []byte) []byte {
	msg := make([]byte, 0, len(timestamp)+1+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, ':')
	msg = append(msg, body...)
	return msg
}

// Sign computes the lowercase hex HMAC-SHA256 signature for the canonical
// string. Used by provisioning tools and tests; the server only verifies.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(SigningString(timestamp, body))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the expected digest for the given
// secret, timestamp and raw body. Comparison is constant-time; a malformed
// signature encoding verifies false like any other mismatch.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	supplied, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(SigningString(timestamp, body))
	expected := mac.Sum(nil)

	return hmac.Equal(expected, supplied)
}
