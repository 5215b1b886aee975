package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Sign returns the unpadded base64url HMAC-SHA256 of payload keyed by secret.
func Sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the HMAC of payload. The comparison
// does not leak the position of the first differing byte.
func Verify(payload, signature, secret string) bool {
	expected := Sign(payload, secret)
	if len(expected) != len(signature) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
