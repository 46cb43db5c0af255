// AngelaMos | 2026
// security.go

package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignPayload returns the lowercase hex HMAC-SHA256 of payload under secret.
func SignPayload(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signatureHeader is the hex HMAC-SHA256 of
// the exact payload bytes under secret. It never errors; every malformed
// input is simply a mismatch.
func VerifySignature(payload []byte, signatureHeader string, secret []byte) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || len(secret) == 0 {
		return false
	}

	provided, err := hex.DecodeString(sig)
	if err != nil || len(provided) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)

	return hmac.Equal(mac.Sum(nil), provided)
}

// HashPayload is a stable identity for a raw body, used to recognise
// redelivered webhooks.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
