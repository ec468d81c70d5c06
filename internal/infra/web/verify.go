package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// VerifySignature checks the provider's HMAC-SHA256 signature over the raw
// request body. The header carries the base64-encoded MAC. Comparison is
// constant-time; an empty header never verifies.
func VerifySignature(rawBody []byte, signatureHeader string, secret []byte) bool {
	if signatureHeader == "" || len(secret) == 0 {
		return false
	}
	provided, err := base64.StdEncoding.DecodeString(signatureHeader)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	return hmac.Equal(provided, mac.Sum(nil))
}
