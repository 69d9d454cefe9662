package webutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HeaderHubSignature256 carries the HMAC of a GitHub webhook body.
const HeaderHubSignature256 = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// SignPayload returns the X-Hub-Signature-256 value for body under secret.
func SignPayload(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayloadSignature reports whether header is a valid
// "sha256=<hex>" HMAC of body under secret. An empty secret never verifies.
func VerifyPayloadSignature(secret, body []byte, header string) bool {
	if len(secret) == 0 || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
