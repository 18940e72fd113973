package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// Header names used by the ticket system's webhook delivery.
const (
	SignatureHeader = "X-Zendesk-Webhook-Signature"
	TimestampHeader = "X-Zendesk-Webhook-Signature-Timestamp"
)

// prefixLen bounds how much signature material may appear in logs.
const prefixLen = 8

// VerifySignature checks that the webhook delivery was produced by the
// authentic event source. The expected signature is HMAC-SHA256 over the
// signing timestamp concatenated with the raw body, keyed by the shared
// secret and hex-encoded.
//
// When either header is absent no HMAC is computed at all, so a probe
// cannot distinguish "missing" from "mismatch" by timing. The comparison
// itself is constant-time.
//
// TODO: enforce a freshness window on the signing timestamp once the
// acceptable replay horizon is agreed with the ticket-system team.
func VerifySignature(headers http.Header, rawBody []byte, secret string) bool {
	signature := headers.Get(SignatureHeader)
	timestamp := headers.Get(TimestampHeader)

	if signature == "" || timestamp == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// ExpectedSignature recomputes the signature for a delivery. Only used by
// callers that need the truncated prefix for mismatch logging.
func ExpectedSignature(timestamp string, rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// TruncateSignature returns a short prefix safe to log. Full signatures
// and the secret never reach the logs.
func TruncateSignature(sig string) string {
	if len(sig) <= prefixLen {
		return sig
	}
	return sig[:prefixLen]
}
