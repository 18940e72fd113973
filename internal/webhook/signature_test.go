package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(timestamp string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_Valid(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"ticket_id":"12345"}`)
	timestamp := "2025-01-15T10:00:00Z"

	headers := http.Header{}
	headers.Set(SignatureHeader, sign(timestamp, body, secret))
	headers.Set(TimestampHeader, timestamp)

	assert.True(t, VerifySignature(headers, body, secret))
}

func TestVerifySignature_MissingHeaders(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"ticket_id":"12345"}`)
	timestamp := "2025-01-15T10:00:00Z"

	tests := []struct {
		name    string
		headers http.Header
	}{
		{"no headers", http.Header{}},
		{"signature only", func() http.Header {
			h := http.Header{}
			h.Set(SignatureHeader, sign(timestamp, body, secret))
			return h
		}()},
		{"timestamp only", func() http.Header {
			h := http.Header{}
			h.Set(TimestampHeader, timestamp)
			return h
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, VerifySignature(tt.headers, body, secret))
		})
	}
}

func TestVerifySignature_BodyBitFlip(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"ticket_id":"12345"}`)
	timestamp := "2025-01-15T10:00:00Z"

	headers := http.Header{}
	headers.Set(SignatureHeader, sign(timestamp, body, secret))
	headers.Set(TimestampHeader, timestamp)

	// Flipping any single bit of the body must falsify verification
	for i := 0; i < len(body); i++ {
		tampered := make([]byte, len(body))
		copy(tampered, body)
		tampered[i] ^= 0x01
		assert.False(t, VerifySignature(headers, tampered, secret), "bit flip at byte %d", i)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"ticket_id":"12345"}`)
	timestamp := "2025-01-15T10:00:00Z"

	headers := http.Header{}
	headers.Set(SignatureHeader, sign(timestamp, body, "right-secret"))
	headers.Set(TimestampHeader, timestamp)

	assert.False(t, VerifySignature(headers, body, "wrong-secret"))
}

func TestVerifySignature_TamperedTimestamp(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"ticket_id":"12345"}`)

	headers := http.Header{}
	headers.Set(SignatureHeader, sign("2025-01-15T10:00:00Z", body, secret))
	headers.Set(TimestampHeader, "2025-01-15T10:00:01Z")

	assert.False(t, VerifySignature(headers, body, secret))
}

func TestTruncateSignature(t *testing.T) {
	assert.Equal(t, "abcd1234", TruncateSignature("abcd1234ef567890"))
	assert.Equal(t, "short", TruncateSignature("short"))
}
