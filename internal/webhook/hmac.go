package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrVerification is the only error Verify returns, so callers cannot leak
// which check failed.
var ErrVerification = errors.New("webhook verification failed")

// Verify checks signature against the HMAC-SHA256 of body under secret.
// Accepts "sha256=<hex>" and plain hex.
func Verify(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return ErrVerification
	}
	actual, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return ErrVerification
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), actual) {
		return ErrVerification
	}
	return nil
}

// Sign returns the "sha256=<hex>" signature for body, for senders and tests.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
