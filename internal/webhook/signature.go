package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// ErrInvalidSignature is returned when a delivery's signature does not match its body.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns the WooCommerce signature of body: base64 HMAC-SHA256 keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against body. An empty secret disables verification.
func Verify(body []byte, signature, secret string) error {
	if secret == "" {
		return nil
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || signature == "" {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
