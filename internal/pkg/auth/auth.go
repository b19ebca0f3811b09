// Package auth validates control plane API keys. Keys are configured as
// SHA-256 hashes; the plaintext never appears in configuration.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
)

// Key is a configured API key.
type Key struct {
	KeyHash     string
	Description string
}

// Authenticator validates API keys against the configured hashes.
type Authenticator struct {
	keys map[string]*Key // keyhash -> key
}

// NewAuthenticator creates an authenticator for the given keys.
func NewAuthenticator(keys []config.APIKeyConfig) *Authenticator {
	a := &Authenticator{
		keys: make(map[string]*Key, len(keys)),
	}
	for _, k := range keys {
		if k.KeyHash == "" {
			continue
		}
		hash := strings.ToLower(k.KeyHash)
		a.keys[hash] = &Key{KeyHash: hash, Description: k.Description}
	}
	return a
}

// Enabled reports whether any key is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.keys) > 0
}

// ValidateAPIKey validates an API key and returns the matching key.
func (a *Authenticator) ValidateAPIKey(apiKey string) (*Key, error) {
	keyHash := HashAPIKey(apiKey)

	k, ok := a.keys[keyHash]
	if !ok {
		return nil, fmt.Errorf("invalid API key")
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(k.KeyHash)) != 1 {
		return nil, fmt.Errorf("invalid API key")
	}

	return k, nil
}

// ExtractAPIKey extracts the API key from the Authorization header
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return parts[1], nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
