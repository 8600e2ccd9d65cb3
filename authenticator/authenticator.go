package authenticator

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Provider abstracts how machine callers are authenticated
type Provider interface {
	// Enabled reports whether credentials are required at all
	Enabled() bool
	// Verify reports whether token is a valid credential
	Verify(token string) bool
}

// APIKeyProvider accepts a single static key, as configured by API_KEY
type APIKeyProvider struct {
	key []byte
}

// NewAPIKeyProvider creates a provider for key. An empty key disables authentication.
func NewAPIKeyProvider(key string) *APIKeyProvider {
	return &APIKeyProvider{key: []byte(key)}
}

// Enabled reports whether an API key is configured
func (p *APIKeyProvider) Enabled() bool {
	return len(p.key) > 0
}

// Verify compares token with the key in constant time
func (p *APIKeyProvider) Verify(token string) bool {
	if !p.Enabled() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), p.key) == 1
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
