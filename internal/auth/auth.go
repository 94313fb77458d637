// Package auth verifies the credential a client presents when it opens a
// signaling connection.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/config"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Request locations a credential is read from.
const (
	QueryParam   = "apiKey"
	HeaderAPIKey = "X-API-Key"
)

type Verifier interface {
	Verify(credential string) error
}

// NewVerifier returns the verifier for cfg.AuthMode.
func NewVerifier(cfg config.Config) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeNone:
		return Anonymous{}, nil
	case config.AuthModeAPIKey:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("auth mode %q requires an API key", cfg.AuthMode)
		}
		return APIKeyVerifier{Expected: cfg.APIKey}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

// Anonymous accepts every connection.
type Anonymous struct{}

func (Anonymous) Verify(string) error { return nil }

// CredentialFromRequest extracts the client's credential. The apiKey query
// parameter is checked first since browsers cannot set headers on a
// WebSocket handshake; then the X-API-Key header, then a bearer token.
func CredentialFromRequest(r *http.Request) (string, error) {
	if v := r.URL.Query().Get(QueryParam); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); v != "" {
		return v, nil
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token), nil
	}
	return "", ErrMissingCredentials
}

// Authorize reads the request's credential and verifies it.
func Authorize(v Verifier, r *http.Request) error {
	if _, ok := v.(Anonymous); ok {
		return nil
	}
	cred, err := CredentialFromRequest(r)
	if err != nil {
		return err
	}
	return v.Verify(cred)
}
