package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/marcogenualdo/qf-auth/internal/config"
	"github.com/marcogenualdo/qf-auth/pkg/security"
)

const (
	PendingCookieName = "qf_pending_auth"
	PendingMaxAge     = 10 * time.Minute
)

// PendingAuth is the intent of one sign-in attempt, carried in a signed
// cookie between the login redirect and the callback.
type PendingAuth struct {
	State        string `json:"state"`
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"codeVerifier"`
	RedirectURI  string `json:"redirectUri"`
}

type pendingWire struct {
	State        *string `json:"state"`
	Nonce        *string `json:"nonce"`
	CodeVerifier *string `json:"codeVerifier"`
	RedirectURI  *string `json:"redirectUri"`
}

type PendingCodec struct {
	cfg    config.ServerConfig
	secret string
}

func NewPendingCodec(cfg config.ServerConfig, secret string) (*PendingCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("cookie secret is required")
	}
	return &PendingCodec{cfg: cfg, secret: secret}, nil
}

func (c *PendingCodec) Issue(p PendingAuth) (*http.Cookie, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pending auth: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	value := encoded + "." + security.Sign(encoded, c.secret)

	return security.CreateCookie(c.cfg, PendingCookieName, value, PendingMaxAge), nil
}

// Consume verifies and decodes the pending record from a raw Cookie header.
// The caller must also send Clear() in the same response.
func (c *PendingCodec) Consume(cookieHeader string) (*PendingAuth, bool) {
	raw, ok := security.CookieValue(cookieHeader, PendingCookieName)
	if !ok {
		return nil, false
	}

	encoded, signature, found := strings.Cut(raw, ".")
	if !found {
		return nil, false
	}
	if !security.Verify(encoded, signature, c.secret) {
		return nil, false
	}

	payload, err := security.DecodeSegment(encoded)
	if err != nil {
		return nil, false
	}

	var wire pendingWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, false
	}
	if wire.State == nil || wire.Nonce == nil || wire.CodeVerifier == nil || wire.RedirectURI == nil {
		return nil, false
	}

	return &PendingAuth{
		State:        *wire.State,
		Nonce:        *wire.Nonce,
		CodeVerifier: *wire.CodeVerifier,
		RedirectURI:  *wire.RedirectURI,
	}, true
}

func (c *PendingCodec) Clear() *http.Cookie {
	return security.ClearCookie(c.cfg, PendingCookieName)
}
