package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/marcogenualdo/qf-auth/internal/config"
	"github.com/marcogenualdo/qf-auth/pkg/security"
)

const (
	SessionCookieName = "qf_session"
	SessionMaxAge     = 7 * 24 * time.Hour

	// DefaultExpiryBuffer treats access tokens as expired slightly before
	// the resource server would reject them.
	DefaultExpiryBuffer = 60 * time.Second
)

// Session is the credential bundle carried in the encrypted session cookie.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt"`
	Scope        string `json:"scope,omitempty"`
}

// IsExpired reports whether the access token expires within buffer of now.
func (s *Session) IsExpired(now time.Time, buffer time.Duration) bool {
	return s.ExpiresAt-int64(buffer/time.Second) <= now.Unix()
}

// CredentialKey identifies the session for refresh coordination.
func (s *Session) CredentialKey() string {
	if s.RefreshToken != "" {
		return s.RefreshToken
	}
	return s.AccessToken
}

// IsExpired is Session.IsExpired against the wall clock.
func IsExpired(s *Session, buffer time.Duration) bool {
	return s.IsExpired(time.Now(), buffer)
}

// sessionWire distinguishes missing fields from zero values on decode.
type sessionWire struct {
	AccessToken  *string `json:"accessToken"`
	RefreshToken *string `json:"refreshToken"`
	IDToken      *string `json:"idToken"`
	ExpiresAt    *int64  `json:"expiresAt"`
	Scope        *string `json:"scope"`
}

type SessionCodec struct {
	cfg    config.ServerConfig
	sealer *security.Sealer
}

func NewSessionCodec(cfg config.ServerConfig, secret string) (*SessionCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("cookie secret is required")
	}

	sealer, err := security.NewSealer(security.DeriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to create sealer: %w", err)
	}

	return &SessionCodec{cfg: cfg, sealer: sealer}, nil
}

func (c *SessionCodec) Issue(s *Session) (*http.Cookie, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	value, err := c.sealer.Seal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to seal session: %w", err)
	}

	return security.CreateCookie(c.cfg, SessionCookieName, value, SessionMaxAge), nil
}

// Read returns the session from a raw Cookie header. Any failure, including
// tampering, yields false and is indistinguishable from no session.
func (c *SessionCodec) Read(cookieHeader string) (*Session, bool) {
	raw, ok := security.CookieValue(cookieHeader, SessionCookieName)
	if !ok {
		return nil, false
	}

	plaintext, err := c.sealer.Open(raw)
	if err != nil {
		return nil, false
	}

	var wire sessionWire
	if err := json.Unmarshal(plaintext, &wire); err != nil {
		return nil, false
	}
	if wire.AccessToken == nil || wire.ExpiresAt == nil {
		return nil, false
	}

	return &Session{
		AccessToken:  *wire.AccessToken,
		RefreshToken: deref(wire.RefreshToken),
		IDToken:      deref(wire.IDToken),
		ExpiresAt:    *wire.ExpiresAt,
		Scope:        deref(wire.Scope),
	}, true
}

func (c *SessionCodec) FromRequest(r *http.Request) (*Session, bool) {
	return c.Read(r.Header.Get("Cookie"))
}

func (c *SessionCodec) Clear() *http.Cookie {
	return security.ClearCookie(c.cfg, SessionCookieName)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
