package auth

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/qf-auth/internal/config"
	"github.com/marcogenualdo/qf-auth/pkg/security"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{Environment: "development", CookieSameSite: "lax"}
}

func newTestSessionCodec(t *testing.T) *SessionCodec {
	t.Helper()
	codec, err := NewSessionCodec(testServerConfig(), testSecret)
	require.NoError(t, err)
	return codec
}

func cookieHeader(c *http.Cookie) string {
	return c.Name + "=" + c.Value
}

func TestSessionCodec_RoundTrip(t *testing.T) {
	codec := newTestSessionCodec(t)
	session := &Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		IDToken:      "a.b.c",
		ExpiresAt:    1700000000,
		Scope:        "openid user",
	}

	cookie, err := codec.Issue(session)
	require.NoError(t, err)
	assert.Equal(t, SessionCookieName, cookie.Name)
	assert.NotContains(t, cookie.Value, "access")

	got, ok := codec.Read(cookieHeader(cookie))
	require.True(t, ok)
	assert.Equal(t, session, got)
}

func TestSessionCodec_CookieAttributes(t *testing.T) {
	codec := newTestSessionCodec(t)

	cookie, err := codec.Issue(&Session{AccessToken: "a", ExpiresAt: 1})
	require.NoError(t, err)

	header := cookie.String()
	assert.Contains(t, header, "Path=/")
	assert.Contains(t, header, "HttpOnly")
	assert.Contains(t, header, "SameSite=Lax")
	assert.Contains(t, header, "Max-Age=604800")
	assert.NotContains(t, header, "Secure")

	prod := testServerConfig()
	prod.Environment = "production"
	prodCodec, err := NewSessionCodec(prod, testSecret)
	require.NoError(t, err)

	cookie, err = prodCodec.Issue(&Session{AccessToken: "a", ExpiresAt: 1})
	require.NoError(t, err)
	assert.Contains(t, cookie.String(), "Secure")
}

func TestSessionCodec_Clear(t *testing.T) {
	codec := newTestSessionCodec(t)

	header := codec.Clear().String()
	assert.True(t, strings.HasPrefix(header, SessionCookieName+"="))
	assert.Contains(t, header, "Max-Age=0")
	assert.Contains(t, header, "HttpOnly")
}

func TestSessionCodec_ReadTampered(t *testing.T) {
	codec := newTestSessionCodec(t)

	cookie, err := codec.Issue(&Session{AccessToken: "access", ExpiresAt: 1700000000})
	require.NoError(t, err)

	raw, err := security.DecodeSegment(cookie.Value)
	require.NoError(t, err)

	for i := range raw {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0x01
		value := encodeRaw(tampered)

		_, ok := codec.Read(SessionCookieName + "=" + value)
		assert.False(t, ok, "byte %d flipped but session was accepted", i)
	}
}

func TestSessionCodec_ReadFailures(t *testing.T) {
	codec := newTestSessionCodec(t)

	other, err := NewSessionCodec(testServerConfig(), "another-secret")
	require.NoError(t, err)
	foreign, err := other.Issue(&Session{AccessToken: "a", ExpiresAt: 1})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"empty header", ""},
		{"no session cookie", "other=value"},
		{"empty value", SessionCookieName + "="},
		{"not base64", SessionCookieName + "=!!!"},
		{"too short", SessionCookieName + "=" + encodeRaw(make([]byte, 28))},
		{"different key", cookieHeader(foreign)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := codec.Read(tt.header)
			assert.False(t, ok)
		})
	}
}

func TestSessionCodec_ReadMissingRequiredFields(t *testing.T) {
	codec := newTestSessionCodec(t)
	sealer, err := security.NewSealer(security.DeriveKey(testSecret))
	require.NoError(t, err)

	payloads := map[string]string{
		"missing access token": `{"expiresAt":1700000000}`,
		"missing expiry":       `{"accessToken":"a"}`,
		"wrong expiry type":    `{"accessToken":"a","expiresAt":"soon"}`,
		"not json":             `access`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			value, err := sealer.Seal([]byte(payload))
			require.NoError(t, err)

			_, ok := codec.Read(SessionCookieName + "=" + value)
			assert.False(t, ok)
		})
	}
}

func TestSessionCodec_ReadNullOptionalFields(t *testing.T) {
	codec := newTestSessionCodec(t)
	sealer, err := security.NewSealer(security.DeriveKey(testSecret))
	require.NoError(t, err)

	value, err := sealer.Seal([]byte(`{"accessToken":"a","refreshToken":null,"idToken":null,"expiresAt":42}`))
	require.NoError(t, err)

	got, ok := codec.Read("theme=dark; " + SessionCookieName + "=" + value)
	require.True(t, ok)
	assert.Equal(t, &Session{AccessToken: "a", ExpiresAt: 42}, got)
}

func TestNewSessionCodec_RequiresSecret(t *testing.T) {
	_, err := NewSessionCodec(testServerConfig(), "")
	assert.Error(t, err)
}

func TestSession_IsExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)

	assert.True(t, (&Session{ExpiresAt: now.Unix() - 1}).IsExpired(now, DefaultExpiryBuffer))
	assert.False(t, (&Session{ExpiresAt: now.Unix() + 3600}).IsExpired(now, DefaultExpiryBuffer))
	assert.True(t, (&Session{ExpiresAt: now.Unix() + 60}).IsExpired(now, DefaultExpiryBuffer))
	assert.False(t, (&Session{ExpiresAt: now.Unix() + 61}).IsExpired(now, DefaultExpiryBuffer))
	assert.True(t, (&Session{ExpiresAt: now.Unix()}).IsExpired(now, 0))

	assert.True(t, IsExpired(&Session{ExpiresAt: time.Now().Unix() - 1}, DefaultExpiryBuffer))
	assert.False(t, IsExpired(&Session{ExpiresAt: time.Now().Unix() + 3600}, DefaultExpiryBuffer))
}

func TestSession_CredentialKey(t *testing.T) {
	assert.Equal(t, "r", (&Session{AccessToken: "a", RefreshToken: "r"}).CredentialKey())
	assert.Equal(t, "a", (&Session{AccessToken: "a"}).CredentialKey())
}
