package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/qf-auth/internal/auth"
	"github.com/marcogenualdo/qf-auth/internal/auth/oidc"
	"github.com/marcogenualdo/qf-auth/internal/cache"
	"github.com/marcogenualdo/qf-auth/internal/config"
	"github.com/marcogenualdo/qf-auth/internal/metrics"
	"github.com/marcogenualdo/qf-auth/pkg/security"
)

const (
	testSecret      = "0123456789abcdef0123456789abcdef"
	testRedirectURI = "http://localhost:3000/api/auth/callback"
)

func encodeSegment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(authBaseURL string) config.Config {
	return config.Config{
		Server: config.ServerConfig{
			Environment:    "development",
			HomePath:       "/",
			CookieSameSite: "lax",
		},
		Cache: config.CacheConfig{Type: "memory"},
		OAuth: config.OAuthConfig{
			Env:          config.EnvPrelive,
			ClientID:     "client-id",
			CookieSecret: testSecret,
			RedirectURI:  testRedirectURI,
			AuthBaseURL:  authBaseURL,
			APIBaseURL:   "https://apis.example.test",
			Scopes:       []string{"offline_access", "user", "collection", "openid"},
			TokenTimeout: 5 * time.Second,
		},
	}
}

type codecs struct {
	pending  *auth.PendingCodec
	sessions *auth.SessionCodec
}

func newCodecs(t *testing.T, cfg config.Config) codecs {
	t.Helper()
	pending, err := auth.NewPendingCodec(cfg.Server, cfg.OAuth.CookieSecret)
	require.NoError(t, err)
	sessions, err := auth.NewSessionCodec(cfg.Server, cfg.OAuth.CookieSecret)
	require.NoError(t, err)
	return codecs{pending: pending, sessions: sessions}
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type fakeExchanger struct {
	session *auth.Session
	err     error
	calls   int
	got     *auth.PendingAuth
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string, pending *auth.PendingAuth) (*auth.Session, error) {
	f.calls++
	f.got = pending
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func TestLoginHandler(t *testing.T) {
	cfg := testConfig("https://auth.example.test")
	c := newCodecs(t, cfg)

	provider, err := oidc.NewProvider(context.Background(), cfg.OAuth, nil)
	require.NoError(t, err)

	h := NewLoginHandler(cfg, c.pending, provider, metrics.Nop{}, discardLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))

	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.test/oauth2/auth", location.Scheme+"://"+location.Host+location.Path)

	q := location.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, testRedirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "offline_access user collection openid", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))

	cookie := findCookie(t, rec, auth.PendingCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, 600, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)

	pending, ok := c.pending.Consume(cookie.Name + "=" + cookie.Value)
	require.True(t, ok)
	assert.Equal(t, q.Get("state"), pending.State)
	assert.Equal(t, q.Get("nonce"), pending.Nonce)
	assert.Equal(t, testRedirectURI, pending.RedirectURI)
	assert.Equal(t, security.ComputeCodeChallenge(pending.CodeVerifier), q.Get("code_challenge"))
}

type callbackFixture struct {
	cfg       config.Config
	codecs    codecs
	exchanger *fakeExchanger
	handler   *CallbackHandler
}

func newCallbackFixture(t *testing.T) *callbackFixture {
	t.Helper()
	cfg := testConfig("https://auth.example.test")
	c := newCodecs(t, cfg)
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })

	exchanger := &fakeExchanger{session: &auth.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		Scope:        "openid user",
	}}

	return &callbackFixture{
		cfg:       cfg,
		codecs:    c,
		exchanger: exchanger,
		handler: NewCallbackHandler(cfg, c.pending, c.sessions, auth.NewReplayGuard(mem),
			exchanger, metrics.Nop{}, discardLogger()),
	}
}

func (f *callbackFixture) pendingCookie(t *testing.T, state, redirectURI string) *http.Cookie {
	t.Helper()
	cookie, err := f.codecs.pending.Issue(auth.PendingAuth{
		State:        state,
		Nonce:        "nonce",
		CodeVerifier: "verifier",
		RedirectURI:  redirectURI,
	})
	require.NoError(t, err)
	return cookie
}

func (f *callbackFixture) call(query string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?"+query, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func assertFailedCallback(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/?auth_error=1", rec.Header().Get("Location"))

	pending := findCookie(t, rec, auth.PendingCookieName)
	require.NotNil(t, pending)
	assert.Equal(t, -1, pending.MaxAge)
	assert.Nil(t, findCookie(t, rec, auth.SessionCookieName))
}

func TestCallbackHandler_Success(t *testing.T) {
	f := newCallbackFixture(t)

	rec := f.call("code=abc&state=S1", f.pendingCookie(t, "S1", testRedirectURI))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	pending := findCookie(t, rec, auth.PendingCookieName)
	require.NotNil(t, pending)
	assert.Equal(t, -1, pending.MaxAge)

	sessionCookie := findCookie(t, rec, auth.SessionCookieName)
	require.NotNil(t, sessionCookie)
	session, ok := f.codecs.sessions.Read(sessionCookie.Name + "=" + sessionCookie.Value)
	require.True(t, ok)
	assert.Equal(t, f.exchanger.session, session)

	require.NotNil(t, f.exchanger.got)
	assert.Equal(t, "verifier", f.exchanger.got.CodeVerifier)
}

func TestCallbackHandler_Failures(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		state        string
		redirectURI  string
		noCookie     bool
		wantExchange bool
		exchangeErr  error
	}{
		{name: "provider error", query: "error=access_denied&state=S1", state: "S1"},
		{name: "missing code", query: "state=S1", state: "S1"},
		{name: "missing state", query: "code=abc", state: "S1"},
		{name: "missing pending cookie", query: "code=abc&state=S1", noCookie: true},
		{name: "state mismatch", query: "code=abc&state=S2", state: "S1"},
		{name: "redirect mismatch", query: "code=abc&state=S1", state: "S1", redirectURI: "https://evil.example/cb"},
		{name: "exchange failure", query: "code=abc&state=S1", state: "S1", wantExchange: true, exchangeErr: errors.New("invalid_grant")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCallbackFixture(t)
			f.exchanger.err = tt.exchangeErr

			var cookie *http.Cookie
			if !tt.noCookie {
				redirectURI := tt.redirectURI
				if redirectURI == "" {
					redirectURI = testRedirectURI
				}
				cookie = f.pendingCookie(t, tt.state, redirectURI)
			}

			rec := f.call(tt.query, cookie)
			assertFailedCallback(t, rec)

			if tt.wantExchange {
				assert.Equal(t, 1, f.exchanger.calls)
			} else {
				assert.Zero(t, f.exchanger.calls)
			}
		})
	}
}

func TestCallbackHandler_TamperedPendingCookie(t *testing.T) {
	f := newCallbackFixture(t)
	cookie := f.pendingCookie(t, "S1", testRedirectURI)
	cookie.Value = strings.Replace(cookie.Value, ".", ".x", 1)

	assertFailedCallback(t, f.call("code=abc&state=S1", cookie))
	assert.Zero(t, f.exchanger.calls)
}

func TestCallbackHandler_ReplayRejected(t *testing.T) {
	f := newCallbackFixture(t)
	cookie := f.pendingCookie(t, "S1", testRedirectURI)

	first := f.call("code=abc&state=S1", cookie)
	require.NotNil(t, findCookie(t, first, auth.SessionCookieName))

	assertFailedCallback(t, f.call("code=abc&state=S1", cookie))
	assert.Equal(t, 1, f.exchanger.calls)
}

func TestCallbackHandler_EndToEnd(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "abc" || r.PostForm.Get("code_verifier") != "verifier" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"AT","token_type":"bearer","refresh_token":"RT","scope":"openid user"}`)
	}))
	t.Cleanup(tokenServer.Close)

	cfg := testConfig(tokenServer.URL)
	c := newCodecs(t, cfg)
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })

	provider, err := oidc.NewProvider(context.Background(), cfg.OAuth, nil)
	require.NoError(t, err)

	h := NewCallbackHandler(cfg, c.pending, c.sessions, auth.NewReplayGuard(mem), provider, metrics.Nop{}, discardLogger())

	issue := func(state string) *http.Cookie {
		cookie, err := c.pending.Issue(auth.PendingAuth{State: state, Nonce: "n", CodeVerifier: "verifier", RedirectURI: testRedirectURI})
		require.NoError(t, err)
		return cookie
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=abc&state=S1", nil)
	req.AddCookie(issue("S1"))
	rec := httptest.NewRecorder()
	before := time.Now()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "/", rec.Header().Get("Location"))
	sessionCookie := findCookie(t, rec, auth.SessionCookieName)
	require.NotNil(t, sessionCookie)
	session, ok := c.sessions.Read(sessionCookie.Name + "=" + sessionCookie.Value)
	require.True(t, ok)
	assert.Equal(t, "AT", session.AccessToken)
	assert.Equal(t, "RT", session.RefreshToken)
	assert.InDelta(t, before.Add(time.Hour).Unix(), session.ExpiresAt, 2)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=abc&state=S2", nil)
	req.AddCookie(issue("S1"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assertFailedCallback(t, rec)
}

func TestLogoutHandler(t *testing.T) {
	cfg := testConfig("https://auth.example.test")
	c := newCodecs(t, cfg)
	h := NewLogoutHandler(cfg, c.sessions, discardLogger())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/auth/logout", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
		cookie := findCookie(t, rec, auth.SessionCookieName)
		require.NotNil(t, cookie)
		assert.Equal(t, -1, cookie.MaxAge)
		assert.Empty(t, cookie.Value)
	}
}

func TestSessionHandler(t *testing.T) {
	cfg := testConfig("https://auth.example.test")
	c := newCodecs(t, cfg)
	h := NewSessionHandler(c.sessions)
	h.now = func() time.Time { return time.Unix(1700000000, 0) }

	get := func(cookie *http.Cookie) SessionStatus {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		var status SessionStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		return status
	}

	assert.Equal(t, SessionStatus{}, get(nil))

	idToken := encodeSegment(`{"alg":"RS256"}`) + "." +
		encodeSegment(`{"name":"Test User","email":"test@example.com"}`) + "." +
		encodeSegment("sig")
	cookie, err := c.sessions.Issue(&auth.Session{
		AccessToken: "a",
		IDToken:     idToken,
		ExpiresAt:   1700000100,
		Scope:       "openid user",
	})
	require.NoError(t, err)

	assert.Equal(t, SessionStatus{
		Authenticated: true,
		Name:          "Test User",
		Email:         "test@example.com",
		Scope:         "openid user",
	}, get(cookie))

	cookie, err = c.sessions.Issue(&auth.Session{AccessToken: "a", ExpiresAt: 1699999999})
	require.NoError(t, err)
	assert.Equal(t, SessionStatus{Authenticated: true, Expired: true}, get(cookie))
}
