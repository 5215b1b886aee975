package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/marcogenualdo/qf-auth/internal/auth"
	"github.com/marcogenualdo/qf-auth/internal/config"
	"github.com/marcogenualdo/qf-auth/internal/metrics"
	"github.com/marcogenualdo/qf-auth/pkg/security"
)

// DefaultExpiresIn is assumed when the token endpoint omits expires_in.
const DefaultExpiresIn = 3600 * time.Second

var ErrNonceMismatch = errors.New("id_token nonce does not match pending authorization")

// Provider talks to the authorization server: it builds authorize URLs and
// performs the authorization_code and refresh_token grants.
type Provider struct {
	oauth2Config oauth2.Config
	httpClient   *http.Client
	verifier     *oidc.IDTokenVerifier
	metrics      metrics.Recorder
	now          func() time.Time
}

func NewProvider(ctx context.Context, cfg config.OAuthConfig, recorder metrics.Recorder) (*Provider, error) {
	httpClient := &http.Client{Timeout: cfg.TokenTimeout}

	var verifier *oidc.IDTokenVerifier
	if cfg.VerifyIDToken {
		discoveryCtx := oidc.ClientContext(ctx, httpClient)
		provider, err := oidc.NewProvider(discoveryCtx, strings.TrimRight(cfg.AuthBaseURL, "/"))
		if err != nil {
			return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
		}
		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	}

	return newProvider(cfg, httpClient, verifier, recorder), nil
}

func newProvider(cfg config.OAuthConfig, httpClient *http.Client, verifier *oidc.IDTokenVerifier, recorder metrics.Recorder) *Provider {
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	endpoint := oauth2.Endpoint{
		AuthURL:   cfg.AuthorizeURL(),
		TokenURL:  cfg.TokenURL(),
		AuthStyle: oauth2.AuthStyleInParams,
	}

	oauth2Config := oauth2.Config{
		ClientID:    cfg.ClientID,
		Endpoint:    endpoint,
		RedirectURL: cfg.RedirectURI,
		Scopes:      cfg.Scopes,
	}

	if cfg.ClientAuth == config.ClientAuthBasic {
		oauth2Config.ClientSecret = cfg.ClientSecret
		oauth2Config.Endpoint.AuthStyle = oauth2.AuthStyleInHeader
	}

	return &Provider{
		oauth2Config: oauth2Config,
		httpClient:   httpClient,
		verifier:     verifier,
		metrics:      recorder,
		now:          time.Now,
	}
}

func (p *Provider) AuthCodeURL(pkce *security.PKCE) string {
	return p.oauth2Config.AuthCodeURL(
		pkce.State,
		oauth2.SetAuthURLParam("nonce", pkce.Nonce),
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange redeems an authorization code using the pending record's PKCE
// verifier. If ID token verification is enabled and the server issued one,
// its signature and nonce are checked.
func (p *Provider) Exchange(ctx context.Context, code string, pending *auth.PendingAuth) (*auth.Session, error) {
	start := time.Now()
	token, err := p.oauth2Config.Exchange(
		p.clientContext(ctx),
		code,
		oauth2.VerifierOption(pending.CodeVerifier),
	)
	p.metrics.ObserveTokenRequest("authorization_code", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	session := p.sessionFromToken(token, nil)

	if p.verifier != nil && session.IDToken != "" {
		idToken, err := p.verifier.Verify(ctx, session.IDToken)
		if err != nil {
			return nil, fmt.Errorf("failed to verify ID token: %w", err)
		}
		if idToken.Nonce != pending.Nonce {
			return nil, ErrNonceMismatch
		}
	}

	return session, nil
}

// Refresh implements auth.TokenRefresher. Tokens the server does not
// reissue are carried over from session.
func (p *Provider) Refresh(ctx context.Context, session *auth.Session) (*auth.Session, error) {
	if session.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	tokenSource := p.oauth2Config.TokenSource(p.clientContext(ctx), &oauth2.Token{
		RefreshToken: session.RefreshToken,
	})

	start := time.Now()
	token, err := tokenSource.Token()
	p.metrics.ObserveTokenRequest("refresh_token", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	return p.sessionFromToken(token, session), nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) sessionFromToken(token *oauth2.Token, previous *auth.Session) *auth.Session {
	expiresAt := p.now().Add(DefaultExpiresIn).Unix()
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry.Unix()
	}

	session := &auth.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}

	if idToken, ok := token.Extra("id_token").(string); ok {
		session.IDToken = idToken
	}
	if scope, ok := token.Extra("scope").(string); ok {
		session.Scope = scope
	}

	if previous != nil {
		if session.RefreshToken == "" {
			session.RefreshToken = previous.RefreshToken
		}
		if session.IDToken == "" {
			session.IDToken = previous.IDToken
		}
	}

	return session
}
