package handlers

import (
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/qf-auth/internal/auth"
	"github.com/marcogenualdo/qf-auth/internal/config"
	"github.com/marcogenualdo/qf-auth/internal/metrics"
	"github.com/marcogenualdo/qf-auth/pkg/security"
)

type AuthURLBuilder interface {
	AuthCodeURL(pkce *security.PKCE) string
}

type LoginHandler struct {
	cfg      config.Config
	pending  *auth.PendingCodec
	provider AuthURLBuilder
	metrics  metrics.Recorder
	logger   *slog.Logger
}

func NewLoginHandler(cfg config.Config, pending *auth.PendingCodec, provider AuthURLBuilder, recorder metrics.Recorder, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{
		cfg:      cfg,
		pending:  pending,
		provider: provider,
		metrics:  recorder,
		logger:   logger,
	}
}

// ServeHTTP starts a sign-in: it stores a fresh PKCE verifier, state and
// nonce in the pending cookie and redirects to the authorization server.
// Failures are reported as JSON, never as a redirect.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pkce, err := security.GeneratePKCE()
	if err != nil {
		h.fail(w, "failed to generate PKCE parameters", err)
		return
	}

	cookie, err := h.pending.Issue(auth.PendingAuth{
		State:        pkce.State,
		Nonce:        pkce.Nonce,
		CodeVerifier: pkce.CodeVerifier,
		RedirectURI:  h.cfg.OAuth.RedirectURI,
	})
	if err != nil {
		h.fail(w, "failed to issue pending authorization", err)
		return
	}

	authURL := h.provider.AuthCodeURL(pkce)

	http.SetCookie(w, cookie)
	h.metrics.RecordLogin("redirect")
	h.logger.Debug("redirecting to authorization server", "state", pkce.State)

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *LoginHandler) fail(w http.ResponseWriter, message string, err error) {
	h.metrics.RecordLogin("error")
	h.logger.Error(message, "error", err)
	writeError(w, http.StatusInternalServerError, message+": "+err.Error())
}
