package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/qf-auth/internal/auth"
	"github.com/marcogenualdo/qf-auth/internal/config"
	"github.com/marcogenualdo/qf-auth/internal/metrics"
)

const authErrorParam = "auth_error"

type CodeExchanger interface {
	Exchange(ctx context.Context, code string, pending *auth.PendingAuth) (*auth.Session, error)
}

type CallbackHandler struct {
	cfg       config.Config
	pending   *auth.PendingCodec
	sessions  *auth.SessionCodec
	guard     *auth.ReplayGuard
	exchanger CodeExchanger
	metrics   metrics.Recorder
	logger    *slog.Logger
}

func NewCallbackHandler(
	cfg config.Config,
	pending *auth.PendingCodec,
	sessions *auth.SessionCodec,
	guard *auth.ReplayGuard,
	exchanger CodeExchanger,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *CallbackHandler {
	return &CallbackHandler{
		cfg:       cfg,
		pending:   pending,
		sessions:  sessions,
		guard:     guard,
		exchanger: exchanger,
		metrics:   recorder,
		logger:    logger,
	}
}

// ServeHTTP completes a sign-in. The pending cookie is cleared on every
// outcome; only a fully validated exchange yields a session cookie. The
// user agent only ever sees a redirect home, with auth_error=1 on failure.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.pending.Clear())

	session, reason, err := h.complete(r)
	if session == nil {
		h.metrics.RecordCallback(reason)
		h.logger.Warn("authorization callback failed", "reason", reason, "error", err)
		http.Redirect(w, r, h.homeURL(true), http.StatusFound)
		return
	}

	cookie, err := h.sessions.Issue(session)
	if err != nil {
		h.metrics.RecordCallback("session_error")
		h.logger.Error("failed to issue session cookie", "error", err)
		http.Redirect(w, r, h.homeURL(true), http.StatusFound)
		return
	}

	http.SetCookie(w, cookie)
	h.metrics.RecordCallback("success")
	h.logger.Info("authentication successful", "scope", session.Scope)

	http.Redirect(w, r, h.homeURL(false), http.StatusFound)
}

// complete runs the callback checks in order and stops at the first
// violation, returning a short reason for logs and metrics.
func (h *CallbackHandler) complete(r *http.Request) (*auth.Session, string, error) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		return nil, "provider_error", errors.New(errParam)
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		return nil, "missing_params", nil
	}

	pending, ok := h.pending.Consume(r.Header.Get("Cookie"))
	if !ok {
		return nil, "invalid_pending", nil
	}

	if pending.State != state {
		return nil, "state_mismatch", nil
	}

	if pending.RedirectURI != h.cfg.OAuth.RedirectURI {
		return nil, "redirect_mismatch", nil
	}

	if err := h.guard.Claim(r.Context(), pending.State); err != nil {
		if errors.Is(err, auth.ErrReplayed) {
			return nil, "replayed", err
		}
		return nil, "replay_guard_error", err
	}

	session, err := h.exchanger.Exchange(r.Context(), code, pending)
	if err != nil {
		return nil, "exchange_failed", err
	}

	return session, "success", nil
}

func (h *CallbackHandler) homeURL(failed bool) string {
	if failed {
		return h.cfg.Server.HomePath + "?" + authErrorParam + "=1"
	}
	return h.cfg.Server.HomePath
}
