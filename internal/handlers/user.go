package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/marcogenualdo/qf-auth/internal/auth"
	"github.com/marcogenualdo/qf-auth/internal/middleware"
	"github.com/marcogenualdo/qf-auth/internal/proxy"
)

const (
	ProfileSignInMessage     = "Sign in to view profile."
	CollectionsSignInMessage = "Sign in to view collections."

	profileScopeMessage = `Profile access was denied. Your app may need the "user" or "user.profile.read" scope enabled for this client.`
)

type ResourceGateway interface {
	Profile(ctx context.Context, session *auth.Session) (*proxy.Result, error)
	Collections(ctx context.Context, session *auth.Session, first int) (*proxy.Result, error)
}

// UserHandler serves the signed-in user's resources. It expects
// middleware.RequireSession to have put a session in the request context.
type UserHandler struct {
	gateway  ResourceGateway
	sessions *auth.SessionCodec
	logger   *slog.Logger
}

func NewUserHandler(gateway ResourceGateway, sessions *auth.SessionCodec, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		gateway:  gateway,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ProfileSignInMessage)
		return
	}

	result, err := h.gateway.Profile(r.Context(), session)
	h.respond(w, session, result, err, func(status int) map[string]any {
		message := "Unable to load profile."
		if status == http.StatusForbidden {
			message = profileScopeMessage
		}
		return map[string]any{"error": message, "status": status}
	})
}

func (h *UserHandler) Collections(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CollectionsSignInMessage)
		return
	}

	first := 0
	if raw := r.URL.Query().Get("first"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "first must be a positive integer")
			return
		}
		first = n
	}

	result, err := h.gateway.Collections(r.Context(), session, first)
	h.respond(w, session, result, err, func(int) map[string]any {
		return map[string]any{"error": "Unable to load collections."}
	})
}

func (h *UserHandler) respond(w http.ResponseWriter, session *auth.Session, result *proxy.Result, err error, failure func(status int) map[string]any) {
	if result != nil && result.Refreshed(session) {
		if cookie, cerr := h.sessions.Issue(result.Session); cerr != nil {
			h.logger.Error("failed to issue refreshed session cookie", "error", cerr)
		} else {
			http.SetCookie(w, cookie)
		}
	}

	if err != nil {
		h.logger.Error("resource API request failed", "error", err)
		writeJSON(w, http.StatusBadGateway, failure(http.StatusBadGateway))
		return
	}

	if !result.OK() {
		h.logger.Debug("resource API returned an error", "status", result.Status)
		writeJSON(w, result.Status, failure(result.Status))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}
