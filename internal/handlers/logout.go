package handlers

import (
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/qf-auth/internal/auth"
	"github.com/marcogenualdo/qf-auth/internal/config"
)

type LogoutHandler struct {
	cfg      config.Config
	sessions *auth.SessionCodec
	logger   *slog.Logger
}

func NewLogoutHandler(cfg config.Config, sessions *auth.SessionCodec, logger *slog.Logger) *LogoutHandler {
	return &LogoutHandler{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
	}
}

// ServeHTTP clears the session cookie and redirects home, whether or not a
// session existed.
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessions.Clear())

	h.logger.Info("user logged out")

	http.Redirect(w, r, h.cfg.Server.HomePath, http.StatusFound)
}
