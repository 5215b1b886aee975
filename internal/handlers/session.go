package handlers

import (
	"net/http"
	"time"

	"github.com/marcogenualdo/qf-auth/internal/auth"
)

type SessionStatus struct {
	Authenticated bool   `json:"authenticated"`
	Expired       bool   `json:"expired"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Scope         string `json:"scope,omitempty"`
}

// SessionHandler reports whether the caller is signed in. Name and email
// come from the unverified ID token and are for display only.
type SessionHandler struct {
	sessions *auth.SessionCodec
	now      func() time.Time
}

func NewSessionHandler(sessions *auth.SessionCodec) *SessionHandler {
	return &SessionHandler{sessions: sessions, now: time.Now}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessions.FromRequest(r)
	if !ok {
		writeJSON(w, http.StatusOK, SessionStatus{})
		return
	}

	status := SessionStatus{
		Authenticated: true,
		Expired:       session.IsExpired(h.now(), 0),
		Scope:         session.Scope,
	}

	if claims, ok := auth.DecodeIdentityClaims(session.IDToken); ok {
		status.Name = claims.Name
		status.Email = claims.Email
	}

	writeJSON(w, http.StatusOK, status)
}
