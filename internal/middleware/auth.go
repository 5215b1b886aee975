package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/qf-auth/internal/auth"
)

type contextKey string

const SessionContextKey contextKey = "session"

// Refresher is satisfied by auth.RefreshCoordinator.
type Refresher interface {
	Refresh(ctx context.Context, session *auth.Session) (*auth.Session, bool)
}

type SessionMiddleware struct {
	codec     *auth.SessionCodec
	refresher Refresher
	buffer    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewSessionMiddleware(codec *auth.SessionCodec, refresher Refresher, logger *slog.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		codec:     codec,
		refresher: refresher,
		buffer:    auth.DefaultExpiryBuffer,
		logger:    logger,
		now:       time.Now,
	}
}

// LoadSession puts the session cookie's contents, if readable, into the
// request context. It never rejects a request.
func (sm *SessionMiddleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := sm.codec.FromRequest(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// RequireSession rejects requests without a session with 401 and message.
// A session whose access token is about to expire is refreshed first and
// the new cookie is set on the response.
func (sm *SessionMiddleware) RequireSession(message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return sm.requireSession(message, next)
	}
}

func (sm *SessionMiddleware) requireSession(message string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := GetSession(r.Context())
		if !ok {
			session, ok = sm.codec.FromRequest(r)
		}
		if !ok {
			sm.logger.Debug("no session cookie found", "path", r.URL.Path)
			writeJSONError(w, http.StatusUnauthorized, message)
			return
		}

		if session.IsExpired(sm.now(), sm.buffer) {
			refreshed, ok := sm.refresher.Refresh(r.Context(), session)
			if !ok {
				sm.logger.Debug("session expired and could not be refreshed", "path", r.URL.Path)
				writeJSONError(w, http.StatusUnauthorized, message)
				return
			}

			cookie, err := sm.codec.Issue(refreshed)
			if err != nil {
				sm.logger.Error("failed to issue refreshed session cookie", "error", err)
				writeJSONError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			http.SetCookie(w, cookie)
			session = refreshed
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

func WithSession(ctx context.Context, session *auth.Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, session)
}

func GetSession(ctx context.Context) (*auth.Session, bool) {
	session, ok := ctx.Value(SessionContextKey).(*auth.Session)
	return session, ok && session != nil
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
