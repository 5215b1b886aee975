package auth

import "context"

// TokenRefresher exchanges the session's refresh token for a new session
// at the authorization server.
type TokenRefresher interface {
	Refresh(ctx context.Context, session *Session) (*Session, error)
}
