package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marcogenualdo/qf-auth/internal/metrics"
)

// RefreshCoordinator runs at most one refresh per credential key at a time.
// Concurrent callers for the same key wait for and share the result of the
// in-flight call; the key is released as soon as that call returns.
type RefreshCoordinator struct {
	refresher TokenRefresher
	group     singleflight.Group
	timeout   time.Duration
	metrics   metrics.Recorder
	logger    *slog.Logger
}

func NewRefreshCoordinator(refresher TokenRefresher, timeout time.Duration, recorder metrics.Recorder, logger *slog.Logger) *RefreshCoordinator {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &RefreshCoordinator{
		refresher: refresher,
		timeout:   timeout,
		metrics:   recorder,
		logger:    logger,
	}
}

// Refresh returns a new session, or false when refreshing is unavailable:
// no refresh token, the authorization server refused, or ctx ended first.
// A caller giving up does not cancel the shared call for other callers.
func (c *RefreshCoordinator) Refresh(ctx context.Context, session *Session) (*Session, bool) {
	if session == nil || session.RefreshToken == "" {
		c.metrics.RecordRefresh("skipped")
		return nil, false
	}

	key := session.CredentialKey()
	if key == "" {
		c.metrics.RecordRefresh("skipped")
		return nil, false
	}

	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		refreshed, err := c.refresher.Refresh(callCtx, session)
		if err != nil {
			c.metrics.RecordRefresh("failure")
			return nil, err
		}
		c.metrics.RecordRefresh("success")
		return refreshed, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.RecordRefreshShared()
		}
		if res.Err != nil {
			c.logger.Warn("token refresh failed", "error", res.Err)
			return nil, false
		}
		refreshed, ok := res.Val.(*Session)
		if !ok || refreshed == nil {
			return nil, false
		}
		return refreshed, true

	case <-ctx.Done():
		c.logger.Debug("refresh abandoned by caller", "error", ctx.Err())
		return nil, false
	}
}
