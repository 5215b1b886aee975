package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcogenualdo/qf-auth/internal/cache"
)

var ErrReplayed = errors.New("pending authorization already used")

// ReplayGuard remembers consumed pending-auth states for as long as a
// pending cookie could still be presented, so a captured cookie cannot be
// played back after the browser has cleared it.
type ReplayGuard struct {
	cache cache.Cache
}

func NewReplayGuard(c cache.Cache) *ReplayGuard {
	return &ReplayGuard{cache: c}
}

func (g *ReplayGuard) Claim(ctx context.Context, state string) error {
	ok, err := g.cache.SetNX(ctx, "pending:used:"+state, []byte("1"), PendingMaxAge)
	if err != nil {
		return fmt.Errorf("failed to record pending state: %w", err)
	}
	if !ok {
		return ErrReplayed
	}
	return nil
}
