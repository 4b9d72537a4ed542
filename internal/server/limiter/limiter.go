// Package limiter throttles failed login attempts per username using a
// Redis-backed counter.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/server/cache"
)

const keyPrefix = "login_fail:"

// Limiter counts failed attempts per username and reports when a username is
// temporarily blocked. The window slides on every failure: each
// RegisterAttempt resets the TTL, so sustained wrong guesses keep the block
// alive. The counter self-expires once failures stop.
type Limiter struct {
	cache       *cache.Cache
	window      time.Duration
	maxAttempts int64
}

// New constructs a Limiter. window is the sliding expiry applied on each
// failure; maxAttempts is the count at which IsBlocked turns true.
func New(c *cache.Cache, window time.Duration, maxAttempts int64) *Limiter {
	return &Limiter{cache: c, window: window, maxAttempts: maxAttempts}
}

func (l *Limiter) key(username string) string {
	return keyPrefix + username
}

// RegisterAttempt records one failed attempt and extends the block window.
func (l *Limiter) RegisterAttempt(ctx context.Context, username string) error {
	key := l.key(username)

	if _, err := l.cache.Incr(ctx, key); err != nil {
		return fmt.Errorf("register attempt: %w", err)
	}
	if err := l.cache.Expire(ctx, key, l.window); err != nil {
		return fmt.Errorf("register attempt: %w", err)
	}
	return nil
}

// IsBlocked reports whether username has reached the failure threshold within
// the current window. An absent counter (expired or never set) means not
// blocked.
func (l *Limiter) IsBlocked(ctx context.Context, username string) (bool, error) {
	val, err := l.cache.Get(ctx, l.key(username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check block: %w", err)
	}

	attempts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, fmt.Errorf("check block: bad counter %q: %w", val, err)
	}

	return attempts >= l.maxAttempts, nil
}

// ResetAttempts clears the counter unconditionally. Called after any
// successful authentication.
func (l *Limiter) ResetAttempts(ctx context.Context, username string) error {
	if err := l.cache.Delete(ctx, l.key(username)); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}
