// Package reset keeps the single live password-reset token per username in
// the transient store. Storing a new token overwrites the prior one and
// resets the TTL clock, so only the most recently emailed link is valid even
// though older tokens would still verify cryptographically.
package reset

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authgate/internal/server/cache"
)

const keyPrefix = "password_reset_token:"

// TokenStore holds reset tokens keyed by username.
type TokenStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewTokenStore constructs a TokenStore with the given token TTL.
func NewTokenStore(c *cache.Cache, ttl time.Duration) *TokenStore {
	return &TokenStore{cache: c, ttl: ttl}
}

// Store saves token for username, superseding any prior token.
func (s *TokenStore) Store(ctx context.Context, username, token string) error {
	return s.cache.Set(ctx, keyPrefix+username, token, s.ttl)
}

// Get returns the live token for username, or common.ErrorNotFound when none
// is live (expired, consumed, or never issued).
func (s *TokenStore) Get(ctx context.Context, username string) (string, error) {
	return s.cache.Get(ctx, keyPrefix+username)
}

// Delete invalidates the live token server-side before its natural expiry.
// Idempotent.
func (s *TokenStore) Delete(ctx context.Context, username string) error {
	return s.cache.Delete(ctx, keyPrefix+username)
}
