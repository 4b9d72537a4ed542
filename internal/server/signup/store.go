// Package signup holds the transient state of a registration in flight: the
// hashed-credential envelope and the emailed confirmation code, both keyed by
// email address. The two entries carry independent TTL clocks set at the same
// instant; there is no transactional link between them, and either expiring
// simply makes the signup restartable.
package signup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authgate/internal/server/cache"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

const (
	pendingKeyPrefix = "signup:"
	codeKeyPrefix    = "email_confirm:"
)

// PendingStore keeps PendingSignup envelopes in the transient store.
type PendingStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewPendingStore constructs a PendingStore with the given envelope TTL.
func NewPendingStore(c *cache.Cache, ttl time.Duration) *PendingStore {
	return &PendingStore{cache: c, ttl: ttl}
}

// Store serializes the envelope and stores it under the signup's email.
func (s *PendingStore) Store(ctx context.Context, pending *models.PendingSignup) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending signup: %w", err)
	}
	return s.cache.Set(ctx, pendingKeyPrefix+pending.Email, string(payload), s.ttl)
}

// Get returns the envelope for email. Absence (expired or never stored)
// surfaces as common.ErrorNotFound from the cache.
func (s *PendingStore) Get(ctx context.Context, email string) (*models.PendingSignup, error) {
	payload, err := s.cache.Get(ctx, pendingKeyPrefix+email)
	if err != nil {
		return nil, err
	}

	pending := &models.PendingSignup{}
	if err := json.Unmarshal([]byte(payload), pending); err != nil {
		return nil, fmt.Errorf("unmarshal pending signup: %w", err)
	}
	return pending, nil
}

// Delete removes the envelope. Idempotent.
func (s *PendingStore) Delete(ctx context.Context, email string) error {
	return s.cache.Delete(ctx, pendingKeyPrefix+email)
}

// CodeStore keeps the short numeric confirmation code per email.
type CodeStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewCodeStore constructs a CodeStore with the given code TTL.
func NewCodeStore(c *cache.Cache, ttl time.Duration) *CodeStore {
	return &CodeStore{cache: c, ttl: ttl}
}

// Store saves code under email, resetting the TTL clock.
func (s *CodeStore) Store(ctx context.Context, email, code string) error {
	return s.cache.Set(ctx, codeKeyPrefix+email, code, s.ttl)
}

// Get returns the stored code, or common.ErrorNotFound when the code has
// expired or was never issued.
func (s *CodeStore) Get(ctx context.Context, email string) (string, error) {
	return s.cache.Get(ctx, codeKeyPrefix+email)
}

// Delete removes the code. Idempotent.
func (s *CodeStore) Delete(ctx context.Context, email string) error {
	return s.cache.Delete(ctx, codeKeyPrefix+email)
}
