// Package services contains the server-side business logic. This file defines
// CredentialService, the state-transition core for the credential lifecycle:
// signup request -> confirm -> register, login attempt -> throttle/verify/issue,
// and reset request -> issue token -> confirm new password.
//
// The service composes the durable account repository, the TTL-keyed
// transient stores, the token signer, and the mail dispatcher. It holds no
// in-process locks: the repository's uniqueness constraints and the transient
// store's atomic operations are the only concurrency-safety primitives.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/auth"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/limiter"
	"github.com/dmitrijs2005/authgate/internal/server/mail"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authgate/internal/server/reset"
	"github.com/dmitrijs2005/authgate/internal/server/signup"
)

// confirmationCodeDigits is the length of the emailed signup code.
const confirmationCodeDigits = 6

// Mailer accepts outbound messages for asynchronous delivery. Only enqueue
// acceptance is awaited; delivery failures are the dispatcher's to log.
type Mailer interface {
	Enqueue(ctx context.Context, msg mail.Message) error
}

// CredentialService orchestrates the credential lifecycle.
type CredentialService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	pending     *signup.PendingStore
	codes       *signup.CodeStore
	resetTokens *reset.TokenStore
	limiter     *limiter.Limiter
	signer      *auth.Signer
	mailer      Mailer
	logger      logging.Logger

	accessTokenValidity time.Duration
	resetTokenValidity  time.Duration
	signupValidity      time.Duration
	resetURLBase        string
}

// NewCredentialService wires the service from explicitly constructed
// dependencies; nothing here is a process-wide singleton.
func NewCredentialService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	pending *signup.PendingStore,
	codes *signup.CodeStore,
	resetTokens *reset.TokenStore,
	l *limiter.Limiter,
	signer *auth.Signer,
	mailer Mailer,
	logger logging.Logger,
	cfg *config.Config,
) *CredentialService {
	return &CredentialService{
		db:                  db,
		repomanager:         m,
		pending:             pending,
		codes:               codes,
		resetTokens:         resetTokens,
		limiter:             l,
		signer:              signer,
		mailer:              mailer,
		logger:              logger.With("module", "credentials"),
		accessTokenValidity: cfg.AccessTokenValidity,
		resetTokenValidity:  cfg.ResetTokenValidity,
		signupValidity:      cfg.SignupConfirmationValidity,
		resetURLBase:        cfg.ResetURLBase,
	}
}

// storageFault logs an infrastructure failure with its full cause and returns
// an opaque error classified as common.ErrStorage. Validation conflicts never
// pass through here; the two families stay distinguishable end to end.
func (s *CredentialService) storageFault(ctx context.Context, op string, err error) error {
	s.logger.Error(ctx, "storage fault", "op", op, "error", err)
	return fmt.Errorf("%w: %s", common.ErrStorage, op)
}
