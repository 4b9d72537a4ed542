package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/cryptox"
)

// Authenticate verifies username/password and returns a signed access token.
//
// The throttle gate runs before any account lookup, so a blocked username
// costs no database work. An unknown username and a wrong password take the
// same failure path: both register a failed attempt and return
// ErrInvalidCredentials, leaving account existence unobservable from the
// login endpoint. Success resets the attempt counter so the next failure
// starts a fresh window.
func (s *CredentialService) Authenticate(ctx context.Context, username, password string) (string, error) {
	blocked, err := s.limiter.IsBlocked(ctx, username)
	if err != nil {
		return "", s.storageFault(ctx, "check throttle", err)
	}
	if blocked {
		return "", common.ErrTooManyAttempts
	}

	verified := false
	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, username)
	switch {
	case err == nil:
		ok, verr := cryptox.VerifyPassword(user.PasswordHash, password)
		if verr != nil {
			// a hash we cannot parse is a corrupt row, not a bad guess
			return "", s.storageFault(ctx, "verify password", verr)
		}
		verified = ok
	case errors.Is(err, common.ErrorNotFound):
		// fall through to the shared failure path
	default:
		return "", s.storageFault(ctx, "load account", err)
	}

	if !verified {
		if err := s.limiter.RegisterAttempt(ctx, username); err != nil {
			return "", s.storageFault(ctx, "register failed attempt", err)
		}
		return "", common.ErrInvalidCredentials
	}

	token, err := s.signer.Issue(username, s.accessTokenValidity)
	if err != nil {
		return "", s.storageFault(ctx, "issue access token", err)
	}

	if err := s.limiter.ResetAttempts(ctx, username); err != nil {
		// the login already succeeded; the stale counter expires on its own
		s.logger.Warn(ctx, "reset attempt counter", "username", username, "error", err)
	}

	s.logger.Info(ctx, "login", "username", username)
	return token, nil
}
