package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/cryptox"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/mail"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

// RequestEmailConfirmation starts a signup. It checks both identity fields
// against existing accounts with one OR-combined query, stashes the hashed
// credentials and a fresh confirmation code in the transient store, and
// enqueues the confirmation email. On success it returns the address the code
// was sent to. Nothing durable is written; an abandoned signup evaporates
// when its TTL lapses.
func (s *CredentialService) RequestEmailConfirmation(ctx context.Context, username, password, email string) (string, error) {
	existing, err := s.repomanager.Users(s.db).FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return "", s.storageFault(ctx, "find accounts", err)
	}

	switch len(existing) {
	case 0:
		// both fields free
	case 1:
		u := existing[0]
		switch {
		case u.Username == username && u.Email == email:
			return "", common.ErrDuplicateCredentials
		case u.Username == username:
			return "", common.ErrUsernameTaken
		case u.Email == email:
			return "", common.ErrEmailTaken
		default:
			// the query cannot match a row on neither field
			s.logger.Error(ctx, "account lookup returned unrelated row", "username", username)
			return "", common.ErrStorageInvariant
		}
	case 2:
		// username and email each taken, by different accounts
		return "", common.ErrDuplicateCredentials
	default:
		s.logger.Error(ctx, "account lookup returned too many rows", "rows", len(existing))
		return "", common.ErrStorageInvariant
	}

	passwordHash, err := cryptox.HashPassword(password)
	if err != nil {
		return "", s.storageFault(ctx, "hash password", err)
	}

	pending := &models.PendingSignup{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}
	if err := s.pending.Store(ctx, pending); err != nil {
		return "", s.storageFault(ctx, "store pending signup", err)
	}

	code, err := common.MakeRandDigitCode(confirmationCodeDigits)
	if err != nil {
		return "", s.storageFault(ctx, "generate confirmation code", err)
	}
	if err := s.codes.Store(ctx, email, code); err != nil {
		return "", s.storageFault(ctx, "store confirmation code", err)
	}

	if err := s.mailer.Enqueue(ctx, mail.ConfirmationMessage(email, username, code, s.signupValidity)); err != nil {
		return "", err
	}

	s.logger.Info(ctx, "signup confirmation requested", "email", email)
	return email, nil
}

// Register completes a signup by checking code against the stored one and
// promoting the pending envelope into a durable account. The code gate is
// checked first: an expired or mismatched code never touches the account
// table. A unique-constraint violation on insert, from a rival signup that
// finished earlier, surfaces as ErrDuplicateCredentials.
func (s *CredentialService) Register(ctx context.Context, email, code string) (*models.User, error) {
	stored, err := s.codes.Get(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrCodeExpired
		}
		return nil, s.storageFault(ctx, "load confirmation code", err)
	}
	if stored != code {
		// no state mutated; the caller may retry with the right code
		return nil, common.ErrCodeMismatch
	}

	pending, err := s.pending.Get(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrSignupExpired
		}
		return nil, s.storageFault(ctx, "load pending signup", err)
	}

	var user *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Users(tx).Create(ctx, &models.User{
			Username:     pending.Username,
			Email:        pending.Email,
			PasswordHash: pending.PasswordHash,
		})
		if err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrDuplicateCredentials
		}
		return nil, s.storageFault(ctx, "create account", err)
	}

	// Best-effort cleanup; leftovers expire on their own.
	if err := s.codes.Delete(ctx, email); err != nil {
		s.logger.Warn(ctx, "delete confirmation code", "email", email, "error", err)
	}
	if err := s.pending.Delete(ctx, email); err != nil {
		s.logger.Warn(ctx, "delete pending signup", "email", email, "error", err)
	}

	s.logger.Info(ctx, "account registered", "username", user.Username)
	return user, nil
}
