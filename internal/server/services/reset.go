package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/cryptox"
	"github.com/dmitrijs2005/authgate/internal/server/mail"
)

// RequestPasswordReset issues a reset token for the account behind email and
// enqueues a mail carrying the reset link. Unlike the login path, an unknown
// address is reported to the caller as ErrUnknownEmail.
//
// Storing the token overwrites any previous one for the same username, so a
// repeated request silently invalidates the earlier emailed link.
func (s *CredentialService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUnknownEmail
		}
		return s.storageFault(ctx, "load account", err)
	}

	token, err := s.signer.Issue(user.Username, s.resetTokenValidity)
	if err != nil {
		return s.storageFault(ctx, "issue reset token", err)
	}
	if err := s.resetTokens.Store(ctx, user.Username, token); err != nil {
		return s.storageFault(ctx, "store reset token", err)
	}

	link := fmt.Sprintf("%s?token=%s", s.resetURLBase, url.QueryEscape(token))
	if err := s.mailer.Enqueue(ctx, mail.ResetMessage(user.Email, user.Username, link, s.resetTokenValidity)); err != nil {
		return err
	}

	s.logger.Info(ctx, "password reset requested", "username", user.Username)
	return nil
}

// ConfirmPasswordReset validates token twice, cryptographically and against
// the single live token stored for its subject, then rewrites the account's
// password hash. The stored token is deleted afterwards so the link cannot be
// replayed before its natural expiry.
//
// An expired or tampered token yields ErrInvalidToken; a token that verifies
// but has no live counterpart (consumed, superseded, or TTL lapsed) yields
// ErrTokenNotFound; a verified token that is not the live one (it was
// superseded by a newer request) yields ErrInvalidToken.
func (s *CredentialService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	username, err := s.signer.Decode(token)
	if err != nil {
		return common.ErrInvalidToken
	}

	live, err := s.resetTokens.Get(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrTokenNotFound
		}
		return s.storageFault(ctx, "load reset token", err)
	}
	if live != token {
		return common.ErrInvalidToken
	}

	passwordHash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return s.storageFault(ctx, "hash password", err)
	}
	if err := s.repomanager.Users(s.db).UpdatePasswordHash(ctx, username, passwordHash); err != nil {
		// ErrorNotFound here means the account vanished under a live token
		return s.storageFault(ctx, "update password hash", err)
	}

	if err := s.resetTokens.Delete(ctx, username); err != nil {
		s.logger.Warn(ctx, "delete reset token", "username", username, "error", err)
	}

	s.logger.Info(ctx, "password reset", "username", username)
	return nil
}
