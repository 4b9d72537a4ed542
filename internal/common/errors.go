// Package common defines shared constants and sentinel errors used across
// the layers of authgate. Callers should use errors.Is to match these values.
//
// The errors fall into two families that must stay distinguishable end to
// end: user-facing outcomes (duplicate credentials, expired codes, throttling)
// and infrastructure faults (storage, mail). The credential service never
// converts one family into the other.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Validation conflicts, terminal and user-facing.
	ErrDuplicateCredentials = errors.New("username and email already in use")
	ErrUsernameTaken        = errors.New("username already exists")
	ErrEmailTaken           = errors.New("email already in use")
	ErrUnknownEmail         = errors.New("unknown email address")

	// Transient-state misses, terminal and user-facing, never retried.
	ErrCodeExpired   = errors.New("confirmation code expired or missing")
	ErrCodeMismatch  = errors.New("confirmation code mismatch")
	ErrSignupExpired = errors.New("pending signup expired")
	ErrTokenNotFound = errors.New("token expired or not found")

	// Auth errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	// Throttling, self-clearing after the window.
	ErrTooManyAttempts = errors.New("too many attempts")

	// Infrastructure faults, surfaced to callers as opaque internal errors.
	ErrStorage          = errors.New("storage error")
	ErrStorageInvariant = errors.New("storage invariant violation")
	ErrEmailSend        = errors.New("email send error")
)
