// Package models holds the persistent and transient data structures shared by
// the server-side repositories and services.
package models

import "time"

// User is a durable account row. Username and email are each unique across
// all accounts; the database enforces both constraints. PasswordHash is a
// PHC-encoded Argon2id string, never the plaintext.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
