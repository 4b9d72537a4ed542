package models

// PendingSignup is the hashed-credential envelope held in the transient store
// while an email address awaits confirmation. It never carries the plaintext
// password.
type PendingSignup struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}
