package mail

import (
	"fmt"
	"time"
)

// ConfirmationMessage builds the signup confirmation-code email.
func ConfirmationMessage(to, username, code string, validity time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Email confirmation",
		Body: fmt.Sprintf(
			"Hello %s,\r\n\r\nYour confirmation code is %s. It is valid for %d minutes.\r\n\r\nIf you did not request this, you can ignore this email.\r\n",
			username, code, int(validity.Minutes())),
	}
}

// ResetMessage builds the password-reset link email.
func ResetMessage(to, username, link string, validity time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Password reset",
		Body: fmt.Sprintf(
			"Hello %s,\r\n\r\nFollow this link to reset your password:\r\n%s\r\n\r\nThe link is valid for %d minutes. Only the most recently requested link works.\r\n",
			username, link, int(validity.Minutes())),
	}
}
