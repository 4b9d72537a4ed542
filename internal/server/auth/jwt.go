// Package auth issues and decodes the signed, time-limited bearer tokens used
// both for API access and as password-reset credentials. Tokens are HS256
// JWTs carrying the username as subject; validity is purely cryptographic.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authgate/internal/common"
)

// Claims carries the registered claim set; the subject is the username.
type Claims struct {
	jwt.RegisteredClaims
}

// Signer mints and verifies tokens with a shared HMAC secret.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer around the shared secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Issue returns a signed token asserting subject for the given validity
// window. Each token gets a unique jti so otherwise-identical tokens differ.
func (s *Signer) Issue(subject string, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	return signed, nil
}

// Decode verifies tokenString and returns its subject. Expiry yields
// common.ErrTokenExpired; any other verification failure (bad signature,
// malformed input, missing subject) yields common.ErrInvalidToken.
func (s *Signer) Decode(tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
