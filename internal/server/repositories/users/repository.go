package users

import (
	"context"

	"github.com/dmitrijs2005/authgate/internal/server/models"
)

// Repository is the account store contract. Implementations report
// common.ErrorAlreadyExists on unique-constraint violations and
// common.ErrorNotFound when a lookup or update matches no row.
type Repository interface {
	// FindByUsernameOrEmail returns all accounts matching either value with
	// a single OR-combined query. At least one of username or email must be
	// non-empty.
	FindByUsernameOrEmail(ctx context.Context, username, email string) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, username, passwordHash string) error
}
