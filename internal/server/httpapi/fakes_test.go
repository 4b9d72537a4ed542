package httpapi

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
)

// memUsersRepo is an in-memory users.Repository with the same uniqueness
// semantics as the Postgres implementation.
type memUsersRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []*models.User
}

func (r *memUsersRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, u := range r.rows {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memUsersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	r.nextID++
	created := &models.User{
		ID:           r.nextID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    time.Now(),
	}
	r.rows = append(r.rows, created)
	return created, nil
}

func (r *memUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsersRepo) UpdatePasswordHash(ctx context.Context, username, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if u.Username == username {
			u.PasswordHash = passwordHash
			return nil
		}
	}
	return common.ErrorNotFound
}

type memRepoManager struct {
	repo *memUsersRepo
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Users(db dbx.DBTX) users.Repository           { return m.repo }
