package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"teamchat/internal/models"
)

// UserRepository exposes the user display records this service reads.
// Account management is owned by the user service.
type UserRepository interface {
	UsernamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// UsernamesByIDs resolves usernames for a set of user ids. Unknown ids are
// simply absent from the result.
func (r *UserRepo) UsernamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, username FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}
