package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"teamchat/internal/models"
)

var ErrThreadNotFound = errors.New("dm thread not found")

// DMRepository abstracts direct-message thread persistence.
type DMRepository interface {
	CreateOrGetThread(ctx context.Context, userID int64, otherID int64) (models.DMThread, error)
	GetThread(ctx context.Context, dmID int64) (models.DMThread, error)
	IsParticipant(ctx context.Context, dmID int64, userID int64) (bool, error)
}

// DMRepo is a sqlx implementation of DMRepository.
type DMRepo struct {
	db *sqlx.DB
}

// NewDMRepo constructs a DMRepo.
func NewDMRepo(db *sqlx.DB) *DMRepo {
	return &DMRepo{db: db}
}

// CreateOrGetThread creates a DM thread between two users if one does not
// already exist. Participant order is normalized so (a,b) and (b,a) map to
// the same row.
func (r *DMRepo) CreateOrGetThread(ctx context.Context, userID int64, otherID int64) (models.DMThread, error) {
	if userID == otherID {
		return models.DMThread{}, errors.New("cannot start a dm with yourself")
	}
	user1, user2 := userID, otherID
	if user1 > user2 {
		user1, user2 = user2, user1
	}

	var thread models.DMThread
	err := r.db.GetContext(ctx, &thread,
		`SELECT id, user1_id, user2_id, created_at FROM dm_threads WHERE user1_id=$1 AND user2_id=$2`,
		user1, user2)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.DMThread{}, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO dm_threads (user1_id, user2_id) VALUES ($1, $2) RETURNING id, user1_id, user2_id, created_at`,
		user1, user2).
		Scan(&thread.ID, &thread.User1ID, &thread.User2ID, &thread.CreatedAt)
	return thread, err
}

// GetThread retrieves a single DM thread.
func (r *DMRepo) GetThread(ctx context.Context, dmID int64) (models.DMThread, error) {
	var thread models.DMThread
	err := r.db.GetContext(ctx, &thread,
		`SELECT id, user1_id, user2_id, created_at FROM dm_threads WHERE id=$1`, dmID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DMThread{}, ErrThreadNotFound
	}
	return thread, err
}

// IsParticipant reports whether the user belongs to the DM thread.
func (r *DMRepo) IsParticipant(ctx context.Context, dmID int64, userID int64) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM dm_threads WHERE id=$1 AND (user1_id=$2 OR user2_id=$2)`, dmID, userID)
	return count > 0, err
}
