package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"teamchat/internal/models"
)

// ReactionRepository abstracts reaction persistence. Toggle semantics: a
// second identical (message, user, emoji) write removes the first.
type ReactionRepository interface {
	Toggle(ctx context.Context, messageID int64, userID int64, emoji string) (added bool, err error)
	Aggregate(ctx context.Context, messageID int64) ([]models.ReactionCount, error)
}

// ReactionRepo is a sqlx implementation of ReactionRepository.
type ReactionRepo struct {
	db *sqlx.DB
}

// NewReactionRepo constructs a ReactionRepo.
func NewReactionRepo(db *sqlx.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// Toggle adds the reaction if absent, removes it if present, and reports
// whether a row was actually inserted. The delete and conditional insert
// run as one statement; a toggle that loses a concurrent race reports
// added=false rather than claiming an insert it never made.
func (r *ReactionRepo) Toggle(ctx context.Context, messageID int64, userID int64, emoji string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`WITH deleted AS (
            DELETE FROM reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3 RETURNING 1
        )
        INSERT INTO reactions (message_id, user_id, emoji)
        SELECT $1, $2, $3
        WHERE NOT EXISTS (SELECT 1 FROM deleted)
        ON CONFLICT DO NOTHING`,
		messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return inserted > 0, nil
}

// Aggregate returns the per-emoji counts for a message.
func (r *ReactionRepo) Aggregate(ctx context.Context, messageID int64) ([]models.ReactionCount, error) {
	counts := []models.ReactionCount{}
	err := r.db.SelectContext(ctx, &counts,
		`SELECT emoji, COUNT(*) AS count FROM reactions WHERE message_id=$1 GROUP BY emoji ORDER BY emoji ASC`,
		messageID)
	return counts, err
}
