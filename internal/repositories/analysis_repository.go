package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"teamchat/internal/models"
)

var ErrAnalysisNotFound = errors.New("analysis not found")

// AnalysisRepository stores structured message analyses keyed by message id.
// Upsert overwrites any prior stored analysis for the same id.
type AnalysisRepository interface {
	Get(ctx context.Context, messageID int64) (models.Analysis, error)
	Upsert(ctx context.Context, analysis models.Analysis) error
}

// AnalysisRepo is a sqlx implementation of AnalysisRepository.
type AnalysisRepo struct {
	db *sqlx.DB
}

// NewAnalysisRepo constructs an AnalysisRepo.
func NewAnalysisRepo(db *sqlx.DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

// Get loads the stored analysis for a message.
func (r *AnalysisRepo) Get(ctx context.Context, messageID int64) (models.Analysis, error) {
	var row struct {
		Payload   []byte       `db:"payload"`
		CreatedBy int64        `db:"created_by"`
		CreatedAt sql.NullTime `db:"created_at"`
	}
	err := r.db.GetContext(ctx, &row,
		`SELECT payload, created_by, created_at FROM message_analyses WHERE message_id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Analysis{}, ErrAnalysisNotFound
	}
	if err != nil {
		return models.Analysis{}, err
	}

	var analysis models.Analysis
	if err := json.Unmarshal(row.Payload, &analysis); err != nil {
		return models.Analysis{}, fmt.Errorf("decode analysis payload: %w", err)
	}
	analysis.MessageID = messageID
	analysis.CreatedBy = row.CreatedBy
	if row.CreatedAt.Valid {
		analysis.CreatedAt = row.CreatedAt.Time
	}
	return analysis, nil
}

// Upsert stores the analysis, overwriting any previous row for the message.
func (r *AnalysisRepo) Upsert(ctx context.Context, analysis models.Analysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode analysis payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO message_analyses (message_id, payload, created_by, created_at)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (message_id) DO UPDATE
         SET payload=EXCLUDED.payload, created_by=EXCLUDED.created_by, created_at=EXCLUDED.created_at`,
		analysis.MessageID, payload, analysis.CreatedBy, analysis.CreatedAt)
	return err
}
