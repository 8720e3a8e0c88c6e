package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"teamchat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, channel_id, dm_id, parent_id, sender_id, content, edited, file_id, created_at, updated_at`

// CreateMessageParams carries everything needed to store a new message.
// Exactly one of ChannelID and DMID must be set.
type CreateMessageParams struct {
	ChannelID *int64
	DMID      *int64
	ParentID  *int64
	SenderID  int64
	Content   string
	FileID    *string
}

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, params CreateMessageParams) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListChannelMessages(ctx context.Context, channelID int64, limit int) ([]models.Message, error)
	ListDMMessages(ctx context.Context, dmID int64, limit int) ([]models.Message, error)
	UpdateMessageContent(ctx context.Context, messageID int64, senderID int64, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID int64, senderID int64) error
	PrecedingMessages(ctx context.Context, msg models.Message, limit int) ([]models.Message, error)
	ListForIndex(ctx context.Context, since *time.Time, offset int, limit int) ([]models.IndexableMessage, error)
	CountForIndex(ctx context.Context, since *time.Time) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message in its conversation container.
func (r *MessageRepo) CreateMessage(ctx context.Context, params CreateMessageParams) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (channel_id, dm_id, parent_id, sender_id, content, file_id)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+messageColumns,
		params.ChannelID, params.DMID, params.ParentID, params.SenderID, params.Content, params.FileID).
		StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListChannelMessages returns the most recent channel messages in
// chronological order.
func (r *MessageRepo) ListChannelMessages(ctx context.Context, channelID int64, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT * FROM (
            SELECT `+messageColumns+` FROM messages WHERE channel_id=$1 ORDER BY created_at DESC LIMIT $2
         ) recent ORDER BY created_at ASC`, channelID, limit)
	return msgs, err
}

// ListDMMessages returns the most recent DM messages in chronological order.
func (r *MessageRepo) ListDMMessages(ctx context.Context, dmID int64, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT * FROM (
            SELECT `+messageColumns+` FROM messages WHERE dm_id=$1 ORDER BY created_at DESC LIMIT $2
         ) recent ORDER BY created_at ASC`, dmID, limit)
	return msgs, err
}

// UpdateMessageContent edits a message in place. Only the sender may edit;
// the edited flag is set and updated_at refreshed.
func (r *MessageRepo) UpdateMessageContent(ctx context.Context, messageID int64, senderID int64, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET content=$1, edited=TRUE, updated_at=NOW()
         WHERE id=$2 AND sender_id=$3
         RETURNING `+messageColumns,
		content, messageID, senderID).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// DeleteMessage removes a message. Only the sender may delete.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID int64, senderID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id=$1 AND sender_id=$2`, messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// PrecedingMessages returns up to limit messages that immediately precede
// msg in the same conversation, in chronological order.
func (r *MessageRepo) PrecedingMessages(ctx context.Context, msg models.Message, limit int) ([]models.Message, error) {
	var container string
	var containerID int64
	switch {
	case msg.ChannelID != nil:
		container, containerID = "channel_id", *msg.ChannelID
	case msg.DMID != nil:
		container, containerID = "dm_id", *msg.DMID
	default:
		return nil, errors.New("message has no conversation container")
	}

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT * FROM (
            SELECT `+messageColumns+` FROM messages
            WHERE `+container+`=$1 AND (created_at, id) < ($2, $3)
            ORDER BY created_at DESC, id DESC LIMIT $4
         ) preceding ORDER BY created_at ASC, id ASC`,
		containerID, msg.CreatedAt, msg.ID, limit)
	return msgs, err
}

// ListForIndex pages through messages joined with the display fields the
// semantic index stores. With since set, only messages created at or after
// that instant are returned (incremental reindex).
func (r *MessageRepo) ListForIndex(ctx context.Context, since *time.Time, offset int, limit int) ([]models.IndexableMessage, error) {
	var msgs []models.IndexableMessage
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT m.id, m.channel_id, m.dm_id, m.parent_id, m.sender_id, m.content,
                m.edited, m.file_id, m.created_at, m.updated_at,
                COALESCE(u.username, '') AS sender_name,
                COALESCE(c.name, 'direct message') AS conversation_name,
                CASE WHEN m.channel_id IS NOT NULL THEN 'channel_message' ELSE 'dm_message' END AS source_type
         FROM messages m
         LEFT JOIN users u ON u.id = m.sender_id
         LEFT JOIN channels c ON c.id = m.channel_id
         WHERE ($1::timestamptz IS NULL OR m.created_at >= $1)
         ORDER BY m.id ASC
         OFFSET $2 LIMIT $3`,
		since, offset, limit)
	return msgs, err
}

// CountForIndex counts the messages ListForIndex would visit.
func (r *MessageRepo) CountForIndex(ctx context.Context, since *time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE ($1::timestamptz IS NULL OR created_at >= $1)`, since)
	return count, err
}
