package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"teamchat/internal/models"
)

var ErrChannelNotFound = errors.New("channel not found")

// ChannelRepository abstracts channel and membership persistence.
type ChannelRepository interface {
	CreateChannel(ctx context.Context, ownerID int64, name string, memberIDs []int64) (models.Channel, error)
	GetChannel(ctx context.Context, channelID int64) (models.Channel, error)
	ListChannelsForUser(ctx context.Context, userID int64) ([]models.Channel, error)
	IsMember(ctx context.Context, channelID int64, userID int64) (bool, error)
	AddMember(ctx context.Context, channelID int64, userID int64) error
}

// ChannelRepo is a sqlx implementation of ChannelRepository.
type ChannelRepo struct {
	db *sqlx.DB
}

// NewChannelRepo constructs a ChannelRepo.
func NewChannelRepo(db *sqlx.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

// CreateChannel creates a channel and registers the owner plus any initial members.
func (r *ChannelRepo) CreateChannel(ctx context.Context, ownerID int64, name string, memberIDs []int64) (models.Channel, error) {
	var channel models.Channel
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO channels (name, owner_id) VALUES ($1, $2) RETURNING id, name, owner_id, created_at`,
		name, ownerID).
		Scan(&channel.ID, &channel.Name, &channel.OwnerID, &channel.CreatedAt)
	if err != nil {
		return models.Channel{}, err
	}

	members := append([]int64{ownerID}, memberIDs...)
	for _, memberID := range members {
		if err := r.AddMember(ctx, channel.ID, memberID); err != nil {
			return models.Channel{}, err
		}
	}
	return channel, nil
}

// GetChannel retrieves a single channel.
func (r *ChannelRepo) GetChannel(ctx context.Context, channelID int64) (models.Channel, error) {
	var channel models.Channel
	err := r.db.GetContext(ctx, &channel,
		`SELECT id, name, owner_id, created_at FROM channels WHERE id=$1`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Channel{}, ErrChannelNotFound
	}
	return channel, err
}

// ListChannelsForUser returns the channels the user is a member of.
func (r *ChannelRepo) ListChannelsForUser(ctx context.Context, userID int64) ([]models.Channel, error) {
	var channels []models.Channel
	err := r.db.SelectContext(ctx, &channels,
		`SELECT c.id, c.name, c.owner_id, c.created_at
         FROM channels c
         JOIN channel_members m ON m.channel_id = c.id
         WHERE m.user_id=$1
         ORDER BY c.name ASC`, userID)
	return channels, err
}

// IsMember reports whether the user belongs to the channel.
func (r *ChannelRepo) IsMember(ctx context.Context, channelID int64, userID int64) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM channel_members WHERE channel_id=$1 AND user_id=$2`, channelID, userID)
	return count > 0, err
}

// AddMember registers a user in the channel, idempotently.
func (r *ChannelRepo) AddMember(ctx context.Context, channelID int64, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		channelID, userID)
	return err
}
