package models

import "time"

// Reaction is a single (message, user, emoji) triple. A user may react with
// a given emoji to a given message at most once; toggling removes it.
type Reaction struct {
	MessageID int64     `db:"message_id" json:"message_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ReactionCount is the aggregated per-emoji view consumed by clients.
type ReactionCount struct {
	Emoji string `db:"emoji" json:"emoji"`
	Count int    `db:"count" json:"count"`
}
