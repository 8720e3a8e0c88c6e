package models

import (
	"fmt"
	"time"
)

// Message is a chat message. It belongs to exactly one conversation
// container: either a channel or a direct-message thread, never both.
type Message struct {
	ID        int64      `db:"id" json:"id"`
	ChannelID *int64     `db:"channel_id" json:"channel_id,omitempty"`
	DMID      *int64     `db:"dm_id" json:"dm_id,omitempty"`
	ParentID  *int64     `db:"parent_id" json:"parent_id,omitempty"`
	SenderID  int64      `db:"sender_id" json:"sender_id"`
	Content   string     `db:"content" json:"content"`
	Edited    bool       `db:"edited" json:"edited"`
	FileID    *string    `db:"file_id" json:"file_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// ConversationKey identifies the message's container for routing and
// subscription lookups ("channel:12" or "dm:7").
func (m Message) ConversationKey() string {
	if m.ChannelID != nil {
		return ChannelKey(*m.ChannelID)
	}
	if m.DMID != nil {
		return DMKey(*m.DMID)
	}
	return ""
}

// ChannelKey builds the conversation key for a channel.
func ChannelKey(channelID int64) string {
	return fmt.Sprintf("channel:%d", channelID)
}

// DMKey builds the conversation key for a direct-message thread.
func DMKey(dmID int64) string {
	return fmt.Sprintf("dm:%d", dmID)
}

// IndexableMessage is a message joined with the display fields the semantic
// index stores alongside each vector.
type IndexableMessage struct {
	Message
	SenderName       string `db:"sender_name"`
	ConversationName string `db:"conversation_name"`
	SourceType       string `db:"source_type"`
}
