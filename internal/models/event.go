package models

// Realtime event types delivered to conversation subscribers.
const (
	EventNewMessage         = "new_message"
	EventMessageUpdated     = "message_updated"
	EventMessageDeleted     = "message_deleted"
	EventReactionsUpdated   = "reactions_updated"
	EventSubscriptionFailed = "subscription_failed"
)

// Event is the wire shape published to the broker and pushed to websocket
// clients. Exactly one of the optional fields is set depending on Type.
type Event struct {
	Type         string          `json:"type"`
	Conversation string          `json:"conversation,omitempty"`
	Message      *Message        `json:"message,omitempty"`
	MessageID    int64           `json:"message_id,omitempty"`
	Reactions    []ReactionCount `json:"reactions,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

// TypingUser is one entry in the currently-typing list pushed to clients.
// The list already excludes the receiving viewer.
type TypingUser struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// TypingEvent is the typing-presence push frame.
type TypingEvent struct {
	Type   string       `json:"type"`
	Typing []TypingUser `json:"typing"`
}
