package models

import "time"

// ContextMessage is one entry of the context window assembled around the
// analyzed message. Chunked marks content truncated to its first chunk.
type ContextMessage struct {
	MessageID int64     `json:"message_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	IsTarget  bool      `json:"is_target,omitempty"`
	Chunked   bool      `json:"chunked,omitempty"`
}

// SimilarMessage is a semantically related historical message found for the
// analyzed message, annotated with its retrieval score.
type SimilarMessage struct {
	Content      string    `json:"content"`
	Sender       string    `json:"sender"`
	Conversation string    `json:"conversation"`
	CreatedAt    time.Time `json:"created_at"`
	Score        float64   `json:"score"`
}

// Analysis is the structured result produced for a single message, cached
// keyed by message id.
type Analysis struct {
	MessageID       int64            `json:"message_id"`
	Summary         string           `json:"summary"`
	KeyPoints       []string         `json:"key_points"`
	Tone            string           `json:"tone"`
	ActionItems     []string         `json:"action_items"`
	Patterns        []string         `json:"patterns"`
	ContextMessages []ContextMessage `json:"context_messages"`
	SimilarMessages []SimilarMessage `json:"similar_messages"`
	CreatedBy       int64            `json:"created_by"`
	CreatedAt       time.Time        `json:"created_at"`
}
