package models

import "time"

// Message belongs to exactly one conversation. Rows are immutable except for
// the read flag, flipped once by the receiving side.
type Message struct {
	ID             int       `db:"id" json:"id"`
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	Body           string    `db:"body" json:"body"`
	Read           bool      `db:"read" json:"read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// TranscriptEntry is a message enriched with its sender's display name for
// the open-thread view.
type TranscriptEntry struct {
	Message
	SenderUsername string `json:"sender_username,omitempty"`
}
