package feed

import (
	"context"
	"time"
)

// MessageEvent mirrors a row insert on the messages table, pushed by the
// realtime feed. No ordering is guaranteed relative to concurrent queries and
// the same event may be redelivered; consumers dedupe by message id.
type MessageEvent struct {
	MessageID      int       `json:"message_id"`
	ConversationID int       `json:"conversation_id"`
	SenderID       int       `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// RoutingKeyMessageInsert is the routing key message-insert events travel on.
const RoutingKeyMessageInsert = "messages.insert"

// Feed is a subscription channel for message-insert events.
type Feed interface {
	Subscribe(ctx context.Context, handler func(MessageEvent)) error
	Close() error
}
