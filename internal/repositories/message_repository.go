package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"market-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for conversation messages. The batch
// lookups take the full conversation-id set of an aggregation pass so thread
// building never fans out into per-conversation queries.
type MessageRepository interface {
	Create(ctx context.Context, conversationID, senderID int, body string) (models.Message, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
	RecentByConversations(ctx context.Context, conversationIDs []int, limit int) ([]models.Message, error)
	UnreadByConversations(ctx context.Context, conversationIDs []int, userID int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID int) error
	MarkConversationRead(ctx context.Context, conversationID, userID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message in a conversation.
func (r *MessageRepo) Create(ctx context.Context, conversationID, senderID int, body string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, body)
        VALUES ($1, $2, $3)
        RETURNING id, conversation_id, sender_id, body, read, created_at`,
		conversationID, senderID, body).StructScan(&msg)
	return msg, err
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, conversation_id, sender_id, body, read, created_at
        FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// RecentByConversations returns the newest messages across the id set,
// newest first, capped at limit.
func (r *MessageRepo) RecentByConversations(ctx context.Context, conversationIDs []int, limit int) ([]models.Message, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, conversation_id, sender_id, body, read, created_at
        FROM messages
        WHERE conversation_id IN (?)
        ORDER BY created_at DESC
        LIMIT ?`, conversationIDs, limit)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var msgs []models.Message
	err = r.db.SelectContext(ctx, &msgs, query, args...)
	return msgs, err
}

// UnreadByConversations returns every unread message addressed to the user
// across the id set.
func (r *MessageRepo) UnreadByConversations(ctx context.Context, conversationIDs []int, userID int) ([]models.Message, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, conversation_id, sender_id, body, read, created_at
        FROM messages
        WHERE conversation_id IN (?) AND read = FALSE AND sender_id <> ?`, conversationIDs, userID)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var msgs []models.Message
	err = r.db.SelectContext(ctx, &msgs, query, args...)
	return msgs, err
}

// MarkRead flips the read flag on a single message.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE WHERE id=$1`, messageID)
	return err
}

// MarkConversationRead flips the read flag on every message addressed to the
// user in the conversation.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, userID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE
        WHERE conversation_id=$1 AND sender_id <> $2 AND read = FALSE`, conversationID, userID)
	return err
}
