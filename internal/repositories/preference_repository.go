package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// PreferenceRepository manages the per-user toggle tables: blocked users,
// bookmarked users and archived conversations.
type PreferenceRepository interface {
	BlockedIDs(ctx context.Context, userID int) ([]int, error)
	Block(ctx context.Context, userID, targetID int) error
	Unblock(ctx context.Context, userID, targetID int) error

	BookmarkedIDs(ctx context.Context, userID int) ([]int, error)
	Bookmark(ctx context.Context, userID, targetID int) error
	Unbookmark(ctx context.Context, userID, targetID int) error

	ArchivedConversationIDs(ctx context.Context, userID int) ([]int, error)
	Archive(ctx context.Context, userID, conversationID int) error
	Unarchive(ctx context.Context, userID, conversationID int) error
}

// PreferenceRepo is a sqlx implementation of PreferenceRepository.
type PreferenceRepo struct {
	db *sqlx.DB
}

// NewPreferenceRepo constructs a PreferenceRepo.
func NewPreferenceRepo(db *sqlx.DB) *PreferenceRepo {
	return &PreferenceRepo{db: db}
}

func (r *PreferenceRepo) BlockedIDs(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT blocked_id FROM blocked_users WHERE user_id=$1`, userID)
	return ids, err
}

func (r *PreferenceRepo) Block(ctx context.Context, userID, targetID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO blocked_users (user_id, blocked_id) VALUES ($1, $2)
        ON CONFLICT (user_id, blocked_id) DO NOTHING`, userID, targetID)
	return err
}

func (r *PreferenceRepo) Unblock(ctx context.Context, userID, targetID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocked_users WHERE user_id=$1 AND blocked_id=$2`, userID, targetID)
	return err
}

func (r *PreferenceRepo) BookmarkedIDs(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT bookmarked_id FROM bookmarked_users WHERE user_id=$1`, userID)
	return ids, err
}

func (r *PreferenceRepo) Bookmark(ctx context.Context, userID, targetID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO bookmarked_users (user_id, bookmarked_id) VALUES ($1, $2)
        ON CONFLICT (user_id, bookmarked_id) DO NOTHING`, userID, targetID)
	return err
}

func (r *PreferenceRepo) Unbookmark(ctx context.Context, userID, targetID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bookmarked_users WHERE user_id=$1 AND bookmarked_id=$2`, userID, targetID)
	return err
}

func (r *PreferenceRepo) ArchivedConversationIDs(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT conversation_id FROM archived_conversations WHERE user_id=$1`, userID)
	return ids, err
}

func (r *PreferenceRepo) Archive(ctx context.Context, userID, conversationID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO archived_conversations (user_id, conversation_id) VALUES ($1, $2)
        ON CONFLICT (user_id, conversation_id) DO NOTHING`, userID, conversationID)
	return err
}

func (r *PreferenceRepo) Unarchive(ctx context.Context, userID, conversationID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM archived_conversations WHERE user_id=$1 AND conversation_id=$2`, userID, conversationID)
	return err
}
