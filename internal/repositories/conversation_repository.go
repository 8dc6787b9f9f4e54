package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"market-chat/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrListingNotFound      = errors.New("listing not found")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	ListForUser(ctx context.Context, userID int) ([]models.Conversation, error)
	Get(ctx context.Context, conversationID int) (models.Conversation, error)
	CreateOrGet(ctx context.Context, buyerID, sellerID, listingID int) (models.Conversation, error)
	Touch(ctx context.Context, conversationID int) error
	GetListing(ctx context.Context, listingID int) (models.Listing, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// ListForUser returns every conversation the user participates in, most
// recently active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	query := `SELECT id, buyer_id, seller_id, listing_id, created_at, updated_at
        FROM conversations
        WHERE buyer_id=$1 OR seller_id=$1
        ORDER BY updated_at DESC`
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, query, userID)
	return convs, err
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, buyer_id, seller_id, listing_id, created_at, updated_at
        FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// CreateOrGet creates the conversation for a buyer/listing pair if it does
// not already exist. At most one conversation exists per pair; the lookup
// runs before the insert and a unique index backs it up.
func (r *ConversationRepo) CreateOrGet(ctx context.Context, buyerID, sellerID, listingID int) (models.Conversation, error) {
	if buyerID == sellerID {
		return models.Conversation{}, errors.New("cannot start conversation with self")
	}

	var conv models.Conversation
	query := `SELECT id, buyer_id, seller_id, listing_id, created_at, updated_at
        FROM conversations WHERE buyer_id=$1 AND listing_id=$2`
	err := r.db.GetContext(ctx, &conv, query, buyerID, listingID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, err
	}

	err = r.db.QueryRowxContext(ctx, `INSERT INTO conversations (buyer_id, seller_id, listing_id)
        VALUES ($1, $2, $3)
        RETURNING id, buyer_id, seller_id, listing_id, created_at, updated_at`,
		buyerID, sellerID, listingID).StructScan(&conv)
	return conv, err
}

// Touch bumps the conversation's last-activity timestamp.
func (r *ConversationRepo) Touch(ctx context.Context, conversationID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id=$1`, conversationID)
	return err
}

// GetListing fetches the listing a conversation would be scoped to.
func (r *ConversationRepo) GetListing(ctx context.Context, listingID int) (models.Listing, error) {
	var listing models.Listing
	err := r.db.GetContext(ctx, &listing, `SELECT id, seller_id, title FROM listings WHERE id=$1`, listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Listing{}, ErrListingNotFound
	}
	return listing, err
}
