package models

import "time"

// Conversation pairs a buyer and a seller around one marketplace listing.
// The same two users may hold several conversations, one per listing.
type Conversation struct {
	ID        int       `db:"id" json:"id"`
	BuyerID   int       `db:"buyer_id" json:"buyer_id"`
	SellerID  int       `db:"seller_id" json:"seller_id"`
	ListingID int       `db:"listing_id" json:"listing_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Counterparty returns the user on the other side of the conversation.
func (c Conversation) Counterparty(userID int) int {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

// Involves reports whether the user participates in the conversation.
func (c Conversation) Involves(userID int) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// Listing is the marketplace item a conversation is scoped to.
type Listing struct {
	ID       int    `db:"id" json:"id"`
	SellerID int    `db:"seller_id" json:"seller_id"`
	Title    string `db:"title" json:"title"`
}
