// Package mocks holds shared testify mocks for the repository and
// publisher interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"market-chat/internal/feed"
	"market-chat/internal/models"
	"market-chat/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	convs, _ := args.Get(0).([]models.Conversation)
	return convs, args.Error(1)
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	conv, _ := args.Get(0).(models.Conversation)
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateOrGet(ctx context.Context, buyerID, sellerID, listingID int) (models.Conversation, error) {
	args := m.Called(ctx, buyerID, sellerID, listingID)
	conv, _ := args.Get(0).(models.Conversation)
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) Touch(ctx context.Context, conversationID int) error {
	return m.Called(ctx, conversationID).Error(0)
}

func (m *ConversationRepositoryMock) GetListing(ctx context.Context, listingID int) (models.Listing, error) {
	args := m.Called(ctx, listingID)
	listing, _ := args.Get(0).(models.Listing)
	return listing, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)

func (m *MessageRepositoryMock) Create(ctx context.Context, conversationID, senderID int, body string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, body)
	msg, _ := args.Get(0).(models.Message)
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	msg, _ := args.Get(0).(models.Message)
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) RecentByConversations(ctx context.Context, conversationIDs []int, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationIDs, limit)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UnreadByConversations(ctx context.Context, conversationIDs []int, userID int) ([]models.Message, error) {
	args := m.Called(ctx, conversationIDs, userID)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID int) error {
	return m.Called(ctx, messageID).Error(0)
}

func (m *MessageRepositoryMock) MarkConversationRead(ctx context.Context, conversationID, userID int) error {
	return m.Called(ctx, conversationID, userID).Error(0)
}

type ProfileRepositoryMock struct {
	mock.Mock
}

var _ repositories.ProfileRepository = (*ProfileRepositoryMock)(nil)

func (m *ProfileRepositoryMock) Get(ctx context.Context, userID int) (models.Profile, error) {
	args := m.Called(ctx, userID)
	profile, _ := args.Get(0).(models.Profile)
	return profile, args.Error(1)
}

func (m *ProfileRepositoryMock) BulkProfiles(ctx context.Context, userIDs []int) ([]models.Profile, error) {
	args := m.Called(ctx, userIDs)
	profiles, _ := args.Get(0).([]models.Profile)
	return profiles, args.Error(1)
}

type PreferenceRepositoryMock struct {
	mock.Mock
}

var _ repositories.PreferenceRepository = (*PreferenceRepositoryMock)(nil)

func (m *PreferenceRepositoryMock) BlockedIDs(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	ids, _ := args.Get(0).([]int)
	return ids, args.Error(1)
}

func (m *PreferenceRepositoryMock) Block(ctx context.Context, userID, targetID int) error {
	return m.Called(ctx, userID, targetID).Error(0)
}

func (m *PreferenceRepositoryMock) Unblock(ctx context.Context, userID, targetID int) error {
	return m.Called(ctx, userID, targetID).Error(0)
}

func (m *PreferenceRepositoryMock) BookmarkedIDs(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	ids, _ := args.Get(0).([]int)
	return ids, args.Error(1)
}

func (m *PreferenceRepositoryMock) Bookmark(ctx context.Context, userID, targetID int) error {
	return m.Called(ctx, userID, targetID).Error(0)
}

func (m *PreferenceRepositoryMock) Unbookmark(ctx context.Context, userID, targetID int) error {
	return m.Called(ctx, userID, targetID).Error(0)
}

func (m *PreferenceRepositoryMock) ArchivedConversationIDs(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	ids, _ := args.Get(0).([]int)
	return ids, args.Error(1)
}

func (m *PreferenceRepositoryMock) Archive(ctx context.Context, userID, conversationID int) error {
	return m.Called(ctx, userID, conversationID).Error(0)
}

func (m *PreferenceRepositoryMock) Unarchive(ctx context.Context, userID, conversationID int) error {
	return m.Called(ctx, userID, conversationID).Error(0)
}

type PublisherMock struct {
	mock.Mock
}

var _ feed.Publisher = (*PublisherMock)(nil)

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}
