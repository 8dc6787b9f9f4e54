package threads

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"

	"market-chat/internal/models"
	"market-chat/internal/observability"
	"market-chat/internal/repositories"
)

// DefaultRecentWindow caps the batched recent-message lookup. It only needs
// to be large enough to surface at least one message per active conversation.
const DefaultRecentWindow = 100

// Aggregator converts the flat list of listing-scoped conversations into
// per-counterparty threads with merged unread counts and last-message
// resolution. Every pass rebuilds the list from scratch; nothing is patched
// incrementally.
type Aggregator struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	profiles      repositories.ProfileRepository
	preferences   repositories.PreferenceRepository
	recentWindow  int
}

// NewAggregator constructs an Aggregator.
func NewAggregator(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	profiles repositories.ProfileRepository,
	preferences repositories.PreferenceRepository,
	recentWindow int,
) *Aggregator {
	if recentWindow < 1 {
		recentWindow = DefaultRecentWindow
	}
	return &Aggregator{
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		preferences:   preferences,
		recentWindow:  recentWindow,
	}
}

// Aggregate produces the ordered thread list for the user. On any query
// failure it returns an error and no list; the caller keeps whatever list it
// had before.
func (a *Aggregator) Aggregate(ctx context.Context, userID int) ([]models.Thread, error) {
	ctx, span := otel.Tracer("market-chat/threads").Start(ctx, "threads.aggregate")
	defer span.End()

	threads, err := a.aggregate(ctx, userID)
	if err != nil {
		observability.IncAggregationPass("error")
		return nil, err
	}
	observability.IncAggregationPass("ok")
	return threads, nil
}

func (a *Aggregator) aggregate(ctx context.Context, userID int) ([]models.Thread, error) {
	convs, err := a.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	blocked, err := a.idSet(a.preferences.BlockedIDs, ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load blocked set: %w", err)
	}
	bookmarked, err := a.idSet(a.preferences.BookmarkedIDs, ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load bookmarked set: %w", err)
	}
	archived, err := a.idSet(a.preferences.ArchivedConversationIDs, ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load archived set: %w", err)
	}

	// Partition by counterparty. Blocked counterparties produce no thread at
	// all, even for historical conversations.
	groups := map[int][]models.Conversation{}
	counterparties := make([]int, 0, len(convs))
	conversationIDs := make([]int, 0, len(convs))
	for _, conv := range convs {
		cp := conv.Counterparty(userID)
		if _, isBlocked := blocked[cp]; isBlocked {
			continue
		}
		if _, seen := groups[cp]; !seen {
			counterparties = append(counterparties, cp)
		}
		groups[cp] = append(groups[cp], conv)
		conversationIDs = append(conversationIDs, conv.ID)
	}
	if len(groups) == 0 {
		return []models.Thread{}, nil
	}

	recent, err := a.messages.RecentByConversations(ctx, conversationIDs, a.recentWindow)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	unread, err := a.messages.UnreadByConversations(ctx, conversationIDs, userID)
	if err != nil {
		return nil, fmt.Errorf("load unread messages: %w", err)
	}

	// Results are newest-first, so the first occurrence per conversation is
	// its latest message.
	lastByConv := map[int]models.Message{}
	for _, msg := range recent {
		if _, ok := lastByConv[msg.ConversationID]; !ok {
			lastByConv[msg.ConversationID] = msg
		}
	}
	unreadByConv := map[int]int{}
	for _, msg := range unread {
		unreadByConv[msg.ConversationID]++
	}

	profiles, err := a.profiles.BulkProfiles(ctx, counterparties)
	if err != nil {
		return nil, fmt.Errorf("load counterparty profiles: %w", err)
	}
	profileByID := map[int]models.Profile{}
	for _, p := range profiles {
		profileByID[p.ID] = p
	}

	threads := make([]models.Thread, 0, len(groups))
	for _, cp := range counterparties {
		group := groups[cp]

		thread := models.Thread{
			Counterparty:    profileByID[cp],
			ConversationIDs: make([]int, 0, len(group)),
			Archived:        true,
		}
		if thread.Counterparty.ID == 0 {
			thread.Counterparty = models.Profile{ID: cp}
		}
		if _, ok := bookmarked[cp]; ok {
			thread.Bookmarked = true
		}

		for _, conv := range group {
			thread.ConversationIDs = append(thread.ConversationIDs, conv.ID)
			thread.UnreadCount += unreadByConv[conv.ID]
			if _, ok := archived[conv.ID]; !ok {
				thread.Archived = false
			}
			if last, ok := lastByConv[conv.ID]; ok {
				if thread.LastMessage == nil || last.CreatedAt.After(thread.LastMessage.CreatedAt) {
					msg := last
					thread.LastMessage = &msg
				}
			}
			// No message anywhere in the group yet: fall back to the earliest
			// conversation creation time.
			if thread.LastActivity.IsZero() || conv.CreatedAt.Before(thread.LastActivity) {
				thread.LastActivity = conv.CreatedAt
			}
		}
		if thread.LastMessage != nil {
			thread.LastActivity = thread.LastMessage.CreatedAt
		}

		threads = append(threads, thread)
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastActivity.After(threads[j].LastActivity)
	})
	return threads, nil
}

func (a *Aggregator) idSet(load func(context.Context, int) ([]int, error), ctx context.Context, userID int) (map[int]struct{}, error) {
	ids, err := load(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
