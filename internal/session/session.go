package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"market-chat/internal/feed"
	"market-chat/internal/models"
	"market-chat/internal/notify"
	"market-chat/internal/observability"
	"market-chat/internal/prefs"
	"market-chat/internal/repositories"
	"market-chat/internal/threads"
)

var (
	ErrThreadNotFound = errors.New("no thread with that counterparty")
	ErrNotParticipant = errors.New("not a conversation participant")
)

// EventSink receives engine events destined for the presentation shell.
type EventSink interface {
	ThreadsUpdated(userID int, threads []models.Thread)
	TranscriptAppended(userID int, entry models.TranscriptEntry)
}

// Deps bundles everything a session needs.
type Deps struct {
	Aggregator    *threads.Aggregator
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Profiles      repositories.ProfileRepository
	Preferences   repositories.PreferenceRepository
	Prefs         *prefs.Store
	Publisher     feed.Publisher
	Sink          EventSink
	Alerter       notify.Alerter
	Capabilities  notify.Capabilities
	Logger        *slog.Logger

	RefreshCooldown time.Duration
	DebounceWindow  time.Duration
	ToastTTL        time.Duration
	PreviewLimit    int
	RecentWindow    int
}

// Session is one user's conversation-aggregation and notification engine. The
// thread list is its single shared mutable resource: every writer replaces it
// through a full aggregation pass, except the sanctioned optimistic append to
// the open transcript.
type Session struct {
	userID     int
	deps       Deps
	limiter    *threads.RateLimiter
	debouncer  *threads.Debouncer
	dispatcher *notify.Dispatcher
	logger     *slog.Logger

	mu               sync.Mutex
	threadList       []models.Thread
	transcript       []models.TranscriptEntry
	transcriptIDs    map[int]struct{}
	openCounterparty int
	openConvIDs      map[int]struct{}
	// epoch guards async completions: it is bumped whenever the open thread
	// changes, and any in-flight fetch re-checks it before mutating state.
	epoch int
}

// New constructs a session for one user.
func New(userID int, deps Deps) *Session {
	s := &Session{
		userID:        userID,
		deps:          deps,
		logger:        deps.Logger.With("user_id", userID),
		transcriptIDs: map[int]struct{}{},
		openConvIDs:   map[int]struct{}{},
	}
	s.limiter = threads.NewRateLimiter(deps.RefreshCooldown)
	s.debouncer = threads.NewDebouncer(deps.DebounceWindow, s.debouncedRefresh)
	s.dispatcher = notify.NewDispatcher(
		userID,
		deps.Alerter,
		deps.Capabilities,
		&notify.Viewport{},
		s.Muted,
		s.OpenCounterparty,
		deps.PreviewLimit,
		deps.ToastTTL,
	)
	return s
}

// Close stops any pending debounced refresh.
func (s *Session) Close() {
	s.debouncer.Stop()
}

// Threads returns the current thread list.
func (s *Session) Threads() []models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadList
}

// Transcript returns the open thread's transcript.
func (s *Session) Transcript() []models.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// OpenCounterparty returns the counterparty of the open thread, zero if none.
func (s *Session) OpenCounterparty() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCounterparty
}

// Muted reports the client-local mute flag.
func (s *Session) Muted() bool {
	return s.deps.Prefs.Bool(prefs.KeyMuted)
}

// SetMuted toggles the mute flag, persisted across reloads.
func (s *Session) SetMuted(muted bool) error {
	return s.deps.Prefs.SetBool(prefs.KeyMuted, muted)
}

// SetViewportHidden records a tab visibility change reported by the shell.
func (s *Session) SetViewportHidden(hidden bool) {
	s.dispatcher.SetViewportHidden(hidden)
}

// Refresh is the explicit refresh path (opening the panel). Calls inside the
// cooldown window are no-ops returning the retained list.
func (s *Session) Refresh(ctx context.Context) ([]models.Thread, error) {
	if !s.limiter.Allow() {
		observability.IncRefreshRejected("rate_limited")
		return s.Threads(), nil
	}
	return s.runAggregation(ctx)
}

// HandleEvent consumes one realtime message-insert event. It is safe against
// redelivery and against arbitrary interleaving with open/refresh calls.
func (s *Session) HandleEvent(ev feed.MessageEvent) {
	ctx := context.Background()

	// Our own send echoed back: refresh only, no notification output.
	if ev.SenderID == s.userID {
		s.debouncer.Trigger()
		return
	}

	conv, err := s.deps.Conversations.Get(ctx, ev.ConversationID)
	if err != nil {
		s.logger.Warn("realtime event: conversation lookup failed", "conversation_id", ev.ConversationID, "err", err)
		return
	}
	if !conv.Involves(s.userID) {
		return
	}

	s.debouncer.Trigger()

	if s.OpenCounterparty() == ev.SenderID {
		s.liveAppend(ctx, ev)
		return
	}

	sender, err := s.deps.Profiles.Get(ctx, ev.SenderID)
	if err != nil {
		s.logger.Warn("realtime event: sender profile lookup failed", "sender_id", ev.SenderID, "err", err)
		sender = models.Profile{ID: ev.SenderID}
	}
	s.dispatcher.Dispatch(ev, sender)
}

// OpenThread opens the thread with the counterparty, loads its transcript and
// marks its messages read.
func (s *Session) OpenThread(ctx context.Context, counterpartyID int) ([]models.TranscriptEntry, error) {
	convs, err := s.conversationsWith(ctx, counterpartyID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, ErrThreadNotFound
	}

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.openCounterparty = counterpartyID
	s.transcript = nil
	s.transcriptIDs = map[int]struct{}{}
	s.openConvIDs = map[int]struct{}{}
	convIDs := make([]int, 0, len(convs))
	for _, conv := range convs {
		s.openConvIDs[conv.ID] = struct{}{}
		convIDs = append(convIDs, conv.ID)
	}
	s.mu.Unlock()

	recent, err := s.deps.Messages.RecentByConversations(ctx, convIDs, s.recentWindow())
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	names, err := s.usernames(ctx, []int{s.userID, counterpartyID})
	if err != nil {
		s.logger.Warn("open thread: profile lookup failed", "err", err)
	}

	// Newest-first from the repository; the transcript reads oldest-first.
	entries := make([]models.TranscriptEntry, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		msg := recent[i]
		entries = append(entries, models.TranscriptEntry{Message: msg, SenderUsername: names[msg.SenderID]})
	}

	s.mu.Lock()
	if s.epoch != epoch {
		// The user switched threads while we were loading.
		s.mu.Unlock()
		return nil, nil
	}
	s.transcript = entries
	for _, entry := range entries {
		s.transcriptIDs[entry.ID] = struct{}{}
	}
	s.mu.Unlock()

	for _, convID := range convIDs {
		if err := s.deps.Messages.MarkConversationRead(ctx, convID, s.userID); err != nil {
			s.logger.Warn("mark conversation read failed", "conversation_id", convID, "err", err)
		}
	}
	s.debouncer.Trigger()

	return entries, nil
}

// CloseThread closes the open thread, cancelling any in-flight per-thread
// work via the epoch guard.
func (s *Session) CloseThread() {
	s.mu.Lock()
	s.epoch++
	s.openCounterparty = 0
	s.transcript = nil
	s.transcriptIDs = map[int]struct{}{}
	s.openConvIDs = map[int]struct{}{}
	s.mu.Unlock()
}

// StartConversation creates (or finds) the conversation for the listing and
// the current user as buyer.
func (s *Session) StartConversation(ctx context.Context, listingID int) (models.Conversation, error) {
	listing, err := s.deps.Conversations.GetListing(ctx, listingID)
	if err != nil {
		return models.Conversation{}, err
	}
	if listing.SellerID == s.userID {
		return models.Conversation{}, errors.New("cannot start conversation on own listing")
	}

	conv, err := s.deps.Conversations.CreateOrGet(ctx, s.userID, listing.SellerID, listing.ID)
	if err != nil {
		return models.Conversation{}, err
	}
	s.reaggregate(ctx)
	return conv, nil
}

// Send stores a message in the conversation. On failure nothing is appended
// locally and the caller gets the error back so the input can be restored.
func (s *Session) Send(ctx context.Context, conversationID int, body string) (models.TranscriptEntry, error) {
	conv, err := s.deps.Conversations.Get(ctx, conversationID)
	if err != nil {
		return models.TranscriptEntry{}, err
	}
	if !conv.Involves(s.userID) {
		return models.TranscriptEntry{}, ErrNotParticipant
	}

	msg, err := s.deps.Messages.Create(ctx, conversationID, s.userID, body)
	if err != nil {
		return models.TranscriptEntry{}, fmt.Errorf("store message: %w", err)
	}
	if err := s.deps.Conversations.Touch(ctx, conversationID); err != nil {
		s.logger.Warn("touch conversation failed", "conversation_id", conversationID, "err", err)
	}

	// Feed the realtime channel; the echo back to us dedupes by id.
	_ = s.deps.Publisher.Publish(ctx, feed.RoutingKeyMessageInsert, feed.MessageEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
	})

	entry := models.TranscriptEntry{Message: msg}
	if profile, err := s.deps.Profiles.Get(ctx, s.userID); err == nil {
		entry.SenderUsername = profile.Username
	}

	// The sanctioned optimistic append: our own message into the open thread.
	s.mu.Lock()
	if s.openCounterparty == conv.Counterparty(s.userID) {
		if _, dup := s.transcriptIDs[entry.ID]; !dup {
			s.transcript = append(s.transcript, entry)
			s.transcriptIDs[entry.ID] = struct{}{}
			s.openConvIDs[conv.ID] = struct{}{}
			s.mu.Unlock()
			s.deps.Sink.TranscriptAppended(s.userID, entry)
			s.debouncer.Trigger()
			return entry, nil
		}
	}
	s.mu.Unlock()

	s.debouncer.Trigger()
	return entry, nil
}

// Archive archives every conversation of the counterparty's thread.
func (s *Session) Archive(ctx context.Context, counterpartyID int) error {
	return s.eachConversation(ctx, counterpartyID, s.deps.Preferences.Archive)
}

// Unarchive unarchives every conversation of the counterparty's thread.
func (s *Session) Unarchive(ctx context.Context, counterpartyID int) error {
	return s.eachConversation(ctx, counterpartyID, s.deps.Preferences.Unarchive)
}

// Block blocks the counterparty, removing their thread entirely. If their
// thread is open it is closed first.
func (s *Session) Block(ctx context.Context, targetID int) error {
	if err := s.deps.Preferences.Block(ctx, s.userID, targetID); err != nil {
		return err
	}
	if s.OpenCounterparty() == targetID {
		s.CloseThread()
	}
	s.reaggregate(ctx)
	return nil
}

// Unblock lifts a block.
func (s *Session) Unblock(ctx context.Context, targetID int) error {
	if err := s.deps.Preferences.Unblock(ctx, s.userID, targetID); err != nil {
		return err
	}
	s.reaggregate(ctx)
	return nil
}

// Bookmark bookmarks the counterparty.
func (s *Session) Bookmark(ctx context.Context, targetID int) error {
	if err := s.deps.Preferences.Bookmark(ctx, s.userID, targetID); err != nil {
		return err
	}
	s.reaggregate(ctx)
	return nil
}

// Unbookmark removes a bookmark.
func (s *Session) Unbookmark(ctx context.Context, targetID int) error {
	if err := s.deps.Preferences.Unbookmark(ctx, s.userID, targetID); err != nil {
		return err
	}
	s.reaggregate(ctx)
	return nil
}

// liveAppend handles an event for the open thread: fetch the full record,
// append exactly once, mark read, let the pending debounce refresh counts.
func (s *Session) liveAppend(ctx context.Context, ev feed.MessageEvent) {
	s.mu.Lock()
	if _, dup := s.transcriptIDs[ev.MessageID]; dup {
		s.mu.Unlock()
		return
	}
	epoch := s.epoch
	s.mu.Unlock()

	msg, err := s.deps.Messages.Get(ctx, ev.MessageID)
	if err != nil {
		s.logger.Warn("live append: message fetch failed", "message_id", ev.MessageID, "err", err)
		return
	}
	entry := models.TranscriptEntry{Message: msg}
	if sender, err := s.deps.Profiles.Get(ctx, msg.SenderID); err == nil {
		entry.SenderUsername = sender.Username
	}

	s.mu.Lock()
	if s.epoch != epoch {
		// Thread switched or closed while fetching; drop the result.
		s.mu.Unlock()
		return
	}
	if _, dup := s.transcriptIDs[entry.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.transcript = append(s.transcript, entry)
	s.transcriptIDs[entry.ID] = struct{}{}
	s.openConvIDs[msg.ConversationID] = struct{}{}
	s.mu.Unlock()

	s.deps.Sink.TranscriptAppended(s.userID, entry)

	if msg.SenderID != s.userID {
		if err := s.deps.Messages.MarkRead(ctx, msg.ID); err != nil {
			s.logger.Warn("live append: mark read failed", "message_id", msg.ID, "err", err)
		}
	}
}

// debouncedRefresh runs after the realtime quiet window. It shares the rate
// limiter's last-executed bookkeeping with the explicit path.
func (s *Session) debouncedRefresh() {
	_, _ = s.runAggregation(context.Background())
	s.limiter.Record()
}

// runAggregation replaces the thread list wholesale. On failure the prior
// list is retained and never overwritten with a partial or empty result.
func (s *Session) runAggregation(ctx context.Context) ([]models.Thread, error) {
	list, err := s.deps.Aggregator.Aggregate(ctx, s.userID)
	if err != nil {
		s.logger.Warn("aggregation failed, keeping previous thread list", "err", err)
		return s.Threads(), err
	}

	s.mu.Lock()
	s.threadList = list
	s.mu.Unlock()

	s.deps.Sink.ThreadsUpdated(s.userID, list)
	return list, nil
}

// reaggregate recomputes derived thread state after an action toggle. Errors
// stay local: the prior list is kept and the next trigger retries.
func (s *Session) reaggregate(ctx context.Context) {
	_, _ = s.runAggregation(ctx)
}

func (s *Session) eachConversation(ctx context.Context, counterpartyID int, toggle func(context.Context, int, int) error) error {
	convs, err := s.conversationsWith(ctx, counterpartyID)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		return ErrThreadNotFound
	}
	for _, conv := range convs {
		if err := toggle(ctx, s.userID, conv.ID); err != nil {
			return err
		}
	}
	s.reaggregate(ctx)
	return nil
}

func (s *Session) conversationsWith(ctx context.Context, counterpartyID int) ([]models.Conversation, error) {
	convs, err := s.deps.Conversations.ListForUser(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	matched := convs[:0:0]
	for _, conv := range convs {
		if conv.Counterparty(s.userID) == counterpartyID {
			matched = append(matched, conv)
		}
	}
	return matched, nil
}

func (s *Session) usernames(ctx context.Context, ids []int) (map[int]string, error) {
	profiles, err := s.deps.Profiles.BulkProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.Username
	}
	return names, nil
}

func (s *Session) recentWindow() int {
	if s.deps.RecentWindow > 0 {
		return s.deps.RecentWindow
	}
	return threads.DefaultRecentWindow
}
