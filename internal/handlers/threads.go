package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"market-chat/internal/repositories"
	"market-chat/internal/session"
	"market-chat/internal/telemetry"
)

// ThreadHandler exposes the chat engine to the presentation shell.
type ThreadHandler struct {
	manager *session.Manager
	audit   *telemetry.AuditEmitter
}

// NewThreadHandler builds a ThreadHandler.
func NewThreadHandler(manager *session.Manager, audit *telemetry.AuditEmitter) *ThreadHandler {
	return &ThreadHandler{manager: manager, audit: audit}
}

// ListThreads returns the aggregated thread list, refreshing it first when
// the rate limiter allows. Aggregation failures keep the retained list; the
// shell never sees an error for a transient fetch failure.
func (h *ThreadHandler) ListThreads(c *gin.Context) {
	s := h.manager.Get(c.GetInt("userID"))
	threads, _ := s.Refresh(c.Request.Context())
	if threads == nil {
		threads = s.Threads()
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// RefreshThreads is the explicit refresh path behind the cooldown window.
func (h *ThreadHandler) RefreshThreads(c *gin.Context) {
	s := h.manager.Get(c.GetInt("userID"))
	threads, _ := s.Refresh(c.Request.Context())
	if threads == nil {
		threads = s.Threads()
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// OpenThread opens the thread with a counterparty and returns its transcript.
func (h *ThreadHandler) OpenThread(c *gin.Context) {
	counterpartyID, ok := counterpartyParam(c)
	if !ok {
		return
	}

	s := h.manager.Get(c.GetInt("userID"))
	transcript, err := s.OpenThread(c.Request.Context(), counterpartyID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrThreadNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to open thread"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcript": transcript})
}

// CloseThread closes the open thread.
func (h *ThreadHandler) CloseThread(c *gin.Context) {
	h.manager.Get(c.GetInt("userID")).CloseThread()
	c.Status(http.StatusNoContent)
}

// StartConversation creates or returns the conversation for a listing.
func (h *ThreadHandler) StartConversation(c *gin.Context) {
	var req struct {
		ListingID int `json:"listing_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	s := h.manager.Get(userID)
	conv, err := s.StartConversation(c.Request.Context(), req.ListingID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrListingNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not start conversation"})
		return
	}

	h.emitAudit(c, "conversation_started")
	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
}

// PostMessage stores a message. On failure the body is echoed back so the
// shell can restore the input field.
func (h *ThreadHandler) PostMessage(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := h.manager.Get(c.GetInt("userID"))
	entry, err := s.Send(c.Request.Context(), conversationID, req.Body)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, repositories.ErrConversationNotFound):
			status = http.StatusNotFound
		case errors.Is(err, session.ErrNotParticipant):
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": "failed to send message", "body": req.Body})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// ArchiveThread archives every conversation of the counterparty's thread.
func (h *ThreadHandler) ArchiveThread(c *gin.Context) {
	h.threadAction(c, "thread_archived", (*session.Session).Archive)
}

// UnarchiveThread reverses ArchiveThread.
func (h *ThreadHandler) UnarchiveThread(c *gin.Context) {
	h.threadAction(c, "thread_unarchived", (*session.Session).Unarchive)
}

// BlockCounterparty blocks a user; their thread disappears entirely.
func (h *ThreadHandler) BlockCounterparty(c *gin.Context) {
	h.threadAction(c, "counterparty_blocked", (*session.Session).Block)
}

// UnblockCounterparty lifts a block.
func (h *ThreadHandler) UnblockCounterparty(c *gin.Context) {
	h.threadAction(c, "counterparty_unblocked", (*session.Session).Unblock)
}

// BookmarkCounterparty bookmarks a user.
func (h *ThreadHandler) BookmarkCounterparty(c *gin.Context) {
	h.threadAction(c, "counterparty_bookmarked", (*session.Session).Bookmark)
}

// UnbookmarkCounterparty removes a bookmark.
func (h *ThreadHandler) UnbookmarkCounterparty(c *gin.Context) {
	h.threadAction(c, "counterparty_unbookmarked", (*session.Session).Unbookmark)
}

// SetMute toggles the client-local mute flag.
func (h *ThreadHandler) SetMute(c *gin.Context) {
	var req struct {
		Muted *bool `json:"muted" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := h.manager.Get(c.GetInt("userID"))
	if err := s.SetMuted(*req.Muted); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save preference"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ThreadHandler) threadAction(c *gin.Context, auditEvent string, action func(*session.Session, context.Context, int) error) {
	counterpartyID, ok := counterpartyParam(c)
	if !ok {
		return
	}

	s := h.manager.Get(c.GetInt("userID"))
	if err := action(s, c.Request.Context(), counterpartyID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrThreadNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "action failed"})
		return
	}

	h.emitAudit(c, auditEvent)
	c.Status(http.StatusNoContent)
}

func (h *ThreadHandler) emitAudit(c *gin.Context, text string) {
	h.audit.Emit(c.Request.Context(), "INFO", text, requestIDFromContext(c), userIDFromContext(c))
}

func counterpartyParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("counterparty_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid counterparty id"})
		return 0, false
	}
	return id, true
}
