package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"market-chat/internal/models"
	"market-chat/internal/notify"
	"market-chat/internal/observability"
)

// Hub maintains the active shell connections of each user and pushes engine
// events (thread lists, transcript appends, alerts) to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[int]map[*websocket.Conn]ConnInfo
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[int]map[*websocket.Conn]ConnInfo),
		logger:  logger,
	}
}

// AddClient registers a shell connection for a user.
func (h *Hub) AddClient(userID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.clients[userID][conn] = info
}

// RemoveClient removes a shell connection.
func (h *Hub) RemoveClient(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
}

// Broadcast sends an event to every shell connection of the user.
func (h *Hub) Broadcast(userID int, event models.ShellEvent) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[userID]))
	for conn := range h.clients[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("websocket write error", "user_id", userID, "err", err)
			conn.Close()
			h.RemoveClient(userID, conn)
			observability.IncWSEvent("ws_error")
		}
	}
}

// ThreadsUpdated pushes a fresh thread list to the user's shells.
func (h *Hub) ThreadsUpdated(userID int, threads []models.Thread) {
	h.Broadcast(userID, models.ShellEvent{Type: models.EventThreads, Threads: threads})
}

// TranscriptAppended pushes a live transcript entry to the user's shells.
func (h *Hub) TranscriptAppended(userID int, entry models.TranscriptEntry) {
	h.Broadcast(userID, models.ShellEvent{Type: models.EventMessage, Entry: &entry})
}

// AlerterFor returns a notify.Alerter that renders alerts through the user's
// shell connections.
func (h *Hub) AlerterFor(userID int) notify.Alerter {
	return &shellAlerter{hub: h, userID: userID}
}

type shellAlerter struct {
	hub    *Hub
	userID int
}

func (a *shellAlerter) ShowToast(toast models.Toast) {
	a.hub.Broadcast(a.userID, models.ShellEvent{Type: models.EventToast, Toast: &toast})
}

func (a *shellAlerter) DismissToast() {
	a.hub.Broadcast(a.userID, models.ShellEvent{Type: models.EventToastDismissed})
}

func (a *shellAlerter) DesktopNotify(title, body string) {
	a.hub.Broadcast(a.userID, models.ShellEvent{Type: models.EventDesktop, Title: title, Body: body})
}

func (a *shellAlerter) PlaySound() {
	a.hub.Broadcast(a.userID, models.ShellEvent{Type: models.EventSound})
}

func (a *shellAlerter) SetTitleFlag() {
	a.hub.Broadcast(a.userID, models.ShellEvent{Type: models.EventTitleFlag})
}

func (a *shellAlerter) ClearTitleFlag() {
	a.hub.Broadcast(a.userID, models.ShellEvent{Type: models.EventTitleClear})
}
