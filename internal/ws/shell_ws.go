package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"market-chat/internal/feed"
	"market-chat/internal/middleware"
	"market-chat/internal/observability"
	"market-chat/internal/session"
)

// ShellWSHandler upgrades presentation-shell connections and feeds their
// commands (visibility changes) back into the user's session.
type ShellWSHandler struct {
	hub       *Hub
	manager   *session.Manager
	jwtSecret string
	publisher feed.Publisher
}

// NewShellWSHandler constructs a ShellWSHandler.
func NewShellWSHandler(hub *Hub, manager *session.Manager, jwtSecret string, publisher feed.Publisher) *ShellWSHandler {
	return &ShellWSHandler{hub: hub, manager: manager, jwtSecret: jwtSecret, publisher: publisher}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// shellCommand is what the shell sends upstream over the socket.
type shellCommand struct {
	Type   string `json:"type"`
	Hidden bool   `json:"hidden"`
}

// Handle upgrades the connection and registers the client.
func (h *ShellWSHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("market-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := middleware.UserIDFromBearer(h.jwtSecret, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(userID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(ctx, "ws_connect", info, "")

	userSession := h.manager.Get(userID)

	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveClient(userID, conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			h.publishLifecycle(ctx, "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
				}
				return
			}
			var cmd shellCommand
			if err := json.Unmarshal(raw, &cmd); err != nil {
				continue
			}
			if cmd.Type == "visibility" {
				userSession.SetViewportHidden(cmd.Hidden)
			}
		}
	}()
}

func (h *ShellWSHandler) publishLifecycle(ctx context.Context, event string, info ConnInfo, reason string) {
	if h.publisher == nil {
		return
	}
	_ = h.publisher.Publish(ctx, "ws_events.shell", map[string]any{
		"event":       event,
		"conn_id":     info.ConnID,
		"user_id":     info.UserID,
		"device_id":   info.DeviceID,
		"ip":          info.IP,
		"request_id":  info.RequestID,
		"trace_id":    info.TraceID,
		"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
		"reason":      reason,
	})
}
