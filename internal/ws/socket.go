package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"teamchat/internal/models"
	"teamchat/internal/observability"
	"teamchat/internal/repositories"
)

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int64, error)
}

// UserDirectory resolves usernames for typing presence.
type UserDirectory interface {
	UsernamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error)
}

// SocketHandler upgrades conversation websocket connections.
type SocketHandler struct {
	hub      *Hub
	channels repositories.ChannelRepository
	dms      repositories.DMRepository
	users    UserDirectory
	auth     TokenValidator
}

// NewSocketHandler constructs a SocketHandler.
func NewSocketHandler(hub *Hub, channels repositories.ChannelRepository, dms repositories.DMRepository, users UserDirectory, auth TokenValidator) *SocketHandler {
	return &SocketHandler{hub: hub, channels: channels, dms: dms, users: users, auth: auth}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// typingFrame is the only client-to-server frame the socket accepts.
type typingFrame struct {
	Type   string `json:"type"`
	Typing bool   `json:"typing"`
}

// HandleChannel upgrades a channel websocket connection.
func (h *SocketHandler) HandleChannel(c *gin.Context) {
	channelID, err := strconv.ParseInt(c.Param("channel_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	h.handle(c, models.ChannelKey(channelID), func(ctx context.Context, userID int64) (bool, error) {
		return h.channels.IsMember(ctx, channelID, userID)
	})
}

// HandleDM upgrades a direct-message websocket connection.
func (h *SocketHandler) HandleDM(c *gin.Context) {
	dmID, err := strconv.ParseInt(c.Param("dm_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dm id"})
		return
	}

	h.handle(c, models.DMKey(dmID), func(ctx context.Context, userID int64) (bool, error) {
		return h.dms.IsParticipant(ctx, dmID, userID)
	})
}

func (h *SocketHandler) handle(c *gin.Context, key string, authorized func(context.Context, int64) (bool, error)) {
	ctx, span := otel.Tracer("teamchat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := authorized(ctx, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for conversation"})
		return
	}

	names, err := h.users.UsernamesByIDs(ctx, []int64{userID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	kind := roomKind(key)
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		Username:    names[userID],
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(key, conn, info)

	observability.IncWSActive(kind)
	observability.IncWSEvent(kind, "ws_connect")
	h.publishLifecycleEvent(ctx, key, info, "ws_connect", "")

	go h.readLoop(key, conn, info)
}

// readLoop drains client frames until the connection dies. Typing frames
// update room presence; everything else is ignored.
func (h *SocketHandler) readLoop(key string, conn *websocket.Conn, info ConnInfo) {
	kind := roomKind(key)
	ctx := context.Background()

	var closeReason string
	defer func() {
		h.hub.RemoveClient(key, conn)
		observability.DecWSActive(kind)
		observability.IncWSEvent(kind, "ws_disconnect")
		h.publishLifecycleEvent(ctx, key, info, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(kind, "ws_error")
				h.publishLifecycleEvent(ctx, key, info, "ws_error", closeReason)
			}
			return
		}

		var frame typingFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "typing" {
			continue
		}
		h.hub.SetTyping(key, models.TypingUser{UserID: info.UserID, Username: info.Username}, frame.Typing)
	}
}

func (h *SocketHandler) publishLifecycleEvent(ctx context.Context, key string, info ConnInfo, event, reason string) {
	kind := roomKind(key)
	durationMS := int64(0)
	if event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}

	_ = observability.PublishEvent(ctx, wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":         kind,
				"conversation": key,
				"event":        event,
				"conn_id":      info.ConnID,
				"duration_ms":  durationMS,
				"reason":       reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func (h *SocketHandler) validateToken(ctx context.Context, header string) (int64, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.auth.ValidateToken(ctx, parts[1])
	}
	return 0, fmt.Errorf("invalid token")
}
