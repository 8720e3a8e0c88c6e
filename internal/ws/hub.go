// Package ws bridges realtime conversation events to websocket clients.
// Rooms are keyed by conversation key; the first client in a room opens a
// fan-out subscription and the last one out releases it.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"teamchat/internal/models"
	"teamchat/internal/observability"
	"teamchat/internal/realtime"
)

// Hub maintains active websocket rooms and their fan-out subscriptions.
type Hub struct {
	router *realtime.Router

	rooms    map[string]map[*websocket.Conn]bool
	connInfo map[string]map[*websocket.Conn]ConnInfo
	typing   map[string]map[int64]models.TypingUser
	handles  map[string]realtime.Handle
	mu       sync.RWMutex

	// Serializes writes: gorilla allows one concurrent writer per conn.
	writeMu sync.Mutex

	log *logrus.Entry
}

// NewHub creates an empty hub wired to the fan-out router.
func NewHub(router *realtime.Router) *Hub {
	return &Hub{
		router:   router,
		rooms:    make(map[string]map[*websocket.Conn]bool),
		connInfo: make(map[string]map[*websocket.Conn]ConnInfo),
		typing:   make(map[string]map[int64]models.TypingUser),
		handles:  make(map[string]realtime.Handle),
		log:      logrus.WithField("component", "ws"),
	}
}

// AddClient registers a websocket connection to a conversation room. The
// first client in a room subscribes the room to the event stream.
func (h *Hub) AddClient(key string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*websocket.Conn]bool)
		h.connInfo[key] = make(map[*websocket.Conn]ConnInfo)
		h.handles[key] = h.router.Subscribe(key, func(event models.Event) {
			h.BroadcastEvent(key, event)
		})
	}
	h.rooms[key][conn] = true
	h.connInfo[key][conn] = info
}

// RemoveClient removes a connection and drops its typing state. The last
// client out releases the room's subscription.
func (h *Hub) RemoveClient(key string, conn *websocket.Conn) {
	h.mu.Lock()

	info, hadInfo := h.connInfo[key][conn]
	wasTyping := false
	if hadInfo {
		if _, ok := h.typing[key][info.UserID]; ok {
			delete(h.typing[key], info.UserID)
			wasTyping = true
		}
	}

	if conns, ok := h.rooms[key]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, key)
			delete(h.connInfo, key)
			delete(h.typing, key)
			if handle, ok := h.handles[key]; ok {
				h.router.Unsubscribe(handle)
				delete(h.handles, key)
			}
			h.mu.Unlock()
			return
		}
	}
	if infos, ok := h.connInfo[key]; ok {
		delete(infos, conn)
	}
	h.mu.Unlock()

	if wasTyping {
		h.BroadcastTyping(key)
	}
}

// BroadcastEvent pushes one conversation event to every client in the room,
// pruning connections whose writes fail.
func (h *Hub) BroadcastEvent(key string, event models.Event) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[key]))
	for conn := range h.rooms[key] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	var failed []failedWrite
	h.writeMu.Lock()
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			failed = append(failed, failedWrite{conn: conn, err: err})
		}
	}
	h.writeMu.Unlock()

	h.pruneFailed(key, failed)
	observability.IncWSEvent(roomKind(key), event.Type)
}

// SetTyping records a client's typing state and pushes the updated list to
// the room.
func (h *Hub) SetTyping(key string, user models.TypingUser, typing bool) {
	h.mu.Lock()
	if typing {
		if _, ok := h.typing[key]; !ok {
			h.typing[key] = make(map[int64]models.TypingUser)
		}
		h.typing[key][user.UserID] = user
	} else {
		delete(h.typing[key], user.UserID)
	}
	h.mu.Unlock()

	h.BroadcastTyping(key)
}

// BroadcastTyping pushes the currently-typing list to every client, with
// each receiver excluded from its own list.
func (h *Hub) BroadcastTyping(key string) {
	h.mu.RLock()
	conns := make(map[*websocket.Conn]ConnInfo, len(h.rooms[key]))
	for conn := range h.rooms[key] {
		conns[conn] = h.connInfo[key][conn]
	}
	typing := make([]models.TypingUser, 0, len(h.typing[key]))
	for _, user := range h.typing[key] {
		typing = append(typing, user)
	}
	h.mu.RUnlock()

	var failed []failedWrite
	h.writeMu.Lock()
	for conn, info := range conns {
		visible := make([]models.TypingUser, 0, len(typing))
		for _, user := range typing {
			if user.UserID != info.UserID {
				visible = append(visible, user)
			}
		}
		payload, _ := json.Marshal(models.TypingEvent{Type: "typing", Typing: visible})
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			failed = append(failed, failedWrite{conn: conn, err: err})
		}
	}
	h.writeMu.Unlock()

	h.pruneFailed(key, failed)
}

type failedWrite struct {
	conn *websocket.Conn
	err  error
}

// pruneFailed drops connections whose writes failed. Runs outside writeMu:
// removal can trigger a follow-up typing broadcast.
func (h *Hub) pruneFailed(key string, failed []failedWrite) {
	for _, f := range failed {
		h.log.WithError(f.err).Warn("websocket write error")
		f.conn.Close()
		h.publishWSError(key, f.conn, f.err)
		h.RemoveClient(key, f.conn)
	}
}

// TypingUsers returns the current typing list for a room, excluding the
// given viewer.
func (h *Hub) TypingUsers(key string, viewerID int64) []models.TypingUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	visible := make([]models.TypingUser, 0, len(h.typing[key]))
	for _, user := range h.typing[key] {
		if user.UserID != viewerID {
			visible = append(visible, user)
		}
	}
	return visible
}

func (h *Hub) publishWSError(key string, conn *websocket.Conn, err error) {
	h.mu.RLock()
	info, ok := h.connInfo[key][conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	kind := roomKind(key)
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":         kind,
			"conversation": key,
			"event":        "ws_error",
			"conn_id":      info.ConnID,
			"duration_ms":  time.Since(info.ConnectedAt).Milliseconds(),
			"reason":       err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent(kind, "ws_error")
}
