package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"im-message-service/internal/observability"
)

// Hub tracks connected device sessions keyed by user, plus group rooms for
// fan-out to group conversations. One user may hold several connections.
type Hub struct {
	mu         sync.RWMutex
	conns      map[*websocket.Conn]ConnInfo
	byUser     map[int64]map[*websocket.Conn]struct{}
	byGroup    map[int64]map[*websocket.Conn]struct{}
	connGroups map[*websocket.Conn][]int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[*websocket.Conn]ConnInfo),
		byUser:     make(map[int64]map[*websocket.Conn]struct{}),
		byGroup:    make(map[int64]map[*websocket.Conn]struct{}),
		connGroups: make(map[*websocket.Conn][]int64),
	}
}

// AddClient registers a device session and joins it to its group rooms.
func (h *Hub) AddClient(conn *websocket.Conn, info ConnInfo, groupIDs []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = info
	if _, ok := h.byUser[info.UserID]; !ok {
		h.byUser[info.UserID] = make(map[*websocket.Conn]struct{})
	}
	h.byUser[info.UserID][conn] = struct{}{}
	for _, gid := range groupIDs {
		if _, ok := h.byGroup[gid]; !ok {
			h.byGroup[gid] = make(map[*websocket.Conn]struct{})
		}
		h.byGroup[gid][conn] = struct{}{}
	}
	h.connGroups[conn] = groupIDs
}

// RemoveClient drops a device session from all rooms.
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	info, ok := h.conns[conn]
	if !ok {
		return
	}
	delete(h.conns, conn)
	if conns, ok := h.byUser[info.UserID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.byUser, info.UserID)
		}
	}
	for _, gid := range h.connGroups[conn] {
		if conns, ok := h.byGroup[gid]; ok {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(h.byGroup, gid)
			}
		}
	}
	delete(h.connGroups, conn)
}

type wsEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// PushToUser delivers an event to every device session of one user.
func (h *Hub) PushToUser(userID int64, event string, payload any) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.byUser[userID]))
	for conn := range h.byUser[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()
	h.write(conns, event, payload)
}

// PushToGroup delivers an event to every session joined to the group room.
func (h *Hub) PushToGroup(groupID int64, event string, payload any) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.byGroup[groupID]))
	for conn := range h.byGroup[groupID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()
	h.write(conns, event, payload)
}

func (h *Hub) write(conns []*websocket.Conn, event string, payload any) {
	body, err := json.Marshal(wsEvent{Event: event, Payload: payload})
	if err != nil {
		logrus.Warnf("websocket marshal error: %v", err)
		return
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			logrus.Warnf("websocket write error: %v", err)
			conn.Close()
			h.RemoveClient(conn)
			observability.IncWSEvent("ws_error")
		}
	}
}
