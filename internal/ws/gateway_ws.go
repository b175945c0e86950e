package ws

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"im-message-service/internal/observability"
)

// TokenVerifier validates a bearer token and returns the user id.
type TokenVerifier func(token string) (int64, error)

// GatewayHandler upgrades client connections into device sessions on the hub.
type GatewayHandler struct {
	hub    *Hub
	verify TokenVerifier
}

// NewGatewayHandler constructs a GatewayHandler.
func NewGatewayHandler(hub *Hub, verify TokenVerifier) *GatewayHandler {
	return &GatewayHandler{hub: hub, verify: verify}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the device session. Group room
// membership is declared via the groups query parameter; roster enforcement
// belongs to the group service that issued the client its talk list.
func (h *GatewayHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("im-message-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}
	userID, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	groupIDs := parseGroupIDs(c.Query("groups"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	deviceID, requestID, ip := handshakeInfo(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    deviceID,
		IP:          ip,
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(conn, info, groupIDs)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")

	go func() {
		defer func() {
			h.hub.RemoveClient(conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
					logrus.Debugf("ws read error conn_id=%s: %v", info.ConnID, err)
				}
				return
			}
		}
	}()
}

func (h *GatewayHandler) validateToken(header string) (int64, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return 0, errInvalidToken
	}
	return h.verify(parts[1])
}

var errInvalidToken = errors.New("invalid token")

func parseGroupIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
