package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the query token authorizes the connection
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TokenValidator resolves an access token to a user.
type TokenValidator func(token string) (uuid.UUID, error)

// MemberLookup reports the caller's role in a tenant; models.ErrNotFound means not a member.
type MemberLookup interface {
	Role(ctx context.Context, tenantID, userID uuid.UUID) (models.TenantRole, error)
}

// Client represents a single WebSocket connection subscribed to a tenant.
type Client struct {
	ID       string
	TenantID uuid.UUID
	UserID   uuid.UUID
	hub      *Hub
	conn     *websocket.Conn
	send     chan WSMessage
	done     chan struct{}
	logger   *zap.Logger
}

// ServeWs handles GET /ws?tenant_id=&token=: upgrades members of the tenant and streams change events.
func ServeWs(hub *Hub, logger *zap.Logger, validate TokenValidator, members MemberLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantIDStr := c.Query("tenant_id")
		token := c.Query("token")
		if tenantIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and token required"})
			return
		}
		tenantID, err := uuid.Parse(tenantIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant_id"})
			return
		}
		userID, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if _, err := members.Role(c.Request.Context(), tenantID, userID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this tenant"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve tenant role"})
			}
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			TenantID: tenantID,
			UserID:   userID,
			hub:      hub,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			done:     make(chan struct{}),
			logger:   logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// readPump only keeps the connection alive; clients never send anything the server acts on
// except "ping", answered with "pong".
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		if msg.Event == "ping" {
			select {
			case c.send <- WSMessage{Event: "pong"}:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
