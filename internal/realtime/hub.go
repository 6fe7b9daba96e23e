package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// ChangeSuffix is appended to the entity name to form the websocket event.
const ChangeSuffix = ".changed"

// Change is the payload of a "<entity>.changed" event.
type Change struct {
	ID uuid.UUID `json:"id"`
}

// Hub maintains tenant_id -> set of connections and broadcasts refetch signals.
// Uses Redis pub/sub for horizontal scaling.
type Hub struct {
	// tenantID -> map[clientID]*Client
	tenants  map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per tenant
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher publishes to Redis for cross-instance broadcast.
type RedisPublisher interface {
	PublishTenantEvent(ctx context.Context, tenantID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to tenant channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeTenant(tenantID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Both Redis sides may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		tenants:  make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to its tenant room. Starts the Redis subscription for the tenant on the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.tenants[c.TenantID] == nil {
		h.tenants[c.TenantID] = make(map[string]*Client)
		if h.redisSub != nil {
			tenantID := c.TenantID
			cancel, err := h.redisSub.SubscribeTenant(tenantID, func(event string, payload []byte) {
				h.BroadcastToTenant(tenantID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[tenantID] = cancel
			} else {
				h.logger.Warn("redis subscribe failed", zap.Error(err), zap.String("tenant_id", tenantID.String()))
			}
		}
	}
	h.tenants[c.TenantID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined tenant", zap.String("client_id", c.ID), zap.String("tenant_id", c.TenantID.String()))
}

// Unregister removes a client. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.tenants[c.TenantID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.tenants, c.TenantID)
			if cancel, ok := h.subs[c.TenantID]; ok {
				cancel()
				delete(h.subs, c.TenantID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left tenant", zap.String("client_id", c.ID), zap.String("tenant_id", c.TenantID.String()))
}

// BroadcastToTenant sends a message to all local clients of a tenant.
func (h *Hub) BroadcastToTenant(tenantID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.tenants[tenantID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// PublishChange implements Publisher. With Redis configured the message is only published; the
// subscription callback delivers it to local clients once. Without Redis, or when publishing fails,
// it is broadcast locally.
func (h *Hub) PublishChange(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) {
	event := entity + ChangeSuffix
	data, err := json.Marshal(Change{ID: id})
	if err != nil {
		return
	}
	if h.redis != nil {
		err := h.redis.PublishTenantEvent(ctx, tenantID, event, data)
		if err == nil {
			return
		}
		h.logger.Warn("redis publish failed", zap.Error(err), zap.String("event", event))
	}
	h.BroadcastToTenant(tenantID, event, json.RawMessage(data))
}

// ClientCount returns the number of connected clients for a tenant.
func (h *Hub) ClientCount(tenantID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}
