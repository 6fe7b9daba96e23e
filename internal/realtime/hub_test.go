package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memBus is an in-process stand-in for Redis pub/sub.
type memBus struct {
	mu       sync.Mutex
	handlers map[uuid.UUID][]func(string, []byte)
	failPub  bool
}

func newMemBus() *memBus {
	return &memBus{handlers: map[uuid.UUID][]func(string, []byte){}}
}

func (b *memBus) PublishTenantEvent(_ context.Context, tenantID uuid.UUID, event string, payload []byte) error {
	if b.failPub {
		return errors.New("redis down")
	}
	b.mu.Lock()
	hs := append([]func(string, []byte){}, b.handlers[tenantID]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(event, payload)
	}
	return nil
}

func (b *memBus) SubscribeTenant(tenantID uuid.UUID, handler func(string, []byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[tenantID] = append(b.handlers[tenantID], handler)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, tenantID)
	}, nil
}

type members map[uuid.UUID]uuid.UUID // user -> tenant

func (m members) Role(_ context.Context, tenantID, userID uuid.UUID) (models.TenantRole, error) {
	if m[userID] != tenantID {
		return "", models.ErrNotFound
	}
	return models.TenantRoleMember, nil
}

func newServer(t *testing.T, hub *Hub, m members) *httptest.Server {
	t.Helper()
	r := gin.New()
	validate := func(token string) (uuid.UUID, error) { return uuid.Parse(token) }
	r.GET("/ws", ServeWs(hub, zap.NewNop(), validate, m))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, tenantID, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?tenant_id=" + tenantID.String() + "&token=" + userID.String()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestPublishChange_ReachesOnlyTenantClients(t *testing.T) {
	bus := newMemBus()
	hub := NewHub(zap.NewNop(), bus, bus)
	tenantA, tenantB := uuid.New(), uuid.New()
	alice, bob := uuid.New(), uuid.New()
	srv := newServer(t, hub, members{alice: tenantA, bob: tenantB})

	connA := dial(t, srv, tenantA, alice)
	connB := dial(t, srv, tenantB, bob)
	require.Eventually(t, func() bool {
		return hub.ClientCount(tenantA) == 1 && hub.ClientCount(tenantB) == 1
	}, 2*time.Second, 10*time.Millisecond)

	id := uuid.New()
	hub.PublishChange(context.Background(), tenantA, EntityService, id)

	msg := readMessage(t, connA)
	require.Equal(t, "service.changed", msg.Event)
	var change Change
	require.NoError(t, json.Unmarshal(msg.Data, &change))
	require.Equal(t, id, change.ID)

	_ = connB.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var none WSMessage
	require.Error(t, connB.ReadJSON(&none))
}

func TestPublishChange_FallsBackToLocalBroadcast(t *testing.T) {
	bus := newMemBus()
	bus.failPub = true
	hub := NewHub(zap.NewNop(), bus, bus)
	tenantID, user := uuid.New(), uuid.New()
	srv := newServer(t, hub, members{user: tenantID})

	conn := dial(t, srv, tenantID, user)
	require.Eventually(t, func() bool { return hub.ClientCount(tenantID) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.PublishChange(context.Background(), tenantID, EntityEvent, uuid.New())
	require.Equal(t, "event.changed", readMessage(t, conn).Event)
}

func TestServeWs_RejectsNonMembers(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	tenantID := uuid.New()
	srv := newServer(t, hub, members{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?tenant_id=" + tenantID.String() + "&token=" + uuid.NewString()
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?tenant_id=" + tenantID.String() + "&token=garbage"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnregister_CancelsSubscription(t *testing.T) {
	bus := newMemBus()
	hub := NewHub(zap.NewNop(), bus, bus)
	tenantID, user := uuid.New(), uuid.New()
	srv := newServer(t, hub, members{user: tenantID})

	conn := dial(t, srv, tenantID, user)
	require.Eventually(t, func() bool { return hub.ClientCount(tenantID) == 1 }, 2*time.Second, 10*time.Millisecond)
	_ = conn.Close()
	require.Eventually(t, func() bool {
		if hub.ClientCount(tenantID) != 0 {
			return false
		}
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.handlers[tenantID]) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPing(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	tenantID, user := uuid.New(), uuid.New()
	srv := newServer(t, hub, members{user: tenantID})
	conn := dial(t, srv, tenantID, user)
	require.NoError(t, conn.WriteJSON(WSMessage{Event: "ping"}))
	require.Equal(t, "pong", readMessage(t, conn).Event)
}
