package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Signal is one refetch signal from the tenant channel.
type Signal struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Entity returns the entity name of a "<entity>.changed" signal.
func (s Signal) Entity() string {
	return strings.TrimSuffix(s.Event, ".changed")
}

// ChangedID returns the id carried by a change signal, if any.
func (s Signal) ChangedID() (uuid.UUID, bool) {
	var body struct {
		ID uuid.UUID `json:"id"`
	}
	if len(s.Data) == 0 || json.Unmarshal(s.Data, &body) != nil || body.ID == uuid.Nil {
		return uuid.Nil, false
	}
	return body.ID, true
}

func (c *Client) wsURL(tenantID uuid.UUID) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := url.Values{}
	q.Set("tenant_id", tenantID.String())
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Watch streams the tenant's refetch signals to fn until ctx ends or the connection drops.
// Server pongs are swallowed.
func (c *Client) Watch(ctx context.Context, tenantID uuid.UUID, fn func(Signal)) error {
	target, err := c.wsURL(tenantID)
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: "websocket upgrade refused"}
		}
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(Signal{Event: "ping"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		var s Signal
		if err := json.Unmarshal(msg, &s); err != nil || s.Event == "" || s.Event == "pong" {
			continue
		}
		fn(s)
	}
}
