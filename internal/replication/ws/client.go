package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/suit-up-repos/questd/internal/mirror"
)

// Client is the viewer side of the replication channel.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial connects a participant's viewer to the replication endpoint.
// endpoint is the ws:// or wss:// URL of the /ws handler.
func Dial(ctx context.Context, endpoint, participantID string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("participant", participantID)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.String(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return &Client{conn: conn}, nil
}

// SendClientLoaded requests the full snapshot and marks this viewer
// event-eligible on the authority. Returns the request id echoed in the
// snapshot response.
func (c *Client) SendClientLoaded() (string, error) {
	requestID := uuid.NewString()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(ClientMessage{Type: MessageClientLoaded, RequestID: requestID}); err != nil {
		return "", fmt.Errorf("write client loaded: %w", err)
	}
	return requestID, nil
}

// Read blocks for the next server message.
func (c *Client) Read() (ServerMessage, error) {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return ServerMessage{}, err
	}
	var msg ServerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ServerMessage{}, fmt.Errorf("unmarshal server message: %w", err)
	}
	return msg, nil
}

// Run pulls the initial snapshot and then folds the event stream into the
// mirror until the connection closes or the context is cancelled.
func (c *Client) Run(ctx context.Context, m *mirror.Mirror) error {
	if _, err := c.SendClientLoaded(); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := c.Read()
		if err != nil {
			return err
		}
		switch msg.Type {
		case MessageSnapshot:
			m.LoadSnapshot(FromPayloads(msg.Quests))
		case MessageEvent:
			if msg.Event == nil {
				continue
			}
			if err := m.Apply(ctx, *msg.Event); err != nil {
				return err
			}
		}
	}
}

// Close shuts the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}
