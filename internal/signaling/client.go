package signaling

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Backoff bounds for reconnect attempts.
const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// Client is a reconnecting WebSocket client for the signaling protocol. It
// is driven from a single goroutine via Run; incoming envelopes are
// delivered to onMessage as they arrive.
type Client struct {
	url       string
	onMessage func(Envelope)

	conn *websocket.Conn
}

// NewClient creates a Client targeting url (ws:// or wss://).
func NewClient(url string, onMessage func(Envelope)) *Client {
	return &Client{url: url, onMessage: onMessage}
}

// Run connects and reconnects until ctx is canceled, reading messages and
// dispatching them to onMessage. Each failed connection attempt backs off
// exponentially from minBackoff up to maxBackoff before retrying.
func (c *Client) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.Printf("[signaling] connect failed: %v, retrying in %s", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.conn = conn
		backoff = minBackoff
		c.readLoop(ctx, conn)
		conn.Close()
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[signaling] connection lost: %v", err)
			return
		}
		env, err := Decode(raw)
		if err != nil {
			log.Printf("[signaling] bad envelope: %v", err)
			continue
		}
		c.onMessage(env)
	}
}

// Send marshals and writes an envelope on the current connection.
func (c *Client) Send(msgType string, payload any) error {
	if c.conn == nil {
		return fmt.Errorf("signaling: not connected")
	}
	raw, err := Encode(msgType, payload)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}
