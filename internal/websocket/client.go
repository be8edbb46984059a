package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	feedBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client is one connected admin dashboard viewer. The hub fans events into
// the buffered feed channel; the client owns the underlying connection.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	feed chan []byte
}

// NewClient wraps an accepted connection for the given hub.
func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		feed: make(chan []byte, feedBufferSize),
	}
}

// Run serves the connection until it closes. The client receives broadcasts
// for exactly as long as Run is on the stack.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeFeed(ctx)
	c.drainReads(ctx)
}

// drainReads consumes inbound frames. The feed is one-way; reading only
// serves to notice the peer going away.
func (c *Client) drainReads(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writeFeed pushes buffered events to the dashboard, pinging between events
// to detect a dead peer.
func (c *Client) writeFeed(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.feed:
			if !ok {
				// Hub unregistered us.
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
