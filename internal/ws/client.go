package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/versecast/backend/internal/session"
)

// client wraps one WebSocket connection. Writes funnel through a buffered
// channel drained by writePump so broadcasts never block on a slow socket.
type client struct {
	conn *websocket.Conn
	role session.Role

	// mu guards closed and the send channel's lifetime. A broadcast can
	// snapshot this client just before its disconnect teardown runs, so
	// Send must stay safe against a concurrent close.
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(conn *websocket.Conn, role session.Role) *client {
	c := &client{
		conn: conn,
		role: role,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) Role() session.Role { return c.role }

// Send implements session.Client. A saturated buffer means the client has
// fallen 64 frames behind; the frame is dropped and Send reports it. Sends
// racing the disconnect teardown are dropped the same way.
func (c *client) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// close shuts the send channel down exactly once; both the read-loop exit
// and error paths may race here.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
