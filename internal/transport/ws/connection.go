package ws

import (
	"sync"
	"therapyroom/internal/room"
)

const sendBufferSize = 256

// Connection is the outbound side of one WebSocket. The coordinator writes
// into Send; the write pump drains it onto the socket.
type Connection struct {
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newConnection(buffer int) *Connection {
	return &Connection{send: make(chan []byte, buffer)}
}

// Send queues data without blocking.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return room.ErrPeerClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		// Drop message if buffer full
		return room.ErrPeerBacklogged
	}
}

// Close stops the write pump. It is safe to call more than once.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
