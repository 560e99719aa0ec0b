package inmemory

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/syncroom/server/internal/repository/connection"
)

const sendBufferSize = 64

// client owns the only goroutine allowed to write to its websocket
// connection, so concurrent broadcasts never interleave writes. Messages
// enqueued through send are delivered in order; a full buffer drops the
// message rather than stall the sender.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func (c *client) writeLoop() {
	defer close(c.done)
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// reader side will observe the failure and disconnect
			for range c.send {
			}
			return
		}
	}
}

type repo struct {
	clients map[string]*client
	mu      sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		clients: make(map[string]*client),
	}
}

func (r *repo) Add(conn *websocket.Conn, connectionId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[connectionId]; ok {
		return connection.ErrAlreadyExists
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	r.clients[connectionId] = c
	go c.writeLoop()

	return nil
}

func (r *repo) Remove(connectionId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connectionId]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.clients, connectionId)
	close(c.send)
	// let the write loop flush whatever is already queued before the conn
	// goes away
	<-c.done
	c.conn.Close()

	return nil
}

// Send enqueues data for the connection. Delivery is fire-and-forget: when
// the connection's buffer is full the message is dropped, never blocking the
// caller.
func (r *repo) Send(connectionId string, data []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[connectionId]
	if !ok {
		return connection.ErrNotFound
	}

	// enqueue under the read lock so Remove cannot close the channel
	// mid-send; the buffered channel keeps this non-blocking
	select {
	case c.send <- data:
	default:
	}

	return nil
}
