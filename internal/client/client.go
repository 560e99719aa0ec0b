// Package client provides the room connection a host or viewer program holds:
// a websocket dial, typed send helpers, and a dispatch loop routing inbound
// server messages to registered handlers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/syncroom/server/internal/protocol"
)

var ErrNotConnected = errors.New("not connected")

type HandlerFunc func(ctx context.Context, payload json.RawMessage)

type Client struct {
	url    string
	logger *slog.Logger

	conn *websocket.Conn
	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	done       chan struct{}
	closeErr   error
	localClose atomic.Bool
	once       sync.Once
}

func New(url string, logger *slog.Logger) *Client {
	return &Client{
		url:      url,
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		done:     make(chan struct{}),
	}
}

// On registers a handler for a server message type. Registration after
// Connect races with dispatch; register everything first.
func (c *Client) On(messageType string, handler HandlerFunc) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[messageType] = handler
}

// Connect dials the server and starts the read loop. It returns once the
// connection is established; Done reports when it ends.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	c.conn = conn

	go c.readLoop(ctx)

	return nil
}

// Done is closed when the read loop exits, whether by Close or a read error.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended. Valid after Done is closed; nil
// means a local Close.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.closeErr
	default:
		return nil
	}
}

// Close is safe whether or not Connect ever succeeded.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.localClose.Store(true)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Send marshals payload into a typed frame and writes it.
func (c *Client) Send(messageType string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	if err := c.conn.WriteJSON(protocol.Output{Type: messageType, Payload: payload}); err != nil {
		return fmt.Errorf("failed to send %q: %w", messageType, err)
	}

	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)

	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !c.localClose.Load() {
				c.closeErr = err
			}
			c.once.Do(func() {
				c.conn.Close()
			})
			return
		}

		c.handlersMu.RLock()
		handler, exists := c.handlers[msg.Type]
		c.handlersMu.RUnlock()
		if !exists {
			c.logger.DebugContext(ctx, "unhandled message", "type", msg.Type)
			continue
		}

		handler(ctx, msg.Payload)
	}
}
