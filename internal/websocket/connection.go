// Package websocket wraps the socket transport: per-connection single-writer
// plumbing, the roster registry and the HTTP upgrade handler.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"examboard/pkg/protocol"
	"examboard/pkg/types"
)

const (
	writeBuffer   = 100
	writeDeadline = 5 * time.Second
)

// Connection implements interfaces.Connection. All writes are serialized
// through a single goroutine; role changes are the only mutable state.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu     sync.RWMutex
	device types.Device
}

// NewConnection wraps an upgraded socket and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, id string, device types.Device) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, writeBuffer),
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		device:  device,
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteEnvelope encodes and queues one event frame.
func (c *Connection) WriteEnvelope(event string, payload interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeDeadline):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// ID returns the server-assigned connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// Device returns the roster entry for this connection.
func (c *Connection) Device() types.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.device
}

// SetRole changes the connection's role, normally after token
// authentication.
func (c *Connection) SetRole(role string) error {
	if !types.IsValidRole(role) {
		return ErrInvalidRole
	}
	c.mu.Lock()
	c.device.Role = role
	c.mu.Unlock()
	return nil
}

// Close tears down the socket. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
