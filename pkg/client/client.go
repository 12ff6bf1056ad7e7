// Package client is the protocol client used by exam pages and consoles:
// one persistent socket session with automatic bounded reconnection, a
// single-handler-per-event dispatch table, a local state mirror, and the
// upload pipeline.
package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"examboard/pkg/protocol"
	"examboard/pkg/types"
)

// Lifecycle pseudo-events delivered to On handlers alongside the wire
// vocabulary. They carry no payload.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Connection phases. A session authenticates after the socket is up, so the
// phases track both the socket and the token.
const (
	PhaseUnauthenticated   = "unauthenticated"
	PhaseAuthPendingSocket = "authenticated_pending_socket"
	PhaseAuthenticatedLive = "authenticated_live"
	PhaseDisconnected      = "disconnected"
)

// HandlerFunc receives the raw data object of one decoded frame. Lifecycle
// pseudo-events invoke it with nil data.
type HandlerFunc func(data json.RawMessage)

// Options tune one client session. Zero values fall back to defaults.
type Options struct {
	// Role requested at upgrade time, student or dashboard. Admin cannot be
	// requested here; it is granted only through Authenticate.
	Role string
	// Name is the display name shown in the roster. Defaults to a generated
	// device name.
	Name string
	// RetryLimit bounds automatic reconnection attempts after a drop.
	RetryLimit int
	// RetryDelay is the fixed pause between reconnection attempts.
	RetryDelay time.Duration
	// ReceiptTimeout bounds how long an upload waits for its receipt before
	// it is surfaced as failed.
	ReceiptTimeout time.Duration
	// ProgressInterval is the pace of synthetic progress ticks.
	ProgressInterval time.Duration
	HandshakeTimeout time.Duration
	Logger           zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Role == "" {
		o.Role = types.RoleStudent
	}
	if o.Name == "" {
		o.Name = "Device-" + uuid.NewString()[:4]
	}
	if o.RetryLimit <= 0 {
		o.RetryLimit = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 6 * time.Second
	}
	if o.ReceiptTimeout <= 0 {
		o.ReceiptTimeout = 30 * time.Second
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 500 * time.Millisecond
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	return o
}

// Client is one Transport Session. All handlers run sequentially on the read
// goroutine; a handler that blocks stalls the session.
type Client struct {
	target string
	opts   Options
	log    zerolog.Logger
	state  *State

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	phase     string
	handlers  map[string]HandlerFunc

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan types.ReceiptPayload

	done chan struct{}
}

const writeTimeout = 5 * time.Second

// Dial opens a session to the server. The target is a host:port or a full
// ws:// URL; the socket endpoint path is appended when absent. The initial
// dial failing is returned as an error; drops after that surface through the
// disconnect handler and the automatic retry budget.
func Dial(target string, opts Options) (*Client, error) {
	c := &Client{
		target:   target,
		opts:     opts.withDefaults(),
		state:    NewState(),
		handlers: make(map[string]HandlerFunc),
		pending:  make(map[string]chan types.ReceiptPayload),
		done:     make(chan struct{}),
		phase:    PhaseUnauthenticated,
	}
	c.log = c.opts.Logger.With().Str("component", "client").Logger()

	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	go c.readLoop(conn)
	return c, nil
}

func (c *Client) dial() (*websocket.Conn, error) {
	endpoint := c.target
	if !strings.Contains(endpoint, "://") {
		endpoint = "ws://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	q := u.Query()
	q.Set("role", c.opts.Role)
	q.Set("name", c.opts.Name)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return conn, nil
}

// On registers the handler for an event name, replacing any previous one.
// Exactly one handler per event name exists at a time, so re-registration on
// page changes cannot stack duplicate updates. A nil handler unregisters.
func (c *Client) On(event string, handler HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if handler == nil {
		delete(c.handlers, event)
		return
	}
	c.handlers[event] = handler
}

// Emit sends one frame. Fails fast when the session is down rather than
// queueing.
func (c *Client) Emit(event string, payload interface{}) error {
	c.mu.RLock()
	conn, connected, closed := c.conn, c.connected, c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}
	if !connected || conn == nil {
		return ErrNotConnected
	}

	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Connected reports whether the socket is live right now.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Phase returns the session's reconciliation phase.
func (c *Client) Phase() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// State exposes the local mirror for view code.
func (c *Client) State() *State {
	return c.state
}

// Authenticate caches the token and, when the socket is live, binds the
// session to the admin identity and requests a fresh roster snapshot. The
// token is replayed automatically on every reconnect.
func (c *Client) Authenticate(token string) error {
	if token == "" {
		return ErrNoToken
	}
	c.state.SetToken(token)

	c.mu.Lock()
	if !c.connected {
		c.phase = PhaseAuthPendingSocket
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.bindIdentity()
}

// bindIdentity replays the cached token and refreshes the roster. The cached
// roster is never trusted across a reconnect; it stays stale until the next
// snapshot lands.
func (c *Client) bindIdentity() error {
	token := c.state.Token()
	if token == "" {
		return nil
	}
	if err := c.Emit(types.EventAuthenticateAdmin, types.AuthenticatePayload{Token: token}); err != nil {
		return err
	}
	c.mu.Lock()
	c.phase = PhaseAuthenticatedLive
	c.mu.Unlock()
	return c.Emit(types.EventGetInitialDevices, nil)
}

// RequestRoster asks the server for a fresh roster snapshot.
func (c *Client) RequestRoster() error {
	return c.Emit(types.EventGetInitialDevices, nil)
}

// TerminateSession asks the server to end an exam session. Requires an
// authenticated admin session server-side.
func (c *Client) TerminateSession(sessionID string) error {
	return c.Emit(types.EventTerminateSession, types.TerminateSessionPayload{SessionID: sessionID})
}

// Close tears the session down. No reconnection is attempted afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Redial re-opens a session after the retry budget was exhausted. This is the
// explicit user-triggered path; it does not run while the session is live.
func (c *Client) Redial() error {
	c.mu.RLock()
	closed, connected := c.closed, c.connected
	c.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}
	if connected {
		return nil
	}

	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.attachConn(conn)
	return nil
}

// attachConn installs a freshly dialed socket and runs reconciliation.
func (c *Client) attachConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.state.MarkRosterStale()
	go c.readLoop(conn)
	c.invoke(EventConnect, nil)
	if err := c.bindIdentity(); err != nil {
		c.log.Warn().Err(err).Msg("identity replay failed")
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn)
			return
		}
		c.dispatch(raw)
	}
}

// handleDrop runs when the read loop dies. Stale connections from a
// completed reconnect are ignored so a slow close cannot tear down its
// successor.
func (c *Client) handleDrop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.connected = false
	if c.phase == PhaseAuthenticatedLive {
		c.phase = PhaseDisconnected
	}
	c.mu.Unlock()
	conn.Close()

	c.invoke(EventDisconnect, nil)
	go c.reconnectLoop()
}

// reconnectLoop retries with a fixed delay until the budget runs out. An
// exhausted budget is terminal: the session drops to unauthenticated and the
// token is discarded, forcing an explicit login and Redial.
func (c *Client) reconnectLoop() {
	for attempt := 1; attempt <= c.opts.RetryLimit; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(c.opts.RetryDelay):
		}

		conn, err := c.dial()
		if err != nil {
			c.log.Debug().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}
		c.log.Info().Int("attempt", attempt).Msg("reconnected")
		c.attachConn(conn)
		return
	}

	c.log.Warn().Int("attempts", c.opts.RetryLimit).Msg("reconnect budget exhausted")
	c.state.SetToken("")
	c.mu.Lock()
	c.phase = PhaseUnauthenticated
	c.mu.Unlock()
}

// dispatch decodes one frame, applies it to local state and then invokes the
// registered handler. Malformed frames are dropped here so handler code never
// sees them.
func (c *Client) dispatch(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("dropping frame")
		return
	}

	switch env.Event {
	case types.EventUpdateConnectedDevices:
		var payload types.DeviceListPayload
		if err := env.Unmarshal(&payload); err != nil {
			c.log.Debug().Err(err).Msg("dropping roster snapshot")
			return
		}
		c.state.ApplyRosterSnapshot(payload.Devices)

	case types.EventUploadProgressAck:
		var payload types.ProgressPayload
		if err := env.Unmarshal(&payload); err != nil {
			return
		}
		c.state.ApplyProgress(payload.Filename, payload.Progress)

	case types.EventFileReceived:
		var payload types.ReceiptPayload
		if err := env.Unmarshal(&payload); err != nil {
			return
		}
		if !c.state.ApplyReceipt(payload) {
			return
		}
		c.resolveTransfer(payload)

	case types.EventAdminAuthenticationFailed:
		c.state.SetToken("")
		c.mu.Lock()
		c.phase = PhaseUnauthenticated
		c.mu.Unlock()
	}

	c.invoke(env.Event, env.Data)
}

func (c *Client) invoke(event string, data json.RawMessage) {
	c.mu.RLock()
	handler := c.handlers[event]
	c.mu.RUnlock()
	if handler != nil {
		handler(data)
	}
}
