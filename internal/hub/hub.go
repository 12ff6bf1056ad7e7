// Package hub routes socket events between connected clients and the storage
// components. A single goroutine owns all routing decisions.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"examboard/internal/websocket"
	"examboard/pkg/interfaces"
	"examboard/pkg/protocol"
	"examboard/pkg/types"
)

const (
	eventBuffer     = 1000
	lifecycleBuffer = 100

	// Progress reports tick twice a second per transfer; the budget leaves
	// room for several concurrent transfers from one client.
	progressLimit  = 300
	progressWindow = time.Minute
	uploadLimit    = 20
	uploadWindow   = time.Minute
)

type eventContext struct {
	conn     interfaces.Connection
	envelope *protocol.Envelope
	received time.Time
}

// Hub coordinates event routing and roster broadcasts.
type Hub struct {
	events   chan *eventContext
	attach   chan interfaces.Connection
	detach   chan interfaces.Connection
	shutdown chan struct{}

	registry *websocket.Registry
	files    interfaces.FileStore
	sessions interfaces.SessionManager
	tokens   interfaces.TokenVerifier
	log      zerolog.Logger

	progressLimiter *RateLimiter
	uploadLimiter   *RateLimiter

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub over the given components.
func NewHub(registry *websocket.Registry, files interfaces.FileStore, sessions interfaces.SessionManager, tokens interfaces.TokenVerifier, log zerolog.Logger) *Hub {
	return &Hub{
		events:          make(chan *eventContext, eventBuffer),
		attach:          make(chan interfaces.Connection, lifecycleBuffer),
		detach:          make(chan interfaces.Connection, lifecycleBuffer),
		shutdown:        make(chan struct{}),
		registry:        registry,
		files:           files,
		sessions:        sessions,
		tokens:          tokens,
		log:             log.With().Str("component", "hub").Logger(),
		progressLimiter: NewRateLimiter(progressLimit, progressWindow),
		uploadLimiter:   NewRateLimiter(uploadLimit, uploadWindow),
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	h.log.Info().Msg("hub started")
	go h.run(ctx)
	return nil
}

// Stop shuts down the hub.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
	return nil
}

// Attach queues a newly registered connection; the roster is rebroadcast
// once the hub processes it.
func (h *Hub) Attach(conn interfaces.Connection) {
	select {
	case h.attach <- conn:
	default:
		h.log.Warn().Str("conn_id", conn.ID()).Msg("attach queue full")
	}
}

// Detach queues a dropped connection.
func (h *Hub) Detach(conn interfaces.Connection) {
	select {
	case h.detach <- conn:
	default:
		h.log.Warn().Str("conn_id", conn.ID()).Msg("detach queue full")
	}
}

// Dispatch decodes a raw frame and queues it for routing. Malformed frames
// are dropped here so the run loop only ever sees valid envelopes.
func (h *Hub) Dispatch(conn interfaces.Connection, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		h.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("dropping bad frame")
		return
	}

	select {
	case h.events <- &eventContext{conn: conn, envelope: env, received: time.Now()}:
	default:
		h.log.Warn().Str("conn_id", conn.ID()).Str("event", env.Event).Msg("event queue full")
	}
}

func (h *Hub) run(ctx context.Context) {
	defer h.log.Info().Msg("hub stopped")

	cleanup := time.NewTicker(5 * time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case ec := <-h.events:
			h.handleEvent(ctx, ec)
		case <-h.attach:
			h.broadcastRoster()
		case conn := <-h.detach:
			h.progressLimiter.Forget(conn.ID())
			h.uploadLimiter.Forget(conn.ID())
			h.broadcastRoster()
		case <-cleanup.C:
			h.progressLimiter.Cleanup()
			h.uploadLimiter.Cleanup()
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleEvent(ctx context.Context, ec *eventContext) {
	switch ec.envelope.Event {
	case types.EventAuthenticateAdmin:
		h.handleAuthenticate(ec)
	case types.EventGetInitialDevices:
		h.handleGetInitialDevices(ec)
	case types.EventUploadFileToAdmin:
		h.handleUpload(ctx, ec)
	case types.EventUploadProgress:
		h.handleProgress(ec)
	case types.EventTerminateSession:
		h.handleTerminateSession(ctx, ec)
	default:
		// Client-bound events arriving from a client are ignored.
		h.log.Debug().Str("conn_id", ec.conn.ID()).Str("event", ec.envelope.Event).
			Msg("ignoring client-bound event")
	}
}

// handleAuthenticate upgrades a connection to admin when the token checks
// out. The roster is rebroadcast because the role changed.
func (h *Hub) handleAuthenticate(ec *eventContext) {
	var payload types.AuthenticatePayload
	if err := ec.envelope.Unmarshal(&payload); err != nil || payload.Token == "" {
		h.writeAuthFailure(ec.conn, "missing token")
		return
	}

	username, err := h.tokens.VerifyToken(payload.Token)
	if err != nil {
		h.log.Warn().Str("conn_id", ec.conn.ID()).Msg("admin authentication failed")
		h.writeAuthFailure(ec.conn, "invalid or expired token")
		return
	}

	if err := ec.conn.SetRole(types.RoleAdmin); err != nil {
		h.writeAuthFailure(ec.conn, "role upgrade failed")
		return
	}

	h.writeTo(ec.conn, types.EventAdminAuthenticated, &types.AuthResultPayload{
		Message: "authenticated as " + username,
	})
	h.log.Info().Str("conn_id", ec.conn.ID()).Str("admin", username).Msg("admin authenticated")
	h.broadcastRoster()
}

func (h *Hub) writeAuthFailure(conn interfaces.Connection, reason string) {
	h.writeTo(conn, types.EventAdminAuthenticationFailed, &types.AuthResultPayload{Error: reason})
}

// handleGetInitialDevices sends a roster snapshot to the requesting
// connection only.
func (h *Hub) handleGetInitialDevices(ec *eventContext) {
	h.writeTo(ec.conn, types.EventUpdateConnectedDevices, &types.DeviceListPayload{
		Devices: h.registry.Snapshot(),
	})
}

// handleUpload stores a student result and answers with a receipt. The
// receipt also goes to every admin and dashboard so proctors see incoming
// work without polling.
func (h *Hub) handleUpload(ctx context.Context, ec *eventContext) {
	var payload types.UploadFilePayload
	if err := ec.envelope.Unmarshal(&payload); err != nil {
		h.writeReceipt(ec.conn, payload.Filename, "", "malformed upload payload")
		return
	}
	if err := payload.Validate(); err != nil {
		h.writeReceipt(ec.conn, payload.Filename, "", err.Error())
		return
	}
	if !h.uploadLimiter.Allow(ec.conn.ID()) {
		h.writeReceipt(ec.conn, payload.Filename, "", ErrRateLimited.Error())
		return
	}
	if len(h.registry.ByRole(types.RoleAdmin)) == 0 {
		h.writeReceipt(ec.conn, payload.Filename, "", "admin is not connected")
		return
	}

	contents, err := protocol.DecodeFiledata(payload.Filedata)
	if err != nil {
		h.writeReceipt(ec.conn, payload.Filename, "", "filedata is not valid base64")
		return
	}

	if err := h.files.Save(ctx, types.DirUploads, payload.Filename, contents); err != nil {
		h.log.Error().Err(err).Str("filename", payload.Filename).Msg("upload save failed")
		h.writeReceipt(ec.conn, payload.Filename, "", "server could not store the file")
		return
	}

	receipt := &types.ReceiptPayload{
		Filename:  payload.Filename,
		Message:   "file received",
		Timestamp: time.Now().UnixMilli(),
	}
	h.writeTo(ec.conn, types.EventFileReceived, receipt)
	for _, role := range []string{types.RoleAdmin, types.RoleDashboard} {
		for _, conn := range h.registry.ByRole(role) {
			if conn.ID() == ec.conn.ID() {
				continue
			}
			h.writeTo(conn, types.EventFileReceived, receipt)
		}
	}
	h.log.Info().Str("conn_id", ec.conn.ID()).Str("filename", payload.Filename).
		Int("bytes", len(contents)).Msg("upload stored")
}

func (h *Hub) writeReceipt(conn interfaces.Connection, filename, message, errMsg string) {
	h.writeTo(conn, types.EventFileReceived, &types.ReceiptPayload{
		Filename:  filename,
		Message:   message,
		Error:     errMsg,
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleProgress acknowledges a progress report back to the sender and
// mirrors it to admins watching the transfer.
func (h *Hub) handleProgress(ec *eventContext) {
	var payload types.ProgressPayload
	if err := ec.envelope.Unmarshal(&payload); err != nil || payload.Validate() != nil {
		return
	}
	if !h.progressLimiter.Allow(ec.conn.ID()) {
		return
	}

	h.writeTo(ec.conn, types.EventUploadProgressAck, &payload)
	for _, conn := range h.registry.ByRole(types.RoleAdmin) {
		if conn.ID() == ec.conn.ID() {
			continue
		}
		h.writeTo(conn, types.EventUploadProgress, &payload)
	}
}

// handleTerminateSession ends an exam session on behalf of an admin and
// signals every client to refresh its session view.
func (h *Hub) handleTerminateSession(ctx context.Context, ec *eventContext) {
	if ec.conn.Device().Role != types.RoleAdmin {
		h.log.Warn().Str("conn_id", ec.conn.ID()).Msg("terminate_session from non-admin")
		return
	}

	var payload types.TerminateSessionPayload
	if err := ec.envelope.Unmarshal(&payload); err != nil || payload.SessionID == "" {
		return
	}

	if err := h.sessions.TerminateSession(ctx, payload.SessionID); err != nil {
		h.log.Warn().Err(err).Str("session_id", payload.SessionID).Msg("terminate failed")
		return
	}
	h.BroadcastSessionsUpdated()
}

// BroadcastSessionsUpdated tells every client the session list changed.
func (h *Hub) BroadcastSessionsUpdated() {
	for _, conn := range h.registry.All() {
		h.writeTo(conn, types.EventSessionsUpdated, nil)
	}
}

// BroadcastFileUploaded announces a file placed through the REST surface.
func (h *Hub) BroadcastFileUploaded(filename, subdirectory string) {
	payload := &types.FileUploadedPayload{Filename: filename, Subdirectory: subdirectory}
	for _, conn := range h.registry.All() {
		h.writeTo(conn, types.EventFileUploaded, payload)
	}
}

// broadcastRoster pushes a full roster snapshot to every connection.
func (h *Hub) broadcastRoster() {
	payload := &types.DeviceListPayload{Devices: h.registry.Snapshot()}
	for _, conn := range h.registry.All() {
		h.writeTo(conn, types.EventUpdateConnectedDevices, payload)
	}
}

func (h *Hub) writeTo(conn interfaces.Connection, event string, payload interface{}) {
	if err := conn.WriteEnvelope(event, payload); err != nil {
		h.log.Debug().Err(err).Str("conn_id", conn.ID()).Str("event", event).Msg("write failed")
	}
}
