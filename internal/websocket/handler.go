package websocket

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"examboard/pkg/interfaces"
	"examboard/pkg/types"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// Browser clients connect from arbitrary lab machines; origin policy is
	// enforced at the network layer.
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// EventSink receives connection lifecycle and inbound frames. Implemented by
// the hub.
type EventSink interface {
	Attach(conn interfaces.Connection)
	Detach(conn interfaces.Connection)
	Dispatch(conn interfaces.Connection, frame []byte)
}

// Handler upgrades HTTP requests and pumps frames into the sink.
type Handler struct {
	registry *Registry
	sink     EventSink
	log      zerolog.Logger
}

// NewHandler creates a socket handler.
func NewHandler(registry *Registry, sink EventSink, log zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		sink:     sink,
		log:      log.With().Str("component", "websocket").Logger(),
	}
}

// HandleWebSocket upgrades the request and registers the connection. A
// client may present itself as student or dashboard; admin is only granted
// later through token authentication over the socket.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	switch role {
	case "":
		role = types.RoleStudent
	case types.RoleStudent, types.RoleDashboard:
	default:
		http.Error(w, "role must be 'student' or 'dashboard'", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "Device-" + id[:4]
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	device := types.Device{Name: name, IP: remoteIP(r), Role: role}
	wsConn := NewConnection(conn, id, device)

	h.registry.Register(wsConn)
	h.sink.Attach(wsConn)
	h.log.Info().Str("conn_id", id).Str("name", name).Str("role", role).Msg("client connected")

	go h.readPump(wsConn)
}

// readPump owns the read side of one connection until it drops.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		h.sink.Detach(conn)
		_ = conn.Close()
		h.log.Info().Str("conn_id", conn.ID()).Msg("client disconnected")
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(10 * time.Second)
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("read error")
			}
			return
		}
		if messageType == websocket.TextMessage {
			h.sink.Dispatch(conn, data)
		}
	}
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
