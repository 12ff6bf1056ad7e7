package websocket

import (
	"sync"

	"examboard/pkg/interfaces"
	"examboard/pkg/types"
)

// Registry tracks live connections and produces roster snapshots. It holds
// interfaces.Connection so the hub can be exercised with fakes.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]interfaces.Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]interfaces.Connection)}
}

// Register adds a connection. Registering an ID twice replaces the old entry;
// the caller is responsible for closing the replaced connection.
func (r *Registry) Register(conn interfaces.Connection) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	r.mu.Unlock()
}

// Unregister removes a connection by ID. Removing only if the stored entry
// is the same instance keeps a fast reconnect from evicting its successor.
func (r *Registry) Unregister(conn interfaces.Connection) {
	r.mu.Lock()
	if existing, ok := r.conns[conn.ID()]; ok && existing == conn {
		delete(r.conns, conn.ID())
	}
	r.mu.Unlock()
}

// Get returns the connection with the given ID.
func (r *Registry) Get(id string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the full roster as devices. The result is a fresh slice;
// receivers replace their roster with it wholesale.
func (r *Registry) Snapshot() []types.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	devices := make([]types.Device, 0, len(r.conns))
	for _, conn := range r.conns {
		devices = append(devices, conn.Device())
	}
	return devices
}

// All returns every live connection.
func (r *Registry) All() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]interfaces.Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// ByRole returns every live connection currently holding role.
func (r *Registry) ByRole(role string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var conns []interfaces.Connection
	for _, conn := range r.conns {
		if conn.Device().Role == role {
			conns = append(conns, conn)
		}
	}
	return conns
}
