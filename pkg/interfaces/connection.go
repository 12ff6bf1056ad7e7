// Package interfaces defines the contracts between the socket layer, the hub
// and the storage components. Keeping them here lets each side be tested
// against mocks without importing the real implementations.
package interfaces

import "examboard/pkg/types"

// Connection is one live socket client as seen by the hub.
type Connection interface {
	// ID returns the server-assigned connection identifier.
	ID() string

	// Device returns the roster entry for this connection. The role field
	// reflects the current authentication state.
	Device() types.Device

	// SetRole upgrades or downgrades the connection's role, normally
	// student -> admin after token authentication.
	SetRole(role string) error

	// WriteEnvelope queues an event frame for delivery. Safe for concurrent
	// use; all writes funnel through a single writer goroutine.
	WriteEnvelope(event string, payload interface{}) error

	// Close tears down the socket and releases resources. Idempotent.
	Close() error
}
