package interfaces

import (
	"context"

	"examboard/pkg/types"
)

// SessionManager handles exam session lifecycle.
type SessionManager interface {
	// CreateSession opens a new exam session with a generated exam code.
	CreateSession(ctx context.Context, subject, student string) (*types.ExamSession, error)

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*types.ExamSession, error)

	// TerminateSession marks an active session terminated. Terminating an
	// already-terminated or unknown session returns ErrSessionNotFound.
	TerminateSession(ctx context.Context, sessionID string) error

	// ListActiveSessions returns all sessions still in progress.
	ListActiveSessions(ctx context.Context) ([]*types.ExamSession, error)
}

// FileStore handles the managed file areas and the merged inventory.
type FileStore interface {
	// List returns the merged database and filesystem inventory, keyed by
	// subdirectory. Files present in both places appear once, tagged with
	// the database source.
	List(ctx context.Context) (map[string][]types.FileRecord, error)

	// Save writes contents into the named subdirectory and records the
	// upload in the truth store.
	Save(ctx context.Context, subdirectory, filename string, contents []byte) error

	// Read returns the contents of one stored file.
	Read(ctx context.Context, subdirectory, filename string) ([]byte, error)

	// Delete removes a file from disk and from the truth store.
	Delete(ctx context.Context, subdirectory, filename string) error
}

// AdminStore handles administrator credentials.
type AdminStore interface {
	// CreateAdmin stores a new administrator with a hashed password.
	CreateAdmin(ctx context.Context, username, password string) error

	// VerifyPassword checks a username/password pair against the store.
	VerifyPassword(ctx context.Context, username, password string) error
}

// TokenVerifier validates admin tokens presented over the socket.
type TokenVerifier interface {
	// VerifyToken returns the admin username the token was issued to, or
	// ErrUnauthorized for expired, forged or malformed tokens.
	VerifyToken(token string) (string, error)
}
