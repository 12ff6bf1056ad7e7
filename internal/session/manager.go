// Package session manages exam session lifecycle: creation with a generated
// exam code, termination and the active-session listing the dashboard polls.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"examboard/pkg/interfaces"
	"examboard/pkg/types"
)

// sessionStore is the slice of the truth store the manager needs.
type sessionStore interface {
	CreateExamSession(ctx context.Context, session *types.ExamSession) error
	GetExamSession(ctx context.Context, id string) (*types.ExamSession, error)
	ListExamSessions(ctx context.Context, status string) ([]*types.ExamSession, error)
	UpdateSessionStatus(ctx context.Context, id, status string) error
}

// Manager implements interfaces.SessionManager with a write-through cache of
// active sessions in front of the truth store.
type Manager struct {
	db  sessionStore
	log zerolog.Logger

	mu     sync.RWMutex
	active map[string]*types.ExamSession
}

// NewManager loads active sessions from the store and returns the manager.
func NewManager(ctx context.Context, db sessionStore, log zerolog.Logger) (*Manager, error) {
	m := &Manager{
		db:     db,
		log:    log.With().Str("component", "session").Logger(),
		active: make(map[string]*types.ExamSession),
	}

	sessions, err := db.ListExamSessions(ctx, types.SessionStatusActive)
	if err != nil {
		return nil, fmt.Errorf("load active sessions: %w", err)
	}
	for _, s := range sessions {
		m.active[s.ID] = s
	}
	m.log.Info().Int("active", len(m.active)).Msg("session manager ready")
	return m, nil
}

// newExamCode derives a 6-character uppercase code for students joining the
// session.
func newExamCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:6])
}

// CreateSession opens a new exam session.
func (m *Manager) CreateSession(ctx context.Context, subject, student string) (*types.ExamSession, error) {
	session := &types.ExamSession{
		ID:       uuid.NewString(),
		ExamCode: newExamCode(),
		Subject:  subject,
		Student:  student,
		Status:   types.SessionStatusActive,
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if err := m.db.CreateExamSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	m.mu.Lock()
	m.active[session.ID] = session
	m.mu.Unlock()

	m.log.Info().Str("session_id", session.ID).Str("subject", subject).Msg("session created")
	return session, nil
}

// GetSession retrieves a session, preferring the cache for active ones.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.ExamSession, error) {
	m.mu.RLock()
	if s, ok := m.active[sessionID]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()
	return m.db.GetExamSession(ctx, sessionID)
}

// TerminateSession ends an active session. Unknown or already-terminated
// sessions return ErrSessionNotFound.
func (m *Manager) TerminateSession(ctx context.Context, sessionID string) error {
	m.mu.RLock()
	_, isActive := m.active[sessionID]
	m.mu.RUnlock()
	if !isActive {
		return interfaces.ErrSessionNotFound
	}

	if err := m.db.UpdateSessionStatus(ctx, sessionID, types.SessionStatusTerminated); err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}

	m.mu.Lock()
	delete(m.active, sessionID)
	m.mu.Unlock()

	m.log.Info().Str("session_id", sessionID).Msg("session terminated")
	return nil
}

// ListActiveSessions returns active sessions ordered by creation time.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.ExamSession, error) {
	m.mu.RLock()
	sessions := make([]*types.ExamSession, 0, len(m.active))
	for _, s := range m.active {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}
