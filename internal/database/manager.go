// Package database implements the truth store on SQLite. All writes funnel
// through a single goroutine; reads go straight to the pool.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"examboard/pkg/database"
	"examboard/pkg/interfaces"
	"examboard/pkg/types"
)

const (
	writeQueueSize  = 100
	writeTimeout    = 30 * time.Second
	lockRetryDelay  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

type writeOperation struct {
	query  string
	args   []interface{}
	result chan error
}

// Manager owns the SQLite handle and the single writer goroutine.
type Manager struct {
	db       *sql.DB
	config   *database.Config
	log      zerolog.Logger
	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   sync.Once
}

// NewManager opens the database, applies pending migrations, validates the
// schema and starts the writer goroutine.
func NewManager(cfg *database.Config, log zerolog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := cfg.DatabasePath + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := database.NewMigrationManager(db).Apply(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if err := database.NewSchemaValidator(db).Validate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("validate schema: %w", err)
	}

	m := &Manager{
		db:       db,
		config:   cfg,
		log:      log.With().Str("component", "database").Logger(),
		writeCh:  make(chan writeOperation, writeQueueSize),
		shutdown: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()

	m.log.Info().Str("path", cfg.DatabasePath).Msg("database ready")
	return m, nil
}

// writeLoop serializes all writes. A write that fails on a locked database
// is retried once after a delay before the error is reported.
func (m *Manager) writeLoop() {
	defer m.wg.Done()
	for {
		select {
		case op := <-m.writeCh:
			op.result <- m.execWithRetry(op.query, op.args)
		case <-m.shutdown:
			// Drain queued writes before exiting.
			for {
				select {
				case op := <-m.writeCh:
					op.result <- m.execWithRetry(op.query, op.args)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) execWithRetry(query string, args []interface{}) error {
	_, err := m.db.Exec(query, args...)
	if err == nil {
		return nil
	}
	if isLocked(err) {
		m.log.Warn().Err(err).Msg("database locked, retrying write")
		time.Sleep(lockRetryDelay)
		_, err = m.db.Exec(query, args...)
	}
	return err
}

func isLocked(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// executeWrite queues a write and waits for its result.
func (m *Manager) executeWrite(ctx context.Context, query string, args ...interface{}) error {
	op := writeOperation{query: query, args: args, result: make(chan error, 1)}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	select {
	case m.writeCh <- op:
	case <-writeCtx.Done():
		return fmt.Errorf("write queue full: %w", writeCtx.Err())
	case <-m.shutdown:
		return errors.New("database manager shutting down")
	}

	select {
	case err := <-op.result:
		return err
	case <-writeCtx.Done():
		return fmt.Errorf("write timed out: %w", writeCtx.Err())
	}
}

// CreateAdmin stores a new administrator credential.
func (m *Manager) CreateAdmin(ctx context.Context, username, passwordHash string) error {
	err := m.executeWrite(ctx,
		`INSERT INTO admins (username, password_hash) VALUES (?, ?)`,
		username, passwordHash)
	if isUniqueViolation(err) {
		return interfaces.ErrAdminExists
	}
	return err
}

// GetAdmin loads one administrator by username.
func (m *Manager) GetAdmin(ctx context.Context, username string) (*types.Admin, error) {
	var admin types.Admin
	err := m.db.QueryRowContext(ctx,
		`SELECT username, password_hash, created_at FROM admins WHERE username = ?`,
		username,
	).Scan(&admin.Username, &admin.PasswordHash, &admin.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrAdminNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

// CountAdmins reports how many administrators are registered.
func (m *Manager) CountAdmins(ctx context.Context) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count)
	return count, err
}

// UpsertFileRecord records an upload. Re-uploading the same name refreshes
// the timestamp.
func (m *Manager) UpsertFileRecord(ctx context.Context, subdirectory, filename string) error {
	return m.executeWrite(ctx,
		`INSERT INTO files (filename, subdirectory, uploaded_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(subdirectory, filename) DO UPDATE SET uploaded_at = CURRENT_TIMESTAMP`,
		filename, subdirectory)
}

// ListFileRecords returns every recorded upload.
func (m *Manager) ListFileRecords(ctx context.Context) ([]types.FileRecord, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT filename, subdirectory, uploaded_at FROM files ORDER BY subdirectory, filename`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var records []types.FileRecord
	for rows.Next() {
		rec := types.FileRecord{Source: types.SourceDatabase}
		if err := rows.Scan(&rec.Filename, &rec.Subdirectory, &rec.UploadedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteFileRecord removes an upload record.
func (m *Manager) DeleteFileRecord(ctx context.Context, subdirectory, filename string) error {
	return m.executeWrite(ctx,
		`DELETE FROM files WHERE subdirectory = ? AND filename = ?`,
		subdirectory, filename)
}

// CreateExamSession persists a new session.
func (m *Manager) CreateExamSession(ctx context.Context, session *types.ExamSession) error {
	if err := session.Validate(); err != nil {
		return err
	}
	return m.executeWrite(ctx,
		`INSERT INTO exam_sessions (id, exam_code, subject, student, status) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.ExamCode, session.Subject, session.Student, session.Status)
}

// GetExamSession loads one session by ID.
func (m *Manager) GetExamSession(ctx context.Context, id string) (*types.ExamSession, error) {
	var s types.ExamSession
	err := m.db.QueryRowContext(ctx,
		`SELECT id, exam_code, subject, student, status, created_at FROM exam_sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.ExamCode, &s.Subject, &s.Student, &s.Status, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// ListExamSessions returns all sessions with the given status.
func (m *Manager) ListExamSessions(ctx context.Context, status string) ([]*types.ExamSession, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, exam_code, subject, student, status, created_at
		 FROM exam_sessions WHERE status = ? ORDER BY created_at`,
		status)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.ExamSession
	for rows.Next() {
		var s types.ExamSession
		if err := rows.Scan(&s.ID, &s.ExamCode, &s.Subject, &s.Student, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// UpdateSessionStatus moves a session to a new status.
func (m *Manager) UpdateSessionStatus(ctx context.Context, id, status string) error {
	return m.executeWrite(ctx,
		`UPDATE exam_sessions SET status = ? WHERE id = ?`,
		status, id)
}

// HealthCheck verifies database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close stops the writer goroutine and closes the connection pool.
func (m *Manager) Close() error {
	var err error
	m.closed.Do(func() {
		close(m.shutdown)

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			m.log.Warn().Msg("database writer did not drain in time")
		}

		err = m.db.Close()
	})
	return err
}
