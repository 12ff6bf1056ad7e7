package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one versioned schema change. Migrations are embedded in the
// binary so a deployment never depends on loose .sql files.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Schema migrations in order. Append only; applied versions are recorded in
// schema_migrations and never re-run.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_admins",
		SQL: `
CREATE TABLE IF NOT EXISTS admins (
    username      TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`,
	},
	{
		Version: 2,
		Name:    "create_files",
		SQL: `
CREATE TABLE IF NOT EXISTS files (
    filename     TEXT NOT NULL,
    subdirectory TEXT NOT NULL,
    uploaded_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (subdirectory, filename)
);
CREATE INDEX IF NOT EXISTS idx_files_subdirectory ON files(subdirectory);`,
	},
	{
		Version: 3,
		Name:    "create_exam_sessions",
		SQL: `
CREATE TABLE IF NOT EXISTS exam_sessions (
    id         TEXT PRIMARY KEY,
    exam_code  TEXT NOT NULL UNIQUE,
    subject    TEXT NOT NULL,
    student    TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_exam_sessions_status ON exam_sessions(status);`,
	},
}

// MigrationManager applies pending schema migrations.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager for db.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// Apply runs every migration whose version has not been recorded yet, each
// inside its own transaction.
func (m *MigrationManager) Apply() error {
	if err := m.ensureVersionTable(); err != nil {
		return err
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	pending := make([]Migration, 0, len(migrations))
	for _, mig := range migrations {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, mig := range pending {
		if err := m.applyOne(mig); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

func (m *MigrationManager) ensureVersionTable() error {
	_, err := m.db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (m *MigrationManager) appliedVersions() (map[int]bool, error) {
	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) applyOne(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`,
		mig.Version, mig.Name,
	); err != nil {
		return err
	}
	return tx.Commit()
}
