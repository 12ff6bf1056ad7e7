package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator verifies the truth store has the expected tables and
// indexes before the server starts serving requests.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a validator for db.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate checks every table and index the components depend on.
func (v *SchemaValidator) Validate() error {
	for _, table := range []string{"admins", "files", "exam_sessions", "schema_migrations"} {
		ok, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !ok {
			return fmt.Errorf("missing table: %s", table)
		}
	}

	required := map[string][]string{
		"admins":        {"username", "password_hash", "created_at"},
		"files":         {"filename", "subdirectory", "uploaded_at"},
		"exam_sessions": {"id", "exam_code", "subject", "student", "status", "created_at"},
	}
	for table, columns := range required {
		if err := v.validateColumns(table, columns); err != nil {
			return err
		}
	}

	for _, index := range []string{"idx_files_subdirectory", "idx_exam_sessions_status"} {
		ok, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("check index %s: %w", index, err)
		}
		if !ok {
			return fmt.Errorf("missing index: %s", index)
		}
	}
	return nil
}

func (v *SchemaValidator) tableExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name,
	).Scan(&count)
	return count > 0, err
}

func (v *SchemaValidator) indexExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?`, name,
	).Scan(&count)
	return count > 0, err
}

func (v *SchemaValidator) validateColumns(table string, expected []string) error {
	rows, err := v.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range expected {
		if !present[col] {
			return fmt.Errorf("table %s missing column %s", table, col)
		}
	}
	return nil
}
