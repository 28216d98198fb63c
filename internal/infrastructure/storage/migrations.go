package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "add_sessions_table",
		Up:      migration001AddSessionsTable,
	},
	{
		Version: 2,
		Name:    "add_workspaces_table",
		Up:      migration002AddWorkspacesTable,
	},
	{
		Version: 3,
		Name:    "add_approvals_table",
		Up:      migration003AddApprovalsTable,
	},
	{
		Version: 4,
		Name:    "add_api_calls_table",
		Up:      migration004AddAPICallsTable,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		s.logger.Info("running migration", "version", migration.Version, "name", migration.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// ================================================================
// MIGRATION FUNCTIONS
// ================================================================

// Timestamps are stored as fixed-width UTC text (see timeLayout).

func migration001AddSessionsTable(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			expires_at TEXT,
			return_to TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX idx_sessions_updated_at ON sessions(updated_at)`,
	})
}

func migration002AddWorkspacesTable(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE workspaces (
			session_id TEXT NOT NULL,
			partner TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'viewing',
			draft_json TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (session_id, partner)
		)`,
	})
}

func migration003AddApprovalsTable(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE approvals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			partner TEXT NOT NULL,
			order_id TEXT NOT NULL DEFAULT '',
			total REAL,
			payload_json TEXT NOT NULL,
			response_json TEXT NOT NULL DEFAULT '',
			approved_at TEXT NOT NULL
		)`,
		`CREATE INDEX idx_approvals_partner ON approvals(partner)`,
		`CREATE INDEX idx_approvals_approved_at ON approvals(approved_at)`,
	})
}

func migration004AddAPICallsTable(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE api_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL DEFAULT '',
			service TEXT NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			request_json TEXT NOT NULL DEFAULT '',
			response_json TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX idx_api_calls_session ON api_calls(session_id, id)`,
	})
}
