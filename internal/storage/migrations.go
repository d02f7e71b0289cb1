package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

type migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrate applies every pending migration.
func (db *DB) Migrate() error {
	return db.MigrateTo(migrations[len(migrations)-1].Version)
}

// MigrateTo applies pending migrations up to and including target. Each
// migration runs in its own transaction and is recorded in schema_migrations.
func (db *DB) MigrateTo(target int) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	log.Debug().Int("current_version", current).Int("target_version", target).Msg("Profile schema version")

	for _, m := range migrations {
		if m.Version <= current || m.Version > target {
			continue
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")

		if err := db.Transaction(func(tx *sql.Tx) error {
			for i, stmt := range splitSQLStatements(m.SQL) {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration %d statement %d failed: %w", m.Version, i+1, err)
				}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get current migration version: %w", err)
	}
	return v, nil
}

// splitSQLStatements splits a script on statement-terminating semicolons,
// dropping blank lines and -- comments.
func splitSQLStatements(script string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}
	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}
	return statements
}

// connectionColumns is the column list shared by the shadow-table copy.
const connectionColumns = `id, name, type, host, port, username, password, database_name, ssl_config,
				group_name, color, is_active, created_at, updated_at, last_connected_at`

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			CREATE TABLE connections (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				type TEXT NOT NULL CHECK (type IN ('postgresql', 'mysql')),
				host TEXT NOT NULL DEFAULT '',
				port INTEGER NOT NULL DEFAULT 0,
				username TEXT NOT NULL DEFAULT '',
				password TEXT NOT NULL DEFAULT '',
				database_name TEXT NOT NULL DEFAULT '',
				ssl_config TEXT NOT NULL DEFAULT '{}',
				group_name TEXT NOT NULL DEFAULT '',
				color TEXT NOT NULL DEFAULT '',
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				last_connected_at TEXT
			);
			CREATE INDEX idx_connections_active ON connections(is_active);
			CREATE INDEX idx_connections_name ON connections(name);
		`,
	},
	{
		// SQLite cannot alter a CHECK constraint in place, so the table is
		// rebuilt through a shadow copy.
		Version: 2,
		Name:    "widen_connection_types",
		SQL: `
			CREATE TABLE connections_new (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				type TEXT NOT NULL CHECK (type IN ('postgresql', 'mysql', 'redis', 'sqlite', 'mongodb')),
				host TEXT NOT NULL DEFAULT '',
				port INTEGER NOT NULL DEFAULT 0,
				username TEXT NOT NULL DEFAULT '',
				password TEXT NOT NULL DEFAULT '',
				database_name TEXT NOT NULL DEFAULT '',
				ssl_config TEXT NOT NULL DEFAULT '{}',
				group_name TEXT NOT NULL DEFAULT '',
				color TEXT NOT NULL DEFAULT '',
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				last_connected_at TEXT
			);
			INSERT INTO connections_new (` + connectionColumns + `)
				SELECT ` + connectionColumns + ` FROM connections;
			DROP TABLE connections;
			ALTER TABLE connections_new RENAME TO connections;
			CREATE INDEX idx_connections_active ON connections(is_active);
			CREATE INDEX idx_connections_name ON connections(name);
		`,
	},
	{
		Version: 3,
		Name:    "connection_group_index",
		SQL: `
			CREATE INDEX idx_connections_group ON connections(group_name, name);
		`,
	},
}
