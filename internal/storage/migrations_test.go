package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const insertV1Row = `
	INSERT INTO connections (id, name, type, host, port, password, created_at, updated_at, last_connected_at)
	VALUES (?, ?, ?, 'localhost', 5432, 'enc', '2025-01-01T00:00:00Z', '2025-01-01T00:00:00Z', ?)`

func TestMigrate_WidensTypeConstraintWithoutLosingRows(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.MigrateTo(1))

	_, err = db.Exec(insertV1Row, "pg", "Postgres", "postgresql", "2025-02-01T00:00:00Z")
	require.NoError(t, err)
	_, err = db.Exec(insertV1Row, "my", "MySQL", "mysql", nil)
	require.NoError(t, err)

	_, err = db.Exec(insertV1Row, "rd", "Redis", "redis", nil)
	require.Error(t, err, "version 1 rejects redis profiles")

	require.NoError(t, db.Migrate())

	version, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, version)

	store := NewConnectionStore(db)
	all, err := store.GetAll(t.Context(), false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "MySQL", all[0].Name)
	assert.Equal(t, "Postgres", all[1].Name)
	assert.Equal(t, "enc", all[1].Password)
	assert.False(t, all[1].LastConnectedAt.IsZero())
	assert.True(t, all[1].IsActive)

	_, err = db.Exec(insertV1Row, "rd", "Redis", "redis", nil)
	assert.NoError(t, err, "widened constraint accepts redis")
	_, err = db.Exec(insertV1Row, "bad", "Oracle", "oracle", nil)
	assert.Error(t, err, "unknown types are still rejected")

	for _, idx := range []string{"idx_connections_active", "idx_connections_name", "idx_connections_group"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?", idx).Scan(&name)
		assert.NoError(t, err, "index %s should exist after migration", idx)
	}

	var shadow int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'connections_new'").Scan(&shadow))
	assert.Zero(t, shadow)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, len(migrations), applied)
}

func TestSplitSQLStatements(t *testing.T) {
	script := `
		-- comment
		CREATE TABLE a (
			id INTEGER
		);

		INSERT INTO a VALUES (1);
		SELECT 1`

	stmts := splitSQLStatements(script)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[0], "id INTEGER")
	assert.Equal(t, "INSERT INTO a VALUES (1);", stmts[1])
	assert.Equal(t, "SELECT 1", stmts[2])
}
