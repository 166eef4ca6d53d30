package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(DialectSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DialectSQLite, cfg.Driver)
	assert.Equal(t, 10, cfg.MaxConnections)
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty sqlite path", func(c *Config) { c.DatabasePath = "" }},
		{"unknown driver", func(c *Config) { c.Driver = "postgres" }},
		{"mysql without dsn", func(c *Config) { c.Driver = DialectMySQL }},
		{"zero connections", func(c *Config) { c.MaxConnections = 0 }},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_DataSourceName(t *testing.T) {
	cfg := DefaultConfig()
	dsn, err := cfg.DataSourceName()
	require.NoError(t, err)
	assert.Equal(t, "./data/chatdesk.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dsn)

	cfg = &Config{
		Driver:          DialectMySQL,
		DSN:             "chat:secret@tcp(db:3306)/shop",
		MaxConnections:  5,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
	require.NoError(t, cfg.Validate())
	dsn, err = cfg.DataSourceName()
	require.NoError(t, err)
	assert.Contains(t, dsn, "tcp(db:3306)/shop")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestMigrationManager_ApplyMigrations(t *testing.T) {
	db := openTestDB(t)
	mm := NewMigrationManager(db, DialectSQLite)

	pending, err := mm.PendingMigrations()
	require.NoError(t, err)
	assert.Equal(t, []string{"001"}, pending)

	applied, err := mm.ApplyMigrations()
	require.NoError(t, err)
	assert.Equal(t, []string{"001"}, applied)

	// Second run is a no-op.
	applied, err = mm.ApplyMigrations()
	require.NoError(t, err)
	assert.Empty(t, applied)

	pending, err = mm.PendingMigrations()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrationManager_FromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, DialectSQLite), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DialectSQLite, "002_extra.sql"),
		[]byte("-- extra table\nCREATE TABLE extra (id INTEGER PRIMARY KEY);\nCREATE INDEX idx_extra ON extra(id);\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DialectSQLite, "README.md"), []byte("ignored"), 0o644))

	db := openTestDB(t)
	applied, err := NewMigrationManagerFromDir(db, DialectSQLite, dir).ApplyMigrations()
	require.NoError(t, err)
	assert.Equal(t, []string{"002"}, applied)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'idx_extra'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (id INT);\n\n  -- note\nCREATE TABLE b (id INT);\n")
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"}, stmts)
}

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	v := NewSchemaValidator(db, DialectSQLite)
	assert.Error(t, v.ValidateTablesExist())
	assert.Error(t, v.Validate())
}

func TestSchemaValidator_AfterMigrations(t *testing.T) {
	db := openTestDB(t)
	_, err := NewMigrationManager(db, DialectSQLite).ApplyMigrations()
	require.NoError(t, err)

	v := NewSchemaValidator(db, DialectSQLite)
	require.NoError(t, v.ValidateTablesExist())
	require.NoError(t, v.ValidateTableStructure())
	require.NoError(t, v.ValidateIndexes())
	require.NoError(t, v.ValidateConstraints())

	// The probe leaves nothing behind.
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM chat_conversations").Scan(&n))
	assert.Zero(t, n)
}

func TestSchemaValidator_MissingColumn(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT);
		CREATE TABLE chat_conversations (id INTEGER PRIMARY KEY, customer_id INTEGER, priority TEXT, created_at INTEGER);
		CREATE TABLE chat_messages (id INTEGER PRIMARY KEY, conversation_id INTEGER, sender_id INTEGER, sender_type TEXT, content TEXT, timestamp INTEGER, is_read INTEGER);
		CREATE TABLE schema_migrations (version TEXT PRIMARY KEY);
	`)
	require.NoError(t, err)

	v := NewSchemaValidator(db, DialectSQLite)
	require.NoError(t, v.ValidateTablesExist())
	err = v.ValidateTableStructure()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "media_url")
}
