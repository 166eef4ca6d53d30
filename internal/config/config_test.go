package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "chatdesk/pkg/database"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, dbconfig.DialectSQLite, cfg.Database.Driver)
	assert.Equal(t, 20, cfg.Chat.RateLimit)
	assert.Equal(t, time.Minute, cfg.Chat.RateWindow)
	assert.Equal(t, 60, cfg.Chat.AdminHTTPRateLimit)
	assert.Equal(t, 500, cfg.Chat.HistoryLimit)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, int64(200<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, "/uploads/chat/", cfg.Upload.URLPrefix)
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.HTTP.Port = -1 }},
		{"host", func(c *Config) { c.HTTP.Host = "" }},
		{"database path", func(c *Config) { c.Database.Path = "" }},
		{"driver", func(c *Config) { c.Database.Driver = "postgres" }},
		{"mysql without dsn", func(c *Config) { c.Database.Driver = dbconfig.DialectMySQL }},
		{"ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"buffer size", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"rate limit", func(c *Config) { c.Chat.RateLimit = 0 }},
		{"rate window", func(c *Config) { c.Chat.RateWindow = 0 }},
		{"history limit", func(c *Config) { c.Chat.HistoryLimit = 0 }},
		{"admin name", func(c *Config) { c.Chat.AdminName = "  " }},
		{"time zone", func(c *Config) { c.Chat.TimeZone = "Mars/Olympus" }},
		{"upload prefix", func(c *Config) { c.Upload.URLPrefix = "uploads" }},
		{"upload size", func(c *Config) { c.Upload.MaxBytes = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_MySQLDatabaseConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Driver = dbconfig.DialectMySQL
	cfg.Database.DSN = "chat:secret@tcp(localhost:3306)/chatdesk"
	cfg.Database.MaxConnections = 25

	db, err := cfg.DatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, dbconfig.DialectMySQL, db.Driver)
	assert.Equal(t, 25, db.MaxConnections)
	assert.Equal(t, cfg.Database.DSN, db.DSN)
}

func TestConfig_Location(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chat.TimeZone = "Asia/Ho_Chi_Minh"
	loc, err := cfg.Chat.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Ho_Chi_Minh", loc.String())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("CHATDESK_HTTP_PORT", "9090")
	t.Setenv("CHATDESK_DATABASE_PATH", "/tmp/chat.db")
	t.Setenv("CHATDESK_CHAT_RATE_WINDOW", "30s")
	t.Setenv("CHATDESK_HTTP_CORS_ORIGINS", "https://shop.example,https://admin.example")
	t.Setenv("CHATDESK_LOG_LEVEL", "debug")

	cfg, err := Load("", writeFile(t, "empty.env", ""))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "/tmp/chat.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Chat.RateWindow)
	assert.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 20, cfg.Chat.RateLimit)
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := writeFile(t, "test.env", "CHATDESK_CHAT_ADMIN_NAME=Support\n")
	t.Cleanup(func() { os.Unsetenv("CHATDESK_CHAT_ADMIN_NAME") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "Support", cfg.Chat.AdminName)
}

func TestLoad_FileOverridesEnvironment(t *testing.T) {
	t.Setenv("CHATDESK_HTTP_PORT", "9090")
	t.Setenv("CHATDESK_CHAT_HISTORY_LIMIT", "100")

	path := writeFile(t, "chatdesk.yaml", `
http:
  port: 7070
websocket:
  ping_interval: 10s
chat:
  time_zone: UTC
upload:
  dir: /srv/uploads
`)
	cfg, err := Load(path, writeFile(t, "empty.env", ""))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, 10*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, "UTC", cfg.Chat.TimeZone)
	assert.Equal(t, "/srv/uploads", cfg.Upload.Dir)
	// Absent from the file, so the environment value stands.
	assert.Equal(t, 100, cfg.Chat.HistoryLimit)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "chatdesk.json", `{"http": {"port": 6060}, "chat": {"rate_limit": 5, "rate_window": "2m"}}`)
	cfg, err := Load(path, writeFile(t, "empty.env", ""))
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.HTTP.Port)
	assert.Equal(t, 5, cfg.Chat.RateLimit)
	assert.Equal(t, 2*time.Minute, cfg.Chat.RateWindow)
}

func TestLoad_Errors(t *testing.T) {
	empty := writeFile(t, "empty.env", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), empty)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "chatdesk.toml", "port = 1"), empty)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "http: [unclosed"), empty)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "invalid.yaml", "http:\n  port: 70000\n"), empty)
	assert.Error(t, err)

	t.Setenv("CHATDESK_HTTP_PORT", "not-a-number")
	_, err = Load("", empty)
	assert.Error(t, err)
}
