package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names double as database/sql driver names.
const (
	DialectSQLite = "sqlite3"
	DialectMySQL  = "mysql"
)

// Config holds database configuration
type Config struct {
	Driver          string        `json:"driver"`
	DatabasePath    string        `json:"database_path"`
	DSN             string        `json:"dsn"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`

	// MigrationsPath overrides the embedded migrations when set.
	MigrationsPath string `json:"migrations_path"`
}

// DefaultConfig returns a local SQLite configuration.
func DefaultConfig() *Config {
	return &Config{
		Driver:          DialectSQLite,
		DatabasePath:    "./data/chatdesk.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	switch c.Driver {
	case DialectSQLite:
		if c.DatabasePath == "" {
			return errors.New("database path cannot be empty")
		}
	case DialectMySQL:
		if c.DSN == "" {
			return errors.New("mysql dsn cannot be empty")
		}
		if _, err := mysql.ParseDSN(c.DSN); err != nil {
			return fmt.Errorf("invalid mysql dsn: %w", err)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	return nil
}

// DataSourceName builds the driver-specific connection string.
func (c *Config) DataSourceName() (string, error) {
	switch c.Driver {
	case DialectSQLite:
		sep := "?"
		if strings.Contains(c.DatabasePath, "?") {
			sep = "&"
		}
		return c.DatabasePath + sep + "_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", nil
	case DialectMySQL:
		cfg, err := mysql.ParseDSN(c.DSN)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg.Loc = time.UTC
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		if _, ok := cfg.Params["charset"]; !ok {
			cfg.Params["charset"] = "utf8mb4"
		}
		return cfg.FormatDSN(), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", c.Driver)
}

// SQLitePragmas are applied once after opening a SQLite database.
var SQLitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA cache_size = -64000",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}
