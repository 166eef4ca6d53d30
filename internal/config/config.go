package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"chatdesk/internal/logger"
	dbconfig "chatdesk/pkg/database"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CHATDESK_"

type Config struct {
	Database  DatabaseConfig  `yaml:"database" json:"database" envPrefix:"DATABASE_"`
	HTTP      HTTPConfig      `yaml:"http" json:"http" envPrefix:"HTTP_"`
	WebSocket WebSocketConfig `yaml:"websocket" json:"websocket" envPrefix:"WEBSOCKET_"`
	Chat      ChatConfig      `yaml:"chat" json:"chat" envPrefix:"CHAT_"`
	Upload    UploadConfig    `yaml:"upload" json:"upload" envPrefix:"UPLOAD_"`
	Log       logger.Config   `yaml:"log" json:"log" envPrefix:"LOG_"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`
	Path   string `yaml:"path" json:"path" env:"PATH"`
	DSN    string `yaml:"dsn" json:"dsn" env:"DSN"`
	// Timeout bounds the startup connectivity check.
	Timeout        time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	MaxConnections int           `yaml:"max_connections" json:"max_connections" env:"MAX_CONNECTIONS"`
	MigrationsPath string        `yaml:"migrations_path" json:"migrations_path" env:"MIGRATIONS_PATH"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" json:"host" env:"HOST"`
	Port            int           `yaml:"port" json:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins" json:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval" env:"PING_INTERVAL"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	BufferSize   int           `yaml:"buffer_size" json:"buffer_size" env:"BUFFER_SIZE"`
	ReadLimit    int64         `yaml:"read_limit" json:"read_limit" env:"READ_LIMIT"`
}

type ChatConfig struct {
	RateLimit          int           `yaml:"rate_limit" json:"rate_limit" env:"RATE_LIMIT"`
	RateWindow         time.Duration `yaml:"rate_window" json:"rate_window" env:"RATE_WINDOW"`
	AdminHTTPRateLimit int           `yaml:"admin_http_rate_limit" json:"admin_http_rate_limit" env:"ADMIN_HTTP_RATE_LIMIT"`
	HistoryLimit       int           `yaml:"history_limit" json:"history_limit" env:"HISTORY_LIMIT"`
	AdminName          string        `yaml:"admin_name" json:"admin_name" env:"ADMIN_NAME"`
	// TimeZone decides the calendar day for the today/yesterday filters.
	TimeZone      string        `yaml:"time_zone" json:"time_zone" env:"TIME_ZONE"`
	EvictInterval time.Duration `yaml:"evict_interval" json:"evict_interval" env:"EVICT_INTERVAL"`
}

type UploadConfig struct {
	Dir       string `yaml:"dir" json:"dir" env:"DIR"`
	URLPrefix string `yaml:"url_prefix" json:"url_prefix" env:"URL_PREFIX"`
	MaxBytes  int64  `yaml:"max_bytes" json:"max_bytes" env:"MAX_BYTES"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:         dbconfig.DialectSQLite,
			Path:           "./data/chatdesk.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   100,
			ReadLimit:    1 << 20,
		},
		Chat: ChatConfig{
			RateLimit:          20,
			RateWindow:         time.Minute,
			AdminHTTPRateLimit: 60,
			HistoryLimit:       500,
			AdminName:          "Admin",
			TimeZone:           "Local",
			EvictInterval:      5 * time.Minute,
		},
		Upload: UploadConfig{
			Dir:       "./public/uploads/chat",
			URLPrefix: "/uploads/chat/",
			MaxBytes:  200 << 20,
		},
		Log: logger.DefaultConfig(),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.DatabaseConfig(); err != nil {
		return err
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.ReadLimit < 0 {
		return fmt.Errorf("WebSocket read limit cannot be negative")
	}

	if c.Chat.RateLimit <= 0 || c.Chat.RateWindow <= 0 {
		return fmt.Errorf("chat rate limit and window must be positive")
	}
	if c.Chat.AdminHTTPRateLimit <= 0 {
		return fmt.Errorf("admin HTTP rate limit must be positive")
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat history limit must be positive")
	}
	if strings.TrimSpace(c.Chat.AdminName) == "" {
		return fmt.Errorf("chat admin name cannot be empty")
	}
	if _, err := c.Chat.Location(); err != nil {
		return err
	}
	if c.Chat.EvictInterval <= 0 {
		return fmt.Errorf("limiter eviction interval must be positive")
	}

	if c.Upload.Dir == "" {
		return fmt.Errorf("upload directory cannot be empty")
	}
	if !strings.HasPrefix(c.Upload.URLPrefix, "/") || !strings.HasSuffix(c.Upload.URLPrefix, "/") {
		return fmt.Errorf("upload URL prefix must start and end with /")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload size limit must be positive")
	}

	return c.Log.Validate()
}

// Location resolves TimeZone.
func (c ChatConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid chat time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// DatabaseConfig maps the database section onto the store's connection
// config and validates it.
func (c *Config) DatabaseConfig() (*dbconfig.Config, error) {
	db := dbconfig.DefaultConfig()
	db.Driver = c.Database.Driver
	db.DatabasePath = c.Database.Path
	db.DSN = c.Database.DSN
	db.MigrationsPath = c.Database.MigrationsPath
	if c.Database.MaxConnections > 0 {
		db.MaxConnections = c.Database.MaxConnections
	}
	if err := db.Validate(); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return db, nil
}

// Address is the HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// Load builds the configuration with precedence defaults < environment
// (after loading envFiles, or .env when none are given) < the config file at
// path. path may be empty. The result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		// The default .env is optional.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// loadFile overlays the file at path onto cfg. Keys absent from the file
// keep their current values. JSON files are read with the YAML decoder,
// which accepts them and understands duration strings like "30s".
func loadFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
