package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls every named logger.
type Config struct {
	Level  string `yaml:"level" json:"level" env:"LEVEL"`
	Format string `yaml:"format" json:"format" env:"FORMAT"` // text | json
	Output string `yaml:"output" json:"output" env:"OUTPUT"` // stdout | file | both
	Path   string `yaml:"path" json:"path" env:"PATH"`

	// Rotation, in megabytes, files and days.
	MaxSize    int  `yaml:"max_size" json:"max_size" env:"MAX_SIZE"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups" env:"MAX_BACKUPS"`
	MaxAge     int  `yaml:"max_age" json:"max_age" env:"MAX_AGE"`
	Compress   bool `yaml:"compress" json:"compress" env:"COMPRESS"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Output:     "stdout",
		Path:       "./logs",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

// Validate rejects values the logger would silently misread.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Format)
	}
	switch c.Output {
	case "stdout", "file", "both":
	default:
		return fmt.Errorf("log output must be stdout, file or both, got %q", c.Output)
	}
	if c.Output != "stdout" && c.Path == "" {
		return fmt.Errorf("log path is required for file output")
	}
	return nil
}

var (
	mu      sync.Mutex
	config  *Config
	loggers = make(map[string]*logrus.Logger)
	files   []*lumberjack.Logger
)

// Init installs cfg for loggers created from now on. Loggers already handed
// out keep their settings.
func Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Output != "stdout" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	config = &cfg
	return nil
}

// Get returns the logger called name, creating it on first use. Names in
// use: app, http, ws, session, router, store, sweeper.
func Get(name string) *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()

	if config == nil {
		def := DefaultConfig()
		config = &def
	}
	if l, ok := loggers[name]; ok {
		return l
	}
	l := newLogger(name, *config)
	loggers[name] = l
	return l
}

// Component returns an entry tagged with the component name, the form every
// constructor in this module accepts.
func Component(name string) *logrus.Entry {
	return Get(name).WithField("component", name)
}

// Close flushes and closes rotating log files.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	var firstErr error
	for _, f := range files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	files = nil
	loggers = make(map[string]*logrus.Logger)
	return firstErr
}

func newLogger(name string, cfg Config) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				s := strings.Split(f.Function, ".")
				return s[len(s)-1], fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			},
		})
	}

	var writers []io.Writer
	if cfg.Output == "file" || cfg.Output == "both" {
		f := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Path, name+".log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		files = append(files, f)
		writers = append(writers, f)
	}
	if cfg.Output == "stdout" || cfg.Output == "both" {
		writers = append(writers, os.Stdout)
	}
	l.SetOutput(io.MultiWriter(writers...))
	return l
}
