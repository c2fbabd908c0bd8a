// Package logging wires the application's structured JSON loggers: a
// general app logger, an access logger for per-request records, and an
// error logger for failed requests. Each writes to its own rotating file
// under the configured log directory, mirroring the three-logger split of
// the service's log layout.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log destinations and rotation.
type Config struct {
	// Level applies to the app logger; access and error loggers always
	// emit their single record per request.
	Level string
	Dir   string
	// MaxBytes is the rotation threshold per file; BackupCount the number
	// of rotated files kept.
	MaxBytes    int
	BackupCount int
	// Console mirrors the app logger to stdout (development).
	Console bool
}

// Loggers bundles the three process loggers.
type Loggers struct {
	App    zerolog.Logger
	Access zerolog.Logger
	Error  zerolog.Logger
}

// New creates the log directory and the three rotating loggers.
func New(cfg Config) (*Loggers, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}

	level := parseLevel(cfg.Level)

	appOut := rotatingWriter(cfg, "app.log")
	if cfg.Console {
		appOut = zerolog.MultiLevelWriter(appOut, zerolog.ConsoleWriter{Out: os.Stdout})
	}

	return &Loggers{
		App:    zerolog.New(appOut).Level(level).With().Timestamp().Logger(),
		Access: zerolog.New(rotatingWriter(cfg, "access.log")).With().Timestamp().Logger(),
		Error:  zerolog.New(rotatingWriter(cfg, "error.log")).With().Timestamp().Logger(),
	}, nil
}

// Discard returns loggers that drop everything. Used in tests and as a
// default before New runs.
func Discard() *Loggers {
	nop := zerolog.New(io.Discard)
	return &Loggers{App: nop, Access: nop, Error: nop}
}

func rotatingWriter(cfg Config, name string) io.Writer {
	maxMB := cfg.MaxBytes / (1024 * 1024)
	if maxMB < 1 {
		maxMB = 1
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    maxMB,
		MaxBackups: cfg.BackupCount,
	}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
