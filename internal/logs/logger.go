// Package logs is the process-wide zerolog logger. It discards everything
// until Init is called, so packages can log freely from tests.
package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	logger     = zerolog.Nop()
	loggerLock sync.RWMutex
	logFile    *os.File
)

// Options configures Init.
type Options struct {
	Level   string // debug, info, warn, error
	Verbose bool   // also write human-readable lines to stderr
	Dir     string // log directory, the XDG state dir if empty
}

// Init opens the log file and installs the logger. Every line carries a
// session id so runs sharing a file can be told apart.
func Init(opts Options) (string, error) {
	dir := opts.Dir
	if dir == "" {
		var err error
		if dir, err = stateDir(); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, "stackdeck.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}

	var out io.Writer = f
	if opts.Verbose {
		out = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		})
	}

	level := opts.Level
	if env := os.Getenv("STACKDECK_LOG_LEVEL"); env != "" {
		level = env
	}

	loggerLock.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	logger = zerolog.New(out).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Str("session", uuid.NewString()).
		Logger()
	loggerLock.Unlock()

	return path, nil
}

// Close flushes and closes the log file.
func Close() error {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	logger = zerolog.Nop()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// SetLevel sets the log level at runtime.
func SetLevel(levelStr string) {
	loggerLock.Lock()
	logger = logger.Level(parseLogLevel(levelStr))
	loggerLock.Unlock()
}

func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
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

func stateDir() (string, error) {
	xdg := os.Getenv("XDG_STATE_HOME")
	if xdg == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		xdg = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(xdg, "stackdeck"), nil
}

func current() *zerolog.Logger {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	l := logger
	return &l
}

func Debug() *zerolog.Event { return current().Debug() }
func Info() *zerolog.Event  { return current().Info() }
func Warn() *zerolog.Event  { return current().Warn() }
func Error() *zerolog.Event { return current().Error() }

// Logger returns the underlying zerolog.Logger for integrations.
func Logger() zerolog.Logger {
	return *current()
}
