package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	mu       sync.Mutex
	out      = &sink{w: os.Stderr}
)

// sink is the writer behind every handler. Loggers handed out earlier keep
// writing to whatever output is current, so Close never leaves them on a
// closed file.
type sink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *sink) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func newRoot() *slog.Logger {
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: levelVar}))
}

// SetDebug enables or disables debug level logging
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// Init directs log output to the file at path. An empty path logs to stderr.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if root == nil {
		root = newRoot()
	}
	if path == "" {
		out.set(os.Stderr)
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	out.set(f)
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	root.Info("logger initialized", "path", path)
	return nil
}

// InitWriter directs log output to w. Used by tests.
func InitWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = newRoot()
	}
	out.set(w)
}

// Get returns the root logger instance.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = newRoot()
	}
	return root
}

// WithComponent returns a logger with the component name attached.
//
// Example:
//
//	log := logger.WithComponent("session")
//	log.Info("session created", "user", name)
//	// Output: level=INFO msg="session created" component=session user=admin
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Close closes the log file, if any, and falls back to stderr.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	out.set(os.Stderr)
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Reset resets the logger state, allowing reinitialization.
// This is primarily for testing purposes.
func Reset() {
	Close()
	levelVar.Set(slog.LevelInfo)
}
