// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging wraps log/slog with the handlers and runtime controls the
// daemon needs: a colourised console handler, a JSON handler, a trace level
// that can be toggled at runtime, and a reopenable log file for rotation.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Level is a log severity.
type Level = slog.Level

const (
	LevelTrace Level = slog.LevelDebug - 4
	LevelDebug Level = slog.LevelDebug
	LevelInfo  Level = slog.LevelInfo
	LevelWarn  Level = slog.LevelWarn
	LevelError Level = slog.LevelError
)

const timeFormat = "2006-01-02 15:04:05.000"

// Config controls logger construction.
type Config struct {
	Level Level
	// Output is used when File is empty. Defaults to stderr.
	Output io.Writer
	// File, when set, is opened in append mode and can be reopened with Reopen.
	File string
	JSON bool
	// NoColor disables ANSI colours on the console handler. Colours are
	// also disabled automatically when the output is not a terminal.
	NoColor bool
}

// DefaultConfig returns an info-level console configuration on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Logger is a slog.Logger carrying the shared level and output controls.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	base  Level
	file  *reopenFile
}

// New creates a logger. If cfg.File cannot be opened the logger falls back
// to stderr and reports the failure on it.
func New(cfg Config) *Logger {
	l, err := Open(cfg)
	if err != nil {
		fallback := cfg
		fallback.File = ""
		fallback.Output = os.Stderr
		l, _ = Open(fallback)
		l.Warn("Failed to open log file, using stderr", "file", cfg.File, "error", err)
	}
	return l
}

// Open creates a logger, returning an error if cfg.File cannot be opened.
func Open(cfg Config) (*Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Level)

	var (
		out  io.Writer = cfg.Output
		file *reopenFile
	)
	if cfg.File != "" {
		f, err := openReopenable(cfg.File)
		if err != nil {
			return nil, err
		}
		file = f
		out = f
	}
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:       levelVar,
			ReplaceAttr: replaceLevelName,
		})
	} else {
		handler = tint.NewHandler(out, &tint.Options{
			Level:       levelVar,
			TimeFormat:  timeFormat,
			NoColor:     cfg.NoColor || !isTerminal(out),
			ReplaceAttr: replaceConsoleLevel,
		})
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  levelVar,
		base:   cfg.Level,
		file:   file,
	}, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func replaceLevelName(groups []string, a slog.Attr) slog.Attr {
	return renameTrace(groups, a, "TRACE")
}

// replaceConsoleLevel uses tint's three-letter style.
func replaceConsoleLevel(groups []string, a slog.Attr) slog.Attr {
	return renameTrace(groups, a, "TRC")
}

func renameTrace(groups []string, a slog.Attr, name string) slog.Attr {
	if len(groups) > 0 || a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
		a.Value = slog.StringValue(name)
	}
	return a
}

// WithComponent returns a child logger tagged with component=name that
// shares level and output controls with its parent.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
		level:  l.level,
		base:   l.base,
		file:   l.file,
	}
}

// With returns a child logger carrying args that shares level and output
// controls with its parent.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		level:  l.level,
		base:   l.base,
		file:   l.file,
	}
}

// Trace logs at trace level.
func (l *Logger) Trace(msg string, args ...any) {
	l.Log(context.Background(), LevelTrace, msg, args...)
}

// Level returns the currently effective level.
func (l *Logger) Level() Level {
	return l.level.Level()
}

// ToggleTrace switches between trace level and the configured level and
// returns the level now in effect.
func (l *Logger) ToggleTrace() Level {
	if l.level.Level() == LevelTrace {
		l.level.Set(l.base)
	} else {
		l.level.Set(LevelTrace)
	}
	return l.level.Level()
}

// Reopen closes and reopens the log file so an external rotation takes
// effect. It is a no-op when logging to a stream.
func (l *Logger) Reopen() error {
	if l.file == nil {
		return nil
	}
	return l.file.reopen()
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.close()
}

// ParseLevel converts a textual level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type reopenFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func openReopenable(path string) (*reopenFile, error) {
	r := &reopenFile{path: path}
	if err := r.reopen(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *reopenFile) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func (r *reopenFile) reopen() error {
	f, err := r.open()
	if err != nil {
		return err
	}
	r.mu.Lock()
	old := r.f
	r.f = f
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

func (r *reopenFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	return r.f.Write(p)
}

func (r *reopenFile) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(DefaultConfig()))
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger and the slog default.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
	slog.SetDefault(l.Logger)
}

// WithComponent returns a component logger derived from the default logger.
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}

// Since is a convenience attribute for elapsed durations.
func Since(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
