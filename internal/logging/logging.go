// Package logging provides centralized slog configuration for twinbridge.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *slog.Logger
	globalMu     sync.RWMutex

	// fileWriter is the rotating log file, if any, kept for Close.
	fileWriter   io.WriteCloser
	fileWriterMu sync.Mutex

	// allowedComponents is nil when every component is logged.
	allowedComponents map[string]bool
	componentsMu      sync.RWMutex
)

// FileConfig holds configuration for the rotating log file.
type FileConfig struct {
	// Path is the log file. Empty disables file logging.
	Path string
	// Level overrides Config.Level for the file when set.
	Level string
	// MaxSizeMB is the size that triggers rotation. Default: 10.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Default: 3.
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool
}

// Config holds logging configuration.
type Config struct {
	// Level is the minimum console level (debug, info, warn, error).
	Level string
	// Console is where console records go. Default: os.Stderr.
	Console io.Writer
	// File enables a rotating log file in addition to the console.
	File *FileConfig
	// JSON selects the JSON handler instead of the text handler.
	JSON bool
	// Components restricts output to the named components (empty means all).
	Components []string
}

// Initialize sets up the global logger and makes it the slog default.
// Calling it again replaces the previous configuration and closes the
// previous log file.
func Initialize(cfg Config) error {
	setComponents(cfg.Components)

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	consoleLevel := parseLevel(cfg.Level)

	newHandler := func(w io.Writer, level slog.Level) slog.Handler {
		opts := &slog.HandlerOptions{Level: level}
		if cfg.JSON {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}

	handler := newHandler(console, consoleLevel)

	fileWriterMu.Lock()
	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	if cfg.File != nil && cfg.File.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    orDefault(cfg.File.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.File.MaxBackups, 3),
			Compress:   cfg.File.Compress,
		}
		fileWriter = lj

		fileLevel := consoleLevel
		if cfg.File.Level != "" {
			fileLevel = parseLevel(cfg.File.Level)
		}
		handler = &fanoutHandler{handlers: []slog.Handler{handler, newHandler(lj, fileLevel)}}
	}
	fileWriterMu.Unlock()

	logger := slog.New(handler)

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()

	slog.SetDefault(logger)
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func setComponents(components []string) {
	componentsMu.Lock()
	defer componentsMu.Unlock()
	if len(components) == 0 {
		allowedComponents = nil
		return
	}
	allowedComponents = make(map[string]bool, len(components))
	for _, c := range components {
		allowedComponents[c] = true
	}
}

// fanoutHandler sends records to several handlers, each with its own level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: handlers}
}

// Get returns the global logger, or slog.Default() before Initialize.
func Get() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// Close closes the log file, if one is open.
func Close() error {
	fileWriterMu.Lock()
	defer fileWriterMu.Unlock()

	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

// parseLevel converts a string level to slog.Level. Unknown values mean info.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isComponentAllowed(component string) bool {
	componentsMu.RLock()
	defer componentsMu.RUnlock()

	if allowedComponents == nil {
		return true
	}
	return allowedComponents[component]
}

// componentFilterHandler drops records of components that are filtered out.
// The filter is checked at log time, so loggers created before Initialize
// follow later configuration changes.
type componentFilterHandler struct {
	component string
	attrs     []slog.Attr
	groups    []string
}

func (h *componentFilterHandler) inner() slog.Handler {
	handler := Get().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	return handler
}

func (h *componentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if !isComponentAllowed(h.component) {
		return false
	}
	return h.inner().Enabled(ctx, level)
}

func (h *componentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	if !isComponentAllowed(h.component) {
		return nil
	}
	return h.inner().Handle(ctx, r)
}

func (h *componentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *componentFilterHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

// WithComponent returns a logger tagged with component. Records are dropped
// when component filtering is enabled and component is not allowed.
func WithComponent(component string) *slog.Logger {
	return slog.New(&componentFilterHandler{component: component})
}

// Client returns a logger for REST client events.
func Client() *slog.Logger {
	return WithComponent("client")
}

// Session returns a logger for real-time session events.
func Session() *slog.Logger {
	return WithComponent("session")
}

// CLI returns a logger for command-line events.
func CLI() *slog.Logger {
	return WithComponent("cli")
}

// WithUser returns a child logger that includes user_id in all records.
func WithUser(base *slog.Logger, userID string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With("user_id", userID)
}

// WithConversation returns a child logger scoped to one agent conversation.
func WithConversation(base *slog.Logger, agentID, conversationID string) *slog.Logger {
	if base == nil {
		return nil
	}
	if conversationID == "" {
		return base.With("agent_id", agentID)
	}
	return base.With("agent_id", agentID, "conversation_id", conversationID)
}
