// Package logging configures log/slog for the whole process and hands out
// named loggers that carry the request ID found in the context.
package logging

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
	// Output is stdout, stderr or discard. Ignored when Writer is set.
	Output string    `yaml:"output"`
	Writer io.Writer `yaml:"-"`
}

var (
	mu      sync.RWMutex
	current slog.Handler = slog.NewTextHandler(io.Discard, nil)
)

// Configure replaces the process-wide handler. Loggers obtained before the
// call keep their old handler.
func Configure(cfg Config) {
	out := cfg.Writer
	if out == nil {
		switch strings.ToLower(cfg.Output) {
		case "discard":
			out = io.Discard
		case "stdout":
			out = os.Stdout
		default:
			out = os.Stderr
		}
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	h = &contextHandler{h: h}

	mu.Lock()
	current = h
	mu.Unlock()

	slog.SetDefault(slog.New(h))
}

// GetLogger returns a logger tagged with the component name.
func GetLogger(name string) *slog.Logger {
	mu.RLock()
	h := current
	mu.RUnlock()
	return slog.New(h).With("logger", name)
}

// StdLogger adapts a named logger for code that wants a *log.Logger, such as
// http.Server.ErrorLog.
func StdLogger(name string, level slog.Level) *log.Logger {
	return slog.NewLogLogger(GetLogger(name).Handler(), level)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type ctxKey struct{}

// WithRequestID stores the request ID so every record logged with ctx carries it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type contextHandler struct {
	h slog.Handler
}

func (c *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return c.h.Enabled(ctx, level)
}

func (c *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return c.h.Handle(ctx, r)
}

func (c *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{h: c.h.WithAttrs(attrs)}
}

func (c *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{h: c.h.WithGroup(name)}
}
