// Package logging builds the slog loggers used by services. User facing
// output goes through pkg/ui; these logs are diagnostics on stderr.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Standardized attribute keys
const (
	FieldComponent = "component"
	FieldProjectID = "project_id"
	FieldCardID    = "card_id"
	FieldPath      = "path"
	FieldOp        = "op"
)

// Options describes logger construction parameters
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// New constructs a slog logger using the provided options
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(out, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), nil
	}
	return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
}

// ParseLevel maps a config string to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log level: unsupported value %q", s)
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

// NewNop returns a logger that discards everything
func NewNop() *slog.Logger {
	return slog.New(nopHandler{})
}

// Component tags a logger with a component name. A nil logger becomes a no-op.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(slog.String(FieldComponent, name))
}

// Error is a convenience attribute for errors
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
