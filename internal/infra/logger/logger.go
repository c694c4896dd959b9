package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"helpdesk-ai/internal/infra/config"
)

// Option customizes the logger built by New.
type Option func(*options)

type options struct {
	redact  func(string) string
	service string
}

// WithRedactor masks every string attribute value with fn before it is
// written. Used to keep user emails and phone numbers out of log files.
func WithRedactor(fn func(string) string) Option {
	return func(o *options) { o.redact = fn }
}

// WithService tags every record with service=name.
func WithService(name string) Option {
	return func(o *options) { o.service = name }
}

// New creates a configured *slog.Logger.
// The returned closer function should be deferred to flush/close file handles.
func New(cfg config.LoggerConfig, opts ...Option) (*slog.Logger, func() error, error) {
	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return build(writer, cfg, opts...), closer, nil
}

func build(w io.Writer, cfg config.LoggerConfig, opts ...Option) *slog.Logger {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	hopts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if o.redact != nil {
		redact := o.redact
		hopts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey || a.Value.Kind() != slog.KindString {
				return a
			}
			return slog.String(a.Key, redact(a.Value.String()))
		}
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, hopts)
	default:
		handler = slog.NewTextHandler(w, hopts)
	}

	l := slog.New(handler)
	if o.service != "" {
		l = l.With("service", o.service)
	}
	return l
}

// parseLevel converts a string level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// openOutput returns an io.Writer for the specified output target.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	case "discard":
		return io.Discard, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}
