// Package log builds the daemon's slog.Logger and the wire logger that
// records raw protocol lines.
//
// Console output is split by severity: records below error go to stdout,
// error and above to stderr, so a service manager can collect the two
// streams separately. When a log file is configured the console collapses
// to stderr and the file receives everything at the configured level.
// The trace level sits below debug and additionally switches on wire
// logging in cmd/vestd.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LevelTrace is the wire-dump level, below slog.LevelDebug.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps the CLI level names onto slog levels. Unknown names
// and the empty string mean info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsTrace reports whether the configured level name enables trace output
// and, with it, wire logging.
func IsTrace(s string) bool { return ParseLevel(s) <= LevelTrace }

// splitHandler routes each record to one of two handlers by severity:
// error and above to high, everything else to low.
type splitHandler struct {
	low  slog.Handler
	high slog.Handler
}

func (s splitHandler) pick(level slog.Level) slog.Handler {
	if level >= slog.LevelError {
		return s.high
	}
	return s.low
}

func (s splitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.pick(level).Enabled(ctx, level)
}

func (s splitHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.pick(r.Level).Handle(ctx, r)
}

func (s splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return splitHandler{low: s.low.WithAttrs(attrs), high: s.high.WithAttrs(attrs)}
}

func (s splitHandler) WithGroup(name string) slog.Handler {
	return splitHandler{low: s.low.WithGroup(name), high: s.high.WithGroup(name)}
}

// teeHandler duplicates records to every sink.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r)
		}
	}
	return nil
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// SetupLogger builds the daemon logger for the given level name and
// optional file path. The returned closers own the file handle, if any.
func SetupLogger(levelName, filePath string) (*slog.Logger, []io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelName)}

	if filePath == "" {
		h := splitHandler{
			low:  slog.NewTextHandler(os.Stdout, opts),
			high: slog.NewTextHandler(os.Stderr, opts),
		}
		return slog.New(h), nil, nil
	}

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	h := teeHandler{
		slog.NewTextHandler(os.Stderr, opts),
		slog.NewTextHandler(f, opts),
	}
	return slog.New(h), []io.Closer{f}, nil
}
