// Package logger builds the relay's structured logger: slog writing to
// stdout and, optionally, a log file, with level-colored output when
// stdout is an interactive terminal.
package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// New builds a slog.Logger at the given level ("debug", "info", "warn",
// "error"), writing to stdout and, if logFile is non-empty, appending to
// that file as well.
func New(level string, logFile string) (*slog.Logger, error) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	}

	if len(writers) == 1 && isatty.IsTerminal(os.Stdout.Fd()) {
		return slog.New(newColorHandler(writers[0], opts)), nil
	}
	return slog.New(slog.NewTextHandler(io.MultiWriter(writers...), opts)), nil
}

// colorHandler prefixes each record with an ANSI color keyed to its
// level. Only used when stdout is a real terminal; a log file or pipe
// always gets the plain slog.TextHandler form.
type colorHandler struct {
	opts   *slog.HandlerOptions
	out    io.Writer
	attrs  []slog.Attr
	groups []string
}

func newColorHandler(w io.Writer, opts *slog.HandlerOptions) *colorHandler {
	return &colorHandler{opts: opts, out: w}
}

func (h *colorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts == nil || h.opts.Level == nil {
		return level >= slog.LevelInfo
	}
	return level >= h.opts.Level.Level()
}

// formatter rebuilds a plain TextHandler pointed at buf with this
// handler's accumulated WithAttrs/WithGroup state replayed onto it.
func (h *colorHandler) formatter(buf *bytes.Buffer) slog.Handler {
	var hh slog.Handler = slog.NewTextHandler(buf, h.opts)
	for _, g := range h.groups {
		hh = hh.WithGroup(g)
	}
	if len(h.attrs) > 0 {
		hh = hh.WithAttrs(h.attrs)
	}
	return hh
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf bytes.Buffer
	if err := h.formatter(&buf).Handle(ctx, r); err != nil {
		return err
	}
	fmt.Fprintf(h.out, "%s%s\x1b[0m", levelColor(r.Level), buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\x1b[31m"
	case l >= slog.LevelWarn:
		return "\x1b[33m"
	case l >= slog.LevelInfo:
		return ""
	default:
		return "\x1b[90m"
	}
}
