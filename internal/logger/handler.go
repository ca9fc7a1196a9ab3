package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// severityHandler implements slog.Handler directly rather than wrapping
// slog.NewTextHandler/NewJSONHandler, since both output formats rename
// "level" to "severity" and use the five-rung TRACE..ERROR ladder instead
// of slog's four built-in levels.
type severityHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  *slog.LevelVar
	format string // "text" or "json"
	prefix string
	attrs  []slog.Attr
}

func newSeverityHandler(w io.Writer, level *slog.LevelVar, format, prefix string) *severityHandler {
	return &severityHandler{mu: &sync.Mutex{}, w: w, level: level, format: format, prefix: prefix}
}

func (h *severityHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *severityHandler) Handle(_ context.Context, r slog.Record) error {
	msg := h.prefix + r.Message
	var line string
	if h.format == "json" {
		line = fmt.Sprintf(`{"timestamp":{"seconds":%d,"nanos":%d},"severity":%q,"message":%q}`,
			r.Time.Unix(), r.Time.Nanosecond(), severityName(r.Level), msg)
	} else {
		line = fmt.Sprintf("time=%q severity=%s message=%q", r.Time.Format(timeLayout), severityName(r.Level), msg)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, line)
	return err
}

const timeLayout = "2006/01/02 15:04:05.000000"

func (h *severityHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *severityHandler) WithGroup(name string) slog.Handler {
	return h
}

var _ slog.Handler = (*severityHandler)(nil)

// loggerFactory builds handlers for the configured output format, shared
// by every named logger the core creates (§9 ambient logging).
type loggerFactory struct {
	format string
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	return newSeverityHandler(w, level, f.format, prefix)
}
