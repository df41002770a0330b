package testsupport

import (
	"context"
	"log/slog"
	"sync"
)

// LogRecord is a captured log line with its attributes flattened.
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

type recordingState struct {
	mu      sync.Mutex
	records []LogRecord
}

// RecordingHandler is a slog.Handler that keeps every record in memory.
// Handlers derived with WithAttrs share the same record list.
type RecordingHandler struct {
	state *recordingState
	attrs []slog.Attr
	group string
}

// NewRecordingLogger returns a debug level logger and its handler.
func NewRecordingLogger() (*slog.Logger, *RecordingHandler) {
	h := &RecordingHandler{state: &recordingState{}}
	return slog.New(h), h
}

func (h *RecordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *RecordingHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		attrs[key] = a.Value.Resolve().Any()
		return true
	})

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.records = append(h.state.records, LogRecord{
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

func (h *RecordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *RecordingHandler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group != "" {
		name = next.group + "." + name
	}
	next.group = name
	return &next
}

// Records returns a copy of everything logged so far.
func (h *RecordingHandler) Records() []LogRecord {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return append([]LogRecord(nil), h.state.records...)
}

// AtLevel returns the records logged at exactly level.
func (h *RecordingHandler) AtLevel(level slog.Level) []LogRecord {
	var out []LogRecord
	for _, r := range h.Records() {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the first record with msg.
func (h *RecordingHandler) Find(msg string) (LogRecord, bool) {
	for _, r := range h.Records() {
		if r.Message == msg {
			return r, true
		}
	}
	return LogRecord{}, false
}

// Reset drops every captured record.
func (h *RecordingHandler) Reset() {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.records = nil
}
