package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// MemoryHandler keeps the most recent log records in a ring buffer so
// the API server can expose them for diagnostics without any
// persistence.
type MemoryHandler struct {
	mu       sync.Mutex
	minLevel slog.Level
	entries  []LogEntry
	next     int
	full     bool
}

func NewMemoryHandler(minLevel slog.Level, maxEntries int) *MemoryHandler {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryHandler{
		minLevel: minLevel,
		entries:  make([]LogEntry, maxEntries),
	}
}

func (h *MemoryHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.minLevel {
		return nil
	}

	var attrs map[string]string
	r.Attrs(func(a slog.Attr) bool {
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[a.Key] = a.Value.String()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = LogEntry{
		Timestamp: time.Now(),
		Level:     r.Level.String(),
		Message:   r.Message,
		Attrs:     attrs,
	}
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.full = true
	}
	return nil
}

// Entries returns the buffered records, oldest first.
func (h *MemoryHandler) Entries() []LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		out := make([]LogEntry, h.next)
		copy(out, h.entries[:h.next])
		return out
	}
	out := make([]LogEntry, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	out = append(out, h.entries[:h.next]...)
	return out
}

func (h *MemoryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *MemoryHandler) WithGroup(name string) slog.Handler {
	return h
}

func (h *MemoryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel
}
