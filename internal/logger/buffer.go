package logger

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// ringSize is how many recent entries the in-memory log ring retains.
const ringSize = 10000

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
	Caller    string    `json:"caller,omitempty"`
}

// Ring is a fixed-size circular buffer of recent log entries.
type Ring struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	count   int
}

var (
	globalRing *Ring
	ringOnce   sync.Once
)

// GetRing returns the process-wide log ring.
func GetRing() *Ring {
	ringOnce.Do(func() {
		globalRing = NewRing(ringSize)
	})
	return globalRing
}

// NewRing creates a ring holding up to size entries.
func NewRing(size int) *Ring {
	return &Ring{entries: make([]Entry, size)}
}

// Add records an entry, evicting the oldest when full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// Recent returns up to limit entries, newest first, filtered to entries at or
// above level (empty matches all) and newer than the since cutoff.
func (r *Ring) Recent(limit int, level string, since time.Duration) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	cutoff := time.Now().Add(-since)
	minPriority, filtered := levelPriority(level)

	out := make([]Entry, 0, limit)
	for i := 0; i < r.count && len(out) < limit; i++ {
		idx := (r.next - 1 - i + len(r.entries)) % len(r.entries)
		e := r.entries[idx]
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if filtered {
			if p, ok := levelPriority(e.Level); !ok || p < minPriority {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func levelPriority(level string) (int, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return 0, true
	case "INFO":
		return 1, true
	case "WARN", "WARNING":
		return 2, true
	case "ERROR":
		return 3, true
	case "FATAL":
		return 4, true
	}
	return 0, false
}

// captureWriter tees zerolog output into the ring.
type captureWriter struct {
	ring *Ring
	out  io.Writer
}

func newCaptureWriter(out io.Writer) *captureWriter {
	return &captureWriter{ring: GetRing(), out: out}
}

func (w *captureWriter) Write(p []byte) (int, error) {
	n := len(p)
	var err error
	if w.out != nil {
		n, err = w.out.Write(p)
	}
	if e, ok := parseLine(p); ok {
		w.ring.Add(e)
	}
	return n, err
}

// parseLine decodes a zerolog JSON line into an Entry. Console-formatted
// lines do not parse and are simply not captured.
func parseLine(p []byte) (Entry, bool) {
	var raw struct {
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
		Caller    string `json:"caller"`
		Time      string `json:"time"`
	}
	if err := json.Unmarshal(p, &raw); err != nil {
		return Entry{}, false
	}
	if raw.Level == "" && raw.Message == "" {
		return Entry{}, false
	}
	e := Entry{
		Timestamp: time.Now(),
		Level:     strings.ToUpper(raw.Level),
		Component: raw.Component,
		Message:   raw.Message,
		Caller:    raw.Caller,
	}
	if t, err := time.Parse(time.RFC3339, raw.Time); err == nil {
		e.Timestamp = t
	}
	return e, true
}
