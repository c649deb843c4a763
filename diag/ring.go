// Package diag keeps the most recent log records in memory so the debug
// console can show them without a serial cable.
package diag

import (
	"log/slog"
	"sync"
	"time"
)

// RingSize is the number of records a Ring holds.
const RingSize = 16

// Entry is one compacted log record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// Ring is a fixed-size circular queue of entries. The oldest entry is
// overwritten when full.
type Ring struct {
	mu      sync.Mutex
	entries [RingSize]Entry
	head    int
	count   int
}

// Add appends e.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	idx := (r.head + r.count) % RingSize
	r.entries[idx] = e
	if r.count < RingSize {
		r.count++
	} else {
		r.head = (r.head + 1) % RingSize
	}
	r.mu.Unlock()
}

// Recent returns the held entries, oldest first.
func (r *Ring) Recent() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, r.count)
	for i := range out {
		out[i] = r.entries[(r.head+i)%RingSize]
	}
	return out
}

// Len returns the number of held entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Reset drops all entries.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.head, r.count = 0, 0
	r.mu.Unlock()
}
