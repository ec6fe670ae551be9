// Package framelog implements the decoded-frame log: a time-ordered
// record of every CRC-accepted Mode S payload, kept only long enough
// to support Beast-style re-encapsulation and short-lookback
// debugging. Entries reference their aircraft by ICAO address rather
// than by pointer, and are resolved against the roster at read time.
package framelog

import (
	"sync"
	"time"
)

// Entry is one retained decoded frame.
type Entry struct {
	Raw       []byte // Mode-S payload as given: 14 bytes for a long frame, 7 for a short one (Log does not pad it)
	Tick      uint64
	ICAO      uint32 // non-owning back reference, resolved against the roster by the reader
	CreatedAt time.Time
}

// Log is a mutex-protected, time-ordered ring of recent decoded
// frames. Eviction runs on a try-lock so it never blocks a producer.
type Log struct {
	mu        sync.Mutex
	entries   []Entry // newest first
	deleteTTL time.Duration
	capacity  int
}

// New creates an empty frame log with the given TTL and a bound on
// the number of retained entries (a defensive cap; TTL eviction,
// using the same TTL as the aircraft roster, is the primary
// mechanism).
func New(deleteTTL time.Duration, capacity int) *Log {
	return &Log{deleteTTL: deleteTTL, capacity: capacity}
}

// Append prepends one entry to the log, trimming the oldest entry
// past capacity if set.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append([]Entry{e}, l.entries...)
	if l.capacity > 0 && len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// TryEvict drops entries older than the configured TTL, returning
// false without doing any work if the log is currently locked by a
// producer.
func (l *Log) TryEvict(now time.Time) bool {
	if !l.mu.TryLock() {
		return false
	}
	defer l.mu.Unlock()

	cut := len(l.entries)
	for i, e := range l.entries {
		if now.Sub(e.CreatedAt) > l.deleteTTL {
			cut = i
			break
		}
	}
	l.entries = l.entries[:cut]
	return true
}

// Snapshot returns a copy of the log's current entries, newest first.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// ForICAO returns the entries, newest first, whose back reference
// matches addr.
func (l *Log) ForICAO(addr uint32) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.ICAO == addr {
			out = append(out, e)
		}
	}
	return out
}
