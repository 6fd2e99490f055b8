// Package activity keeps a bounded, newest-first log of document events.
package activity

import (
	"sync"
	"time"
)

// Kind classifies an activity entry.
type Kind string

const (
	KindJoin    Kind = "join"
	KindLeave   Kind = "leave"
	KindEdit    Kind = "edit"
	KindComment Kind = "comment"
)

// DefaultCapacity matches the activity feed length of the editor shell.
const DefaultCapacity = 20

// Entry is one recorded document event.
type Entry struct {
	User        string
	Description string
	Kind        Kind
	Timestamp   time.Time
}

// Log is an append-only ring of entries, newest first. When the capacity is
// exceeded the oldest entries drop silently.
type Log struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
}

// NewLog creates a Log holding at most capacity entries. A non-positive
// capacity falls back to DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity}
}

// Append records an event at the head of the log.
func (l *Log) Append(user, description string, kind Kind) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		User:        user,
		Description: description,
		Kind:        kind,
		Timestamp:   time.Now(),
	}

	l.entries = append([]Entry{entry}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// Entries returns a copy of the log, newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
