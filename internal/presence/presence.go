// Package presence maintains the live participant set and their cursors
// for one open document.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/hsinyu-ko/coedit/internal/activity"
	"github.com/hsinyu-ko/coedit/internal/models"
)

// DefaultCursorTTL is how long a remote cursor stays visible without a
// refreshing cursor message. Participant membership is not affected by
// cursor expiry; only an explicit leave removes a participant.
const DefaultCursorTTL = 5 * time.Second

// Tracker owns presence state for a single session. All methods are safe
// for use from timer callbacks and the channel read loop.
type Tracker struct {
	mu           sync.Mutex
	ttl          time.Duration
	participants map[int64]models.Participant
	cursors      map[int64]models.Cursor
	timers       map[int64]*time.Timer
	log          *activity.Log
	closed       bool
}

// NewTracker creates a Tracker. A non-positive ttl falls back to
// DefaultCursorTTL. Join and leave events are appended to log when it is
// non-nil.
func NewTracker(ttl time.Duration, log *activity.Log) *Tracker {
	if ttl <= 0 {
		ttl = DefaultCursorTTL
	}
	return &Tracker{
		ttl:          ttl,
		participants: make(map[int64]models.Participant),
		cursors:      make(map[int64]models.Cursor),
		timers:       make(map[int64]*time.Timer),
		log:          log,
	}
}

// Join upserts a participant and records a join activity entry.
func (t *Tracker) Join(p models.Participant) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.participants[p.ID] = p

	if t.log != nil {
		t.log.Append(p.Username, "joined the document", activity.KindJoin)
	}
}

// Leave removes a participant, drops any cursor tracked for it and records
// a leave activity entry. The username parameter covers the case where the
// participant was never seen joining.
func (t *Tracker) Leave(id int64, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	if p, ok := t.participants[id]; ok && p.Username != "" {
		username = p.Username
	}
	delete(t.participants, id)
	t.dropCursorLocked(id)

	if t.log != nil {
		t.log.Append(username, "left the document", activity.KindLeave)
	}
}

// UpdateCursor upserts a participant's cursor and re-arms its expiry
// timer. A later update cancels and replaces the previous timer, so at
// most one expiry is ever pending per participant.
func (t *Tracker) UpdateCursor(id int64, position, selectionStart, selectionEnd int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	t.cursors[id] = models.Cursor{
		Position:       position,
		SelectionStart: selectionStart,
		SelectionEnd:   selectionEnd,
		LastUpdated:    time.Now(),
	}

	if timer, ok := t.timers[id]; ok {
		timer.Stop()
	}
	t.timers[id] = time.AfterFunc(t.ttl, func() { t.expireCursor(id) })
}

// expireCursor removes a cursor whose TTL elapsed without a refresh.
func (t *Tracker) expireCursor(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.dropCursorLocked(id)
}

func (t *Tracker) dropCursorLocked(id int64) {
	delete(t.cursors, id)
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
}

// Reset replaces the entire participant set, dropping all cursors and
// pending expiries first. Used when a document_load reseeds presence after
// connect or reconnect; stale state is cleared, never merged.
func (t *Tracker) Reset(participants []models.Participant) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	for id := range t.timers {
		t.timers[id].Stop()
	}
	t.participants = make(map[int64]models.Participant, len(participants))
	t.cursors = make(map[int64]models.Cursor)
	t.timers = make(map[int64]*time.Timer)

	for _, p := range participants {
		t.participants[p.ID] = p
	}
}

// Participant returns the participant with the given id.
func (t *Tracker) Participant(id int64) (models.Participant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.participants[id]
	return p, ok
}

// Participants returns the participant set ordered by id.
func (t *Tracker) Participants() []models.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.Participant, 0, len(t.participants))
	for _, p := range t.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cursor returns the live cursor of a participant, if any.
func (t *Tracker) Cursor(id int64) (models.Cursor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.cursors[id]
	return c, ok
}

// Cursors returns a copy of all live cursors keyed by participant id.
func (t *Tracker) Cursors() map[int64]models.Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int64]models.Cursor, len(t.cursors))
	for id, c := range t.cursors {
		out[id] = c
	}
	return out
}

// Close cancels every pending expiry timer. The tracker ignores all calls
// afterwards, so a stale timer can never fire into a torn-down session.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for id := range t.timers {
		t.timers[id].Stop()
	}
	t.timers = make(map[int64]*time.Timer)
}
