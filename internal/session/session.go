// Package session implements the per-document editing session: local text
// state, the typing coordinator that defers remote updates while input is
// in flight, and dispatch of inbound channel messages.
//
// One Session is created when a document view opens and closed when it
// closes. All mutable state lives on the Session; there are no package
// globals. Handlers, timers and the channel read loop serialize through
// one mutex, so no two of them ever mutate session state concurrently.
package session

import (
	"sync"
	"time"

	"github.com/hsinyu-ko/coedit/internal/activity"
	"github.com/hsinyu-ko/coedit/internal/diff"
	"github.com/hsinyu-ko/coedit/internal/logging"
	"github.com/hsinyu-ko/coedit/internal/models"
	"github.com/hsinyu-ko/coedit/internal/presence"
	"github.com/hsinyu-ko/coedit/internal/protocol"
)

// Sender queues an outbound frame for best-effort delivery.
type Sender interface {
	Send(data []byte)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(data []byte)

// Send implements Sender.
func (f SenderFunc) Send(data []byte) { f(data) }

// Config tunes a session. Durations are tunable constants, not hard
// requirements; the defaults mirror the editor shell's behavior.
type Config struct {
	DocumentID string
	UserID     int64
	Username   string

	// TypingIdle is how long after the last keystroke the user counts as
	// still typing. While typing, remote edits are deferred.
	TypingIdle time.Duration
	// EditDebounce batches local content changes into one broadcast.
	EditDebounce time.Duration
	// CursorDebounce batches local cursor moves into one broadcast.
	CursorDebounce time.Duration
	// CursorTTL is how long remote cursors live without a refresh.
	CursorTTL time.Duration
	// ActivityCap bounds the activity feed length.
	ActivityCap int
}

func (c *Config) applyDefaults() {
	if c.TypingIdle <= 0 {
		c.TypingIdle = 500 * time.Millisecond
	}
	if c.EditDebounce <= 0 {
		c.EditDebounce = 200 * time.Millisecond
	}
	if c.CursorDebounce <= 0 {
		c.CursorDebounce = 150 * time.Millisecond
	}
	if c.CursorTTL <= 0 {
		c.CursorTTL = presence.DefaultCursorTTL
	}
	if c.ActivityCap <= 0 {
		c.ActivityCap = activity.DefaultCapacity
	}
}

// pendingRemoteUpdate is the single deferred remote edit. A newer remote
// edit overwrites it; deferred updates are never queued or merged.
type pendingRemoteUpdate struct {
	content        string
	originUsername string
}

// Session owns all state for one open document view.
type Session struct {
	cfg    Config
	sender Sender

	mu          sync.Mutex
	content     string
	title       string
	lastSent    string
	localCursor models.Cursor
	isTyping    bool
	isComposing bool
	pending     *pendingRemoteUpdate
	connected   bool
	closed      bool

	typingTimer *time.Timer
	editTimer   *time.Timer
	cursorTimer *time.Timer

	presence *presence.Tracker
	activity *activity.Log
	comments []models.Comment
}

// New creates a session bound to a sender. The session is inert until the
// first document_load message seeds its content.
func New(cfg Config, sender Sender) *Session {
	cfg.applyDefaults()
	if sender == nil {
		sender = SenderFunc(func([]byte) {})
	}

	log := activity.NewLog(cfg.ActivityCap)
	return &Session{
		cfg:      cfg,
		sender:   sender,
		presence: presence.NewTracker(cfg.CursorTTL, log),
		activity: log,
	}
}

// SetSender swaps the outbound sender. Used when the channel is built
// after the session, since each needs a reference to the other.
func (s *Session) SetSender(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sender != nil {
		s.sender = sender
	}
}

// UpdateContent records a local input event: the full post-edit content
// and the caret position. It marks the user as typing and schedules the
// debounced edit broadcast.
func (s *Session) UpdateContent(content string, cursor int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.content = content
	s.localCursor.Position = diff.ClampCursor(cursor, content)
	s.markTypingLocked()
	s.scheduleEditFlushLocked()
}

// SetCursor records the local caret and selection and schedules the
// debounced cursor broadcast.
func (s *Session) SetCursor(position, selectionStart, selectionEnd int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.localCursor.Position = diff.ClampCursor(position, s.content)
	s.localCursor.SelectionStart = selectionStart
	s.localCursor.SelectionEnd = selectionEnd

	if s.cursorTimer != nil {
		s.cursorTimer.Stop()
	}
	s.cursorTimer = time.AfterFunc(s.cfg.CursorDebounce, s.cursorFlush)
}

// CompositionStart marks an IME composition as in progress. Remote edits
// are deferred until the composition ends.
func (s *Session) CompositionStart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.isComposing = true
}

// CompositionEnd clears the composing flag and immediately applies any
// deferred remote update.
func (s *Session) CompositionEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.isComposing = false
	s.applyPendingLocked()
}

// Blur clears the typing flag when the editor loses focus and applies any
// deferred remote update.
func (s *Session) Blur() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.isTyping = false
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.applyPendingLocked()
}

// AddComment broadcasts a comment anchored at the current caret position.
// The comment list is appended when the backend echoes it back.
func (s *Session) AddComment(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.encodeAndSendLocked(protocol.Comment{Content: content, Position: s.localCursor.Position})
}

// SetConnected records channel connectivity for the passive indicator.
func (s *Session) SetConnected(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = up
}

// Close tears the session down, cancelling the typing debounce, any
// scheduled broadcasts and every presence expiry timer. All later calls
// are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, timer := range []*time.Timer{s.typingTimer, s.editTimer, s.cursorTimer} {
		if timer != nil {
			timer.Stop()
		}
	}
	s.typingTimer, s.editTimer, s.cursorTimer = nil, nil, nil
	s.mu.Unlock()

	s.presence.Close()
}

// markTypingLocked flips the typing flag and re-arms the idle debounce.
func (s *Session) markTypingLocked() {
	s.isTyping = true
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.cfg.TypingIdle, s.typingIdle)
}

// typingIdle fires when no keystroke arrived for TypingIdle.
func (s *Session) typingIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.isTyping = false
	s.applyPendingLocked()
}

// scheduleEditFlushLocked re-arms the single debounced edit broadcast.
func (s *Session) scheduleEditFlushLocked() {
	if s.editTimer != nil {
		s.editTimer.Stop()
	}
	s.editTimer = time.AfterFunc(s.cfg.EditDebounce, s.editFlush)
}

// editFlush broadcasts the local content if it changed since the last
// broadcast or remote apply.
func (s *Session) editFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.content == s.lastSent {
		return
	}
	s.encodeAndSendLocked(protocol.Edit{Content: s.content})
	s.lastSent = s.content
}

// cursorFlush broadcasts the local caret and selection.
func (s *Session) cursorFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.encodeAndSendLocked(protocol.Cursor{
		Position:       s.localCursor.Position,
		SelectionStart: s.localCursor.SelectionStart,
		SelectionEnd:   s.localCursor.SelectionEnd,
	})
}

// applyPendingLocked applies the deferred remote update once no local
// input is in flight.
func (s *Session) applyPendingLocked() {
	if s.isTyping || s.isComposing || s.pending == nil {
		return
	}
	update := s.pending
	s.pending = nil
	s.applyRemoteLocked(update.content, update.originUsername)
}

// applyRemoteLocked folds remote content into the local text, remapping
// the local caret across the changed region.
func (s *Session) applyRemoteLocked(content, username string) {
	if content == s.content {
		return
	}

	patch := diff.Compute(s.content, content)
	cursor := diff.RemapCursor(s.localCursor.Position, patch)

	s.content = diff.Apply(s.content, patch)
	s.lastSent = s.content
	s.localCursor.Position = diff.ClampCursor(cursor, s.content)
	s.localCursor.SelectionStart = diff.ClampCursor(s.localCursor.SelectionStart, s.content)
	s.localCursor.SelectionEnd = diff.ClampCursor(s.localCursor.SelectionEnd, s.content)

	logging.Debug("applied remote update", map[string]interface{}{
		"origin":  username,
		"removed": len(patch.Removed),
		"added":   len(patch.Inserted),
	})
}

// encodeAndSendLocked serializes and queues one outbound message.
// Delivery is best-effort; the sender drops frames while disconnected.
func (s *Session) encodeAndSendLocked(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		logging.Error("encode outbound message", err)
		return
	}
	s.sender.Send(data)
}

// Content returns the current local document text.
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// Title returns the document title from the last document_load.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Cursor returns the local caret and selection.
func (s *Session) Cursor() models.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localCursor
}

// IsTyping reports whether local keystrokes were observed within the idle
// window.
func (s *Session) IsTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTyping
}

// IsComposing reports whether an IME composition is in progress.
func (s *Session) IsComposing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isComposing
}

// IsConnected reports last known channel connectivity.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// HasPendingRemote reports whether a remote update is deferred.
func (s *Session) HasPendingRemote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Participants returns the live participant set.
func (s *Session) Participants() []models.Participant {
	return s.presence.Participants()
}

// RemoteCursors returns the live remote cursors keyed by participant id.
func (s *Session) RemoteCursors() map[int64]models.Cursor {
	return s.presence.Cursors()
}

// Comments returns a copy of the comment list, oldest first.
func (s *Session) Comments() []models.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Comment, len(s.comments))
	copy(out, s.comments)
	return out
}

// Activities returns the activity feed, newest first.
func (s *Session) Activities() []activity.Entry {
	return s.activity.Entries()
}
