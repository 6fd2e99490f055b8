package session

import (
	stderrors "errors"
	"time"

	"github.com/hsinyu-ko/coedit/internal/activity"
	"github.com/hsinyu-ko/coedit/internal/logging"
	"github.com/hsinyu-ko/coedit/internal/models"
	"github.com/hsinyu-ko/coedit/internal/protocol"
)

// HandleMessage decodes and dispatches one inbound frame. Malformed frames
// and frames with an unknown type tag are logged and dropped; they never
// disturb session state.
func (s *Session) HandleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		if stderrors.Is(err, protocol.ErrUnknownType) {
			logging.Warn("ignoring message with unknown type", map[string]interface{}{
				"document_id": s.cfg.DocumentID,
			})
		} else {
			logging.Warn("dropping malformed message", map[string]interface{}{
				"document_id": s.cfg.DocumentID,
				"error":       err.Error(),
			})
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	switch m := msg.(type) {
	case protocol.DocumentLoad:
		s.handleDocumentLoadLocked(m)
	case protocol.Edit:
		s.handleEditLocked(m)
	case protocol.UserJoined:
		s.presence.Join(models.Participant{ID: m.UserID, Username: m.Username, Color: m.Color})
	case protocol.UserLeft:
		s.presence.Leave(m.UserID, m.Username)
	case protocol.Cursor:
		if m.UserID == s.cfg.UserID {
			return
		}
		s.presence.UpdateCursor(m.UserID, m.Position, m.SelectionStart, m.SelectionEnd)
	case protocol.Comment:
		s.handleCommentLocked(m)
	}
}

// handleDocumentLoadLocked seeds the session from an authoritative
// snapshot. Local state that no longer matches the backend is replaced,
// including any deferred remote update.
func (s *Session) handleDocumentLoadLocked(m protocol.DocumentLoad) {
	s.content = m.Content
	s.lastSent = m.Content
	s.title = m.Title
	s.pending = nil
	s.localCursor.Position = 0
	s.localCursor.SelectionStart = 0
	s.localCursor.SelectionEnd = 0

	participants := make([]models.Participant, 0, len(m.ActiveUsers))
	for _, u := range m.ActiveUsers {
		participants = append(participants, models.Participant{
			ID:       u.ID,
			Username: u.Username,
			Color:    u.Color,
		})
	}
	s.presence.Reset(participants)

	logging.Info("document loaded", map[string]interface{}{
		"document_id":  s.cfg.DocumentID,
		"active_users": len(participants),
	})
}

// handleEditLocked folds a remote edit in, or defers it while local input
// is in flight. The backend echoes our own edits back; those are ignored
// entirely.
func (s *Session) handleEditLocked(m protocol.Edit) {
	if m.UserID == s.cfg.UserID {
		return
	}

	s.activity.Append(m.Username, "edited the document", activity.KindEdit)

	if s.isTyping || s.isComposing {
		// Last write wins; an older deferred update is discarded.
		s.pending = &pendingRemoteUpdate{content: m.Content, originUsername: m.Username}
		return
	}
	s.applyRemoteLocked(m.Content, m.Username)
}

// handleCommentLocked appends an echoed comment to the local list.
func (s *Session) handleCommentLocked(m protocol.Comment) {
	s.comments = append(s.comments, models.Comment{
		User:      m.Username,
		Content:   m.Content,
		Position:  m.Position,
		Timestamp: time.Now(),
	})
	s.activity.Append(m.Username, "commented on the document", activity.KindComment)
}
