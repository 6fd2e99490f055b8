// Package coedit is a client-side synchronization engine for real-time
// collaborative plain-text editing. An Editor keeps a local document in
// step with a relay server: it diffs and broadcasts local edits, folds
// remote edits in with cursor remapping, defers remote updates while the
// user is typing, tracks participant presence, and autosaves version
// snapshots.
package coedit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hsinyu-ko/coedit/internal/activity"
	"github.com/hsinyu-ko/coedit/internal/api"
	"github.com/hsinyu-ko/coedit/internal/autosave"
	"github.com/hsinyu-ko/coedit/internal/conn"
	"github.com/hsinyu-ko/coedit/internal/errors"
	"github.com/hsinyu-ko/coedit/internal/models"
	"github.com/hsinyu-ko/coedit/internal/session"
)

// Options configures an Editor.
type Options struct {
	// ServerURL is the relay's HTTP base URL, e.g. "http://localhost:8800".
	ServerURL string
	// DocumentID names the document to open.
	DocumentID string
	// UserID and Username identify this participant.
	UserID   int64
	Username string

	// AutosaveInterval paces version snapshots. Defaults to 30s.
	AutosaveInterval time.Duration
	// TypingIdle, EditDebounce, CursorDebounce and CursorTTL tune the
	// session timing; zero values take the standard defaults.
	TypingIdle     time.Duration
	EditDebounce   time.Duration
	CursorDebounce time.Duration
	CursorTTL      time.Duration

	// HTTPClient overrides the snapshot transport, mainly for tests.
	HTTPClient *http.Client
	// ReconnectInitial overrides the first reconnect delay.
	ReconnectInitial time.Duration
}

// Editor is one open collaborative document. Its methods are safe for
// concurrent use; an embedding UI shell calls the input-side methods
// (UpdateContent, SetCursor, ...) and polls or renders from the
// read-side ones.
type Editor struct {
	opts    Options
	api     *api.Client
	session *session.Session
	conn    *conn.Manager
	saver   *autosave.Saver
}

// Open fetches the document snapshot, starts the websocket channel and
// the autosave loop, and returns the live editor. A document that does
// not exist yet is created by the relay on join.
func Open(ctx context.Context, opts Options) (*Editor, error) {
	if opts.ServerURL == "" || opts.DocumentID == "" {
		return nil, errors.New(errors.ErrInvalid, "ServerURL and DocumentID are required")
	}
	if opts.UserID == 0 {
		return nil, errors.New(errors.ErrInvalid, "UserID is required")
	}

	client := api.NewClient(opts.ServerURL, opts.HTTPClient)

	seed := ""
	doc, err := client.Document(ctx, opts.DocumentID)
	switch {
	case err == nil:
		seed = doc.Content
	case errors.Is(err, errors.ErrDocumentNotFound):
		// New document; the relay creates it when we join.
	default:
		return nil, err
	}

	sess := session.New(session.Config{
		DocumentID:     opts.DocumentID,
		UserID:         opts.UserID,
		Username:       opts.Username,
		TypingIdle:     opts.TypingIdle,
		EditDebounce:   opts.EditDebounce,
		CursorDebounce: opts.CursorDebounce,
		CursorTTL:      opts.CursorTTL,
	}, nil)

	channel := conn.New(conn.Config{
		URL:              websocketURL(opts),
		ReconnectInitial: opts.ReconnectInitial,
	}, sess.HandleMessage, sess.SetConnected)
	sess.SetSender(channel)

	saver := autosave.New(
		autosave.Config{Interval: opts.AutosaveInterval},
		seed,
		sess.Content,
		autosave.PersistFunc(func(ctx context.Context, content, summary string) error {
			return client.SaveSnapshot(ctx, opts.DocumentID, content, summary)
		}),
	)

	channel.Connect()
	saver.Start()

	return &Editor{
		opts:    opts,
		api:     client,
		session: sess,
		conn:    channel,
		saver:   saver,
	}, nil
}

// websocketURL derives the document channel endpoint from the HTTP base.
func websocketURL(opts Options) string {
	base := "ws" + strings.TrimPrefix(strings.TrimRight(opts.ServerURL, "/"), "http")
	return fmt.Sprintf("%s/ws/documents/%s?user_id=%d&username=%s",
		base, url.PathEscape(opts.DocumentID), opts.UserID, url.QueryEscape(opts.Username))
}

// UpdateContent records a local input event: the full post-edit text and
// the caret position.
func (e *Editor) UpdateContent(content string, cursor int) {
	e.session.UpdateContent(content, cursor)
}

// SetCursor records the local caret and selection.
func (e *Editor) SetCursor(position, selectionStart, selectionEnd int) {
	e.session.SetCursor(position, selectionStart, selectionEnd)
}

// CompositionStart marks an IME composition as in progress.
func (e *Editor) CompositionStart() { e.session.CompositionStart() }

// CompositionEnd ends the IME composition and releases any deferred
// remote update.
func (e *Editor) CompositionEnd() { e.session.CompositionEnd() }

// Blur signals that the editor lost focus.
func (e *Editor) Blur() { e.session.Blur() }

// AddComment broadcasts a comment anchored at the current caret.
func (e *Editor) AddComment(content string) { e.session.AddComment(content) }

// Content returns the current local document text.
func (e *Editor) Content() string { return e.session.Content() }

// Title returns the document title.
func (e *Editor) Title() string { return e.session.Title() }

// Cursor returns the local caret and selection.
func (e *Editor) Cursor() models.Cursor { return e.session.Cursor() }

// Participants returns the live participant set ordered by id.
func (e *Editor) Participants() []models.Participant { return e.session.Participants() }

// RemoteCursors returns live remote cursors keyed by participant id.
func (e *Editor) RemoteCursors() map[int64]models.Cursor { return e.session.RemoteCursors() }

// Comments returns the comment list, oldest first.
func (e *Editor) Comments() []models.Comment { return e.session.Comments() }

// Activities returns the activity feed, newest first.
func (e *Editor) Activities() []activity.Entry { return e.session.Activities() }

// IsConnected reports current channel connectivity.
func (e *Editor) IsConnected() bool { return e.conn.IsConnected() }

// Save persists a version snapshot immediately.
func (e *Editor) Save() error { return e.saver.SaveNow() }

// LastSavedAt returns when the last successful autosave completed.
func (e *Editor) LastSavedAt() time.Time { return e.saver.LastSavedAt() }

// Dirty reports whether local content is newer than the last snapshot.
func (e *Editor) Dirty() bool { return e.saver.Dirty() }

// Close flushes a final snapshot when the document is dirty, then tears
// down the channel and the session.
func (e *Editor) Close() error {
	var saveErr error
	if e.saver.Dirty() {
		saveErr = e.saver.SaveNow()
	}
	e.saver.Stop()
	e.conn.Close()
	e.session.Close()
	return saveErr
}
