// Package protocol defines the JSON messages exchanged over the document
// channel and their codec.
//
// The wire format is a flat JSON object with a "type" discriminator; the
// decoder turns it into a closed set of Go variants so dispatch can be an
// exhaustive type switch with a single unknown-tag fallback.
package protocol

import (
	"encoding/json"

	"github.com/hsinyu-ko/coedit/internal/errors"
)

// Message type tags as they appear on the wire.
const (
	TypeDocumentLoad = "document_load"
	TypeEdit         = "edit"
	TypeUserJoined   = "user_joined"
	TypeUserLeft     = "user_left"
	TypeCursor       = "cursor"
	TypeComment      = "comment"
)

// ErrUnknownType marks a payload whose tag is not part of the closed set.
// Receivers log and drop such messages; they are never fatal.
var ErrUnknownType = errors.New(errors.ErrDecodeFailed, "unknown message type")

// Message is one decoded channel payload. The concrete types below form
// the closed set of variants.
type Message interface {
	messageType() string
}

// ActiveUser is a participant entry inside a DocumentLoad payload.
type ActiveUser struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Color          string `json:"color,omitempty"`
	CursorPosition int    `json:"cursor_position"`
}

// DocumentLoad seeds a freshly connected client with the authoritative
// content and the current participant set.
type DocumentLoad struct {
	Content     string
	Title       string
	ActiveUsers []ActiveUser
}

// Edit carries the full post-edit content of the document.
type Edit struct {
	UserID   int64
	Username string
	Content  string
}

// UserJoined announces a new participant.
type UserJoined struct {
	UserID   int64
	Username string
	Color    string
}

// UserLeft announces a departed participant.
type UserLeft struct {
	UserID   int64
	Username string
}

// Cursor carries a participant's caret and selection offsets.
type Cursor struct {
	UserID         int64
	Username       string
	Position       int
	SelectionStart int
	SelectionEnd   int
}

// Comment carries an annotation at a rune offset.
type Comment struct {
	UserID   int64
	Username string
	Content  string
	Position int
}

func (DocumentLoad) messageType() string { return TypeDocumentLoad }
func (Edit) messageType() string         { return TypeEdit }
func (UserJoined) messageType() string   { return TypeUserJoined }
func (UserLeft) messageType() string     { return TypeUserLeft }
func (Cursor) messageType() string       { return TypeCursor }
func (Comment) messageType() string      { return TypeComment }

// envelope is the superset of wire fields across all variants. Absent
// fields default to their zero values, matching the backend's defaults.
type envelope struct {
	Type           string       `json:"type"`
	Content        string       `json:"content,omitempty"`
	Title          string       `json:"title,omitempty"`
	ActiveUsers    []ActiveUser `json:"active_users,omitempty"`
	UserID         int64        `json:"user_id,omitempty"`
	Username       string       `json:"username,omitempty"`
	Color          string       `json:"color,omitempty"`
	Position       int          `json:"position"`
	SelectionStart int          `json:"selection_start"`
	SelectionEnd   int          `json:"selection_end"`
}

// The cursor variant always carries its offsets, even when zero.
type cursorWire struct {
	Type           string `json:"type"`
	UserID         int64  `json:"user_id,omitempty"`
	Username       string `json:"username,omitempty"`
	Position       int    `json:"position"`
	SelectionStart int    `json:"selection_start"`
	SelectionEnd   int    `json:"selection_end"`
}

type editWire struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

type commentWire struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

type userWire struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Color    string `json:"color,omitempty"`
}

type documentLoadWire struct {
	Type        string       `json:"type"`
	Content     string       `json:"content"`
	Title       string       `json:"title,omitempty"`
	ActiveUsers []ActiveUser `json:"active_users"`
}

// Decode parses one channel payload into its variant. Unknown tags return
// an error wrapping ErrUnknownType; malformed JSON returns a decode error.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(errors.ErrDecodeFailed, "malformed message payload", err)
	}

	switch env.Type {
	case TypeDocumentLoad:
		return DocumentLoad{Content: env.Content, Title: env.Title, ActiveUsers: env.ActiveUsers}, nil
	case TypeEdit:
		return Edit{UserID: env.UserID, Username: env.Username, Content: env.Content}, nil
	case TypeUserJoined:
		return UserJoined{UserID: env.UserID, Username: env.Username, Color: env.Color}, nil
	case TypeUserLeft:
		return UserLeft{UserID: env.UserID, Username: env.Username}, nil
	case TypeCursor:
		return Cursor{
			UserID:         env.UserID,
			Username:       env.Username,
			Position:       env.Position,
			SelectionStart: env.SelectionStart,
			SelectionEnd:   env.SelectionEnd,
		}, nil
	case TypeComment:
		return Comment{UserID: env.UserID, Username: env.Username, Content: env.Content, Position: env.Position}, nil
	default:
		return nil, errors.Wrap(errors.ErrDecodeFailed, "unknown message type "+env.Type, ErrUnknownType)
	}
}

// Encode serializes a variant with its type tag.
func Encode(m Message) ([]byte, error) {
	var wire interface{}

	switch v := m.(type) {
	case DocumentLoad:
		users := v.ActiveUsers
		if users == nil {
			users = []ActiveUser{}
		}
		wire = documentLoadWire{Type: TypeDocumentLoad, Content: v.Content, Title: v.Title, ActiveUsers: users}
	case Edit:
		wire = editWire{Type: TypeEdit, UserID: v.UserID, Username: v.Username, Content: v.Content}
	case UserJoined:
		wire = userWire{Type: TypeUserJoined, UserID: v.UserID, Username: v.Username, Color: v.Color}
	case UserLeft:
		wire = userWire{Type: TypeUserLeft, UserID: v.UserID, Username: v.Username}
	case Cursor:
		wire = cursorWire{
			Type:           TypeCursor,
			UserID:         v.UserID,
			Username:       v.Username,
			Position:       v.Position,
			SelectionStart: v.SelectionStart,
			SelectionEnd:   v.SelectionEnd,
		}
	case Comment:
		wire = commentWire{Type: TypeComment, UserID: v.UserID, Username: v.Username, Content: v.Content, Position: v.Position}
	default:
		return nil, errors.New(errors.ErrInvalid, "unsupported message variant")
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "marshal message", err)
	}
	return data, nil
}
