// Package models defines the value types shared by the sync engine packages.
package models

import "time"

// Participant is a remote user connected to the same document. Attributes
// are fixed for the lifetime of the participant; the backend assigns the ID.
type Participant struct {
	ID       int64
	Username string
	Color    string
}

// Cursor is the last known caret and selection of one participant.
// SelectionStart and SelectionEnd bound a range that may collapse to a
// point; neither is required to be ordered against Position.
type Cursor struct {
	Position       int
	SelectionStart int
	SelectionEnd   int
	LastUpdated    time.Time
}

// Comment is an annotation attached to the document at a rune offset.
// Comments are append-only in the engine; resolution and threading live in
// the external backend.
type Comment struct {
	User      string
	Content   string
	Position  int
	Timestamp time.Time
}

// Document is the snapshot of a document as served by the HTTP collaborator.
type Document struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsPublic bool   `json:"is_public"`
}
