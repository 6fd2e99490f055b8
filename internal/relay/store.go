// Package relay is the document relay server: it persists documents and
// version snapshots in SQLite, fans edits out to connected clients over
// websockets, and serves the snapshot HTTP endpoints.
package relay

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hsinyu-ko/coedit/internal/errors"
	"github.com/hsinyu-ko/coedit/internal/models"
)

// Store persists documents, version snapshots, comments and activity.
type Store struct {
	db *sql.DB
}

// Version is one persisted snapshot of a document.
type Version struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	is_public  INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS versions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	content     TEXT NOT NULL,
	summary     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS comments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	user_id     INTEGER NOT NULL,
	username    TEXT NOT NULL,
	content     TEXT NOT NULL,
	position    INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS activity (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	username    TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_versions_document ON versions(document_id, created_at);
CREATE INDEX IF NOT EXISTS idx_comments_document ON comments(document_id);
CREATE INDEX IF NOT EXISTS idx_activity_document ON activity(document_id, created_at);
`

// OpenStore opens the SQLite database under dataDir, creating the
// directory and schema as needed. WAL mode keeps reads concurrent with
// the single writer.
func OpenStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailed, "create data directory", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "coedit.db"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailed, "open database", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrStoreFailed, "enable WAL mode", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrStoreFailed, "enable foreign keys", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrStoreFailed, "apply schema", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureDocument creates an empty document when none exists and returns
// the current row either way.
func (s *Store) EnsureDocument(ctx context.Context, id, title string) (models.Document, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`, id, title)
	if err != nil {
		return models.Document{}, errors.Wrap(errors.ErrStoreFailed, "ensure document", err)
	}
	return s.Document(ctx, id)
}

// Document returns one document by id.
func (s *Store) Document(ctx context.Context, id string) (models.Document, error) {
	var doc models.Document
	var isPublic int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, is_public FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Title, &doc.Content, &isPublic)
	if err == sql.ErrNoRows {
		return doc, errors.New(errors.ErrDocumentNotFound, "document "+id+" not found")
	}
	if err != nil {
		return doc, errors.Wrap(errors.ErrStoreFailed, "load document", err)
	}
	doc.IsPublic = isPublic != 0
	return doc, nil
}

// UpdateContent replaces the live content of a document.
func (s *Store) UpdateContent(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET content = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, content, id)
	if err != nil {
		return errors.Wrap(errors.ErrStoreFailed, "update content", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrDocumentNotFound, "document "+id+" not found")
	}
	return nil
}

// SaveVersion stores a content snapshot and promotes it to the live
// content in the same transaction.
func (s *Store) SaveVersion(ctx context.Context, documentID, content, summary string) (Version, error) {
	var v Version

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return v, errors.Wrap(errors.ErrStoreFailed, "begin version save", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO versions (document_id, content, summary) VALUES (?, ?, ?)`,
		documentID, content, summary)
	if err != nil {
		return v, errors.Wrap(errors.ErrStoreFailed, "insert version", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET content = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		content, documentID); err != nil {
		return v, errors.Wrap(errors.ErrStoreFailed, "promote version", err)
	}
	if err := tx.Commit(); err != nil {
		return v, errors.Wrap(errors.ErrStoreFailed, "commit version save", err)
	}

	id, _ := res.LastInsertId()
	return Version{ID: id, Content: content, Summary: summary, CreatedAt: time.Now()}, nil
}

// Versions lists snapshots of a document, newest first.
func (s *Store) Versions(ctx context.Context, documentID string, limit int) ([]Version, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, summary, created_at FROM versions
		 WHERE document_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, documentID, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailed, "list versions", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.Content, &v.Summary, &v.CreatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrStoreFailed, "scan version", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// AddComment stores one comment.
func (s *Store) AddComment(ctx context.Context, documentID string, userID int64, username, content string, position int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (document_id, user_id, username, content, position) VALUES (?, ?, ?, ?, ?)`,
		documentID, userID, username, content, position)
	if err != nil {
		return errors.Wrap(errors.ErrStoreFailed, "insert comment", err)
	}
	return nil
}

// AddActivity stores one activity feed entry.
func (s *Store) AddActivity(ctx context.Context, documentID, username, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity (document_id, username, description) VALUES (?, ?, ?)`,
		documentID, username, description)
	if err != nil {
		return errors.Wrap(errors.ErrStoreFailed, "insert activity", err)
	}
	return nil
}
