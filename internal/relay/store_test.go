package relay

import (
	"context"
	"testing"

	"github.com/hsinyu-ko/coedit/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnsureDocumentIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	doc, err := store.EnsureDocument(ctx, "doc-1", "Notes")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if doc.ID != "doc-1" || doc.Title != "Notes" || doc.Content != "" {
		t.Errorf("doc = %+v", doc)
	}

	if err := store.UpdateContent(ctx, "doc-1", "hello"); err != nil {
		t.Fatalf("update: %v", err)
	}

	// A second ensure must not reset the existing row.
	doc, err = store.EnsureDocument(ctx, "doc-1", "Other Title")
	if err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if doc.Content != "hello" || doc.Title != "Notes" {
		t.Errorf("re-ensure clobbered row: %+v", doc)
	}
}

func TestDocumentNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Document(context.Background(), "nope")
	if !errors.Is(err, errors.ErrDocumentNotFound) {
		t.Errorf("error = %v, want DOCUMENT_NOT_FOUND", err)
	}
	if err := store.UpdateContent(context.Background(), "nope", "x"); !errors.Is(err, errors.ErrDocumentNotFound) {
		t.Errorf("update error = %v, want DOCUMENT_NOT_FOUND", err)
	}
}

func TestSaveVersionPromotesContent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureDocument(ctx, "doc-1", ""); err != nil {
		t.Fatal(err)
	}

	v, err := store.SaveVersion(ctx, "doc-1", "draft one", "Auto-saved")
	if err != nil {
		t.Fatalf("save version: %v", err)
	}
	if v.ID == 0 || v.Summary != "Auto-saved" {
		t.Errorf("version = %+v", v)
	}

	doc, err := store.Document(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Content != "draft one" {
		t.Errorf("live content = %q, want the saved snapshot", doc.Content)
	}

	store.SaveVersion(ctx, "doc-1", "draft two", "Auto-saved")
	versions, err := store.Versions(ctx, "doc-1", 10)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 || versions[0].Content != "draft two" {
		t.Errorf("versions = %+v, want newest first", versions)
	}
}

func TestCommentsAndActivityPersist(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureDocument(ctx, "doc-1", ""); err != nil {
		t.Fatal(err)
	}
	if err := store.AddComment(ctx, "doc-1", 7, "ana", "nice", 3); err != nil {
		t.Errorf("add comment: %v", err)
	}
	if err := store.AddActivity(ctx, "doc-1", "ana", "joined the document"); err != nil {
		t.Errorf("add activity: %v", err)
	}
}
