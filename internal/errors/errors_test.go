package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrDocumentNotFound, "document 42 not found")
	if !strings.Contains(err.Error(), "DOCUMENT_NOT_FOUND") {
		t.Errorf("error string = %q, want code included", err.Error())
	}

	wrapped := Wrap(ErrStoreFailed, "load document", stderrors.New("disk full"))
	if !strings.Contains(wrapped.Error(), "disk full") {
		t.Errorf("wrapped error string = %q, want cause included", wrapped.Error())
	}
}

func TestUnwrapAndIs(t *testing.T) {
	cause := stderrors.New("timeout")
	err := Wrap(ErrConnectionFailed, "dial relay", cause)

	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause lost")
	}
	if !Is(err, ErrConnectionFailed) {
		t.Error("code not matched through Is")
	}
	if Is(err, ErrStoreFailed) {
		t.Error("wrong code matched")
	}
	if Is(stderrors.New("plain"), ErrInternal) {
		t.Error("plain error matched a code")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(ErrSnapshotSaveFailed, "x")); got != ErrSnapshotSaveFailed {
		t.Errorf("CodeOf = %v", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %v, want INTERNAL_ERROR", got)
	}
}
