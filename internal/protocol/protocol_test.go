package protocol

import (
	stderrors "errors"
	"testing"

	"github.com/hsinyu-ko/coedit/internal/errors"
)

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Message
	}{
		{
			"document_load",
			`{"type":"document_load","content":"hello","title":"Notes","active_users":[{"id":7,"username":"ana","color":"#fff","cursor_position":3}]}`,
			DocumentLoad{Content: "hello", Title: "Notes", ActiveUsers: []ActiveUser{{ID: 7, Username: "ana", Color: "#fff", CursorPosition: 3}}},
		},
		{
			"edit",
			`{"type":"edit","user_id":2,"username":"bob","content":"hello world"}`,
			Edit{UserID: 2, Username: "bob", Content: "hello world"},
		},
		{
			"user_joined",
			`{"type":"user_joined","user_id":3,"username":"eve","color":"#00f"}`,
			UserJoined{UserID: 3, Username: "eve", Color: "#00f"},
		},
		{
			"user_left",
			`{"type":"user_left","user_id":3,"username":"eve"}`,
			UserLeft{UserID: 3, Username: "eve"},
		},
		{
			"cursor with defaults",
			`{"type":"cursor","user_id":7,"username":"ana","position":5}`,
			Cursor{UserID: 7, Username: "ana", Position: 5},
		},
		{
			"comment",
			`{"type":"comment","user_id":2,"username":"bob","content":"nice","position":4}`,
			Comment{UserID: 2, Username: "bob", Content: "nice", Position: 4},
		},
	}

	for _, tt := range tests {
		got, err := Decode([]byte(tt.payload))
		if err != nil {
			t.Fatalf("%s: Decode failed: %v", tt.name, err)
		}
		switch want := tt.want.(type) {
		case DocumentLoad:
			load, ok := got.(DocumentLoad)
			if !ok {
				t.Fatalf("%s: got %T", tt.name, got)
			}
			if load.Content != want.Content || load.Title != want.Title || len(load.ActiveUsers) != 1 || load.ActiveUsers[0] != want.ActiveUsers[0] {
				t.Errorf("%s: got %+v, want %+v", tt.name, load, want)
			}
		default:
			if got != tt.want {
				t.Errorf("%s: got %#v, want %#v", tt.name, got, tt.want)
			}
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"presence_ping","user_id":1}`))
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !stderrors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !errors.Is(err, errors.ErrDecodeFailed) {
		t.Errorf("expected MESSAGE_DECODE_FAILED, got %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	messages := []Message{
		Edit{UserID: 1, Username: "ana", Content: "abc"},
		Cursor{UserID: 1, Username: "ana", Position: 0, SelectionStart: 0, SelectionEnd: 2},
		Comment{UserID: 1, Username: "ana", Content: "hm", Position: 9},
		UserJoined{UserID: 4, Username: "dan", Color: "#0a0"},
		UserLeft{UserID: 4, Username: "dan"},
	}

	for _, m := range messages {
		data, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode(%#v) failed: %v", m, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(Encode(%#v)) failed: %v", m, err)
		}
		if got != m {
			t.Errorf("round trip changed %#v to %#v", m, got)
		}
	}
}

// Outbound client messages omit user identity; the backend attributes them
// from the connection. Position zero must survive encoding.
func TestEncodeOutboundShapes(t *testing.T) {
	data, err := Encode(Cursor{Position: 0, SelectionStart: 0, SelectionEnd: 0})
	if err != nil {
		t.Fatalf("Encode cursor failed: %v", err)
	}
	want := `{"type":"cursor","position":0,"selection_start":0,"selection_end":0}`
	if string(data) != want {
		t.Errorf("cursor wire = %s, want %s", data, want)
	}

	data, err = Encode(Edit{Content: "x"})
	if err != nil {
		t.Fatalf("Encode edit failed: %v", err)
	}
	want = `{"type":"edit","content":"x"}`
	if string(data) != want {
		t.Errorf("edit wire = %s, want %s", data, want)
	}
}
