package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hsinyu-ko/coedit/internal/protocol"
)

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	store := openTestStore(t)
	hub := NewHub(store, time.Second, 32)
	srv := httptest.NewServer(NewServer(store, hub).Router())
	t.Cleanup(srv.Close)
	return srv, hub
}

func dialClient(t *testing.T, srv *httptest.Server, docID string, userID int64, username string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("%s/ws/documents/%s?user_id=%d&username=%s",
		"ws"+strings.TrimPrefix(srv.URL, "http"), docID, userID, username)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", username, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readFrame reads and decodes the next frame with a deadline.
func readFrame(t *testing.T, ws *websocket.Conn) protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return msg
}

func sendFrame(t *testing.T, ws *websocket.Conn, m protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestJoinDeliversSnapshotAndPresence(t *testing.T) {
	srv, _ := newTestServer(t)

	ana := dialClient(t, srv, "doc-1", 1, "ana")
	load, ok := readFrame(t, ana).(protocol.DocumentLoad)
	if !ok {
		t.Fatal("first frame should be document_load")
	}
	if len(load.ActiveUsers) != 1 || load.ActiveUsers[0].Username != "ana" {
		t.Errorf("active users = %+v", load.ActiveUsers)
	}

	bob := dialClient(t, srv, "doc-1", 2, "bob")
	bobLoad := readFrame(t, bob).(protocol.DocumentLoad)
	if len(bobLoad.ActiveUsers) != 2 {
		t.Errorf("bob sees %d active users, want 2", len(bobLoad.ActiveUsers))
	}

	joined, ok := readFrame(t, ana).(protocol.UserJoined)
	if !ok || joined.UserID != 2 || joined.Username != "bob" {
		t.Errorf("ana got %+v, want bob's user_joined", joined)
	}
	if joined.Color != "hsl(120, 70%, 60%)" {
		t.Errorf("color = %q", joined.Color)
	}
}

func TestEditEchoedToAllAndPersisted(t *testing.T) {
	srv, _ := newTestServer(t)

	ana := dialClient(t, srv, "doc-1", 1, "ana")
	readFrame(t, ana) // document_load
	bob := dialClient(t, srv, "doc-1", 2, "bob")
	readFrame(t, bob) // document_load
	readFrame(t, ana) // bob's user_joined

	sendFrame(t, ana, protocol.Edit{Content: "hello from ana"})

	// The sender gets its own echo, stamped with its identity.
	anaEcho := readFrame(t, ana).(protocol.Edit)
	if anaEcho.UserID != 1 || anaEcho.Content != "hello from ana" {
		t.Errorf("ana echo = %+v", anaEcho)
	}
	bobEdit := readFrame(t, bob).(protocol.Edit)
	if bobEdit.UserID != 1 || bobEdit.Username != "ana" {
		t.Errorf("bob edit = %+v", bobEdit)
	}

	// The live document content is updated.
	resp, err := http.Get(srv.URL + "/api/documents/doc-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var doc struct {
		Content string `json:"content"`
	}
	json.NewDecoder(resp.Body).Decode(&doc)
	if doc.Content != "hello from ana" {
		t.Errorf("persisted content = %q", doc.Content)
	}
}

func TestCursorGoesToOthersOnly(t *testing.T) {
	srv, _ := newTestServer(t)

	ana := dialClient(t, srv, "doc-1", 1, "ana")
	readFrame(t, ana)
	bob := dialClient(t, srv, "doc-1", 2, "bob")
	readFrame(t, bob)
	readFrame(t, ana) // bob joined

	sendFrame(t, ana, protocol.Cursor{Position: 7, SelectionStart: 7, SelectionEnd: 9})

	cur := readFrame(t, bob).(protocol.Cursor)
	if cur.UserID != 1 || cur.Position != 7 || cur.SelectionEnd != 9 {
		t.Errorf("bob cursor = %+v", cur)
	}

	// Ana must not receive her own cursor; the next frame she sees is an
	// edit sent afterwards.
	sendFrame(t, bob, protocol.Edit{Content: "x"})
	if _, ok := readFrame(t, ana).(protocol.Edit); !ok {
		t.Error("ana received her own cursor frame")
	}
}

func TestLeaveBroadcast(t *testing.T) {
	srv, hub := newTestServer(t)

	ana := dialClient(t, srv, "doc-1", 1, "ana")
	readFrame(t, ana)
	bob := dialClient(t, srv, "doc-1", 2, "bob")
	readFrame(t, bob)
	readFrame(t, ana) // bob joined

	bob.Close()

	left, ok := readFrame(t, ana).(protocol.UserLeft)
	if !ok || left.UserID != 2 {
		t.Errorf("ana got %+v, want bob's user_left", left)
	}

	deadline := time.Now().Add(time.Second)
	for hub.Participants("doc-1") != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := hub.Participants("doc-1"); n != 1 {
		t.Errorf("participants = %d, want 1", n)
	}
}

func TestVersionEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	// Joining creates the document row.
	ana := dialClient(t, srv, "doc-1", 1, "ana")
	readFrame(t, ana)

	body := strings.NewReader(`{"content":"snapshot body","summary":"Auto-saved"}`)
	resp, err := http.Post(srv.URL+"/api/documents/doc-1/versions", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var ack saveVersionResponse
	json.NewDecoder(resp.Body).Decode(&ack)
	if !ack.Success {
		t.Fatalf("save rejected: %+v", ack)
	}

	listResp, err := http.Get(srv.URL + "/api/documents/doc-1/versions")
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()
	var versions []Version
	json.NewDecoder(listResp.Body).Decode(&versions)
	if len(versions) != 1 || versions[0].Content != "snapshot body" {
		t.Errorf("versions = %+v", versions)
	}
}

func TestSaveVersionForUnknownDocument(t *testing.T) {
	srv, _ := newTestServer(t)

	body := strings.NewReader(`{"content":"x","summary":"Auto-saved"}`)
	resp, err := http.Post(srv.URL+"/api/documents/ghost/versions", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
