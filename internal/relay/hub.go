package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hsinyu-ko/coedit/internal/logging"
	"github.com/hsinyu-ko/coedit/internal/protocol"
)

const storeTimeout = 5 * time.Second

// Hub tracks the connected clients of every document and fans messages
// out to them. Edits are echoed to every client including the sender;
// cursor updates go to everyone else.
type Hub struct {
	store        *Store
	writeTimeout time.Duration
	sendBuffer   int

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

// client is one websocket connection viewing one document.
type client struct {
	id         string
	documentID string
	userID     int64
	username   string
	color      string

	ws         *websocket.Conn
	hub        *Hub
	lastCursor int

	sendMu sync.Mutex
	send   chan []byte
	closed bool
}

// NewHub creates a Hub backed by store.
func NewHub(store *Store, writeTimeout time.Duration, sendBuffer int) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		store:        store,
		writeTimeout: writeTimeout,
		sendBuffer:   sendBuffer,
		rooms:        make(map[string]map[*client]struct{}),
	}
}

// userColor derives a stable presence color from the user id, matching
// the palette the editor shell renders.
func userColor(userID int64) string {
	return fmt.Sprintf("hsl(%d, 70%%, 60%%)", (userID*60)%360)
}

// Join registers a websocket connection with a document room and runs its
// read loop until the connection drops. The new client receives the
// document snapshot; everyone else is told about the join.
func (h *Hub) Join(ws *websocket.Conn, documentID string, userID int64, username string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	doc, err := h.store.EnsureDocument(ctx, documentID, "")
	cancel()
	if err != nil {
		logging.Error("load document for join", err, map[string]interface{}{"document_id": documentID})
		ws.Close()
		return
	}

	c := &client{
		id:         uuid.NewString(),
		documentID: documentID,
		userID:     userID,
		username:   username,
		color:      userColor(userID),
		ws:         ws,
		send:       make(chan []byte, h.sendBuffer),
		hub:        h,
	}

	h.mu.Lock()
	room, ok := h.rooms[documentID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[documentID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	logging.Info("client joined", map[string]interface{}{
		"connection_id": c.id,
		"document_id":   documentID,
		"user_id":       userID,
	})

	go c.writePump()

	c.enqueue(mustEncode(protocol.DocumentLoad{
		Content:     doc.Content,
		Title:       doc.Title,
		ActiveUsers: h.activeUsers(documentID),
	}))
	h.broadcast(documentID, mustEncode(protocol.UserJoined{
		UserID:   userID,
		Username: username,
		Color:    c.color,
	}), c)
	h.recordActivity(documentID, username, "joined the document")

	c.readPump()
}

// activeUsers snapshots the room membership for a document_load payload.
func (h *Hub) activeUsers(documentID string) []protocol.ActiveUser {
	h.mu.Lock()
	defer h.mu.Unlock()

	users := make([]protocol.ActiveUser, 0, len(h.rooms[documentID]))
	for c := range h.rooms[documentID] {
		users = append(users, protocol.ActiveUser{
			ID:             c.userID,
			Username:       c.username,
			Color:          c.color,
			CursorPosition: c.lastCursor,
		})
	}
	return users
}

// broadcast queues data for every client in a room except the one given.
// A nil except sends to everyone.
func (h *Hub) broadcast(documentID string, data []byte, except *client) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.rooms[documentID]))
	for c := range h.rooms[documentID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// drop unregisters a client and notifies the rest of the room.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	room, ok := h.rooms[c.documentID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := room[c]; !member {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.documentID)
	}
	h.mu.Unlock()

	c.close()
	h.broadcast(c.documentID, mustEncode(protocol.UserLeft{
		UserID:   c.userID,
		Username: c.username,
	}), nil)
	h.recordActivity(c.documentID, c.username, "left the document")

	logging.Info("client left", map[string]interface{}{
		"connection_id": c.id,
		"document_id":   c.documentID,
		"user_id":       c.userID,
	})
}

// Participants returns how many clients are viewing a document.
func (h *Hub) Participants(documentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[documentID])
}

func (h *Hub) recordActivity(documentID, username, description string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.AddActivity(ctx, documentID, username, description); err != nil {
		logging.Error("record activity", err)
	}
}

// readPump handles inbound frames for one client until the connection
// drops, then unregisters it.
func (c *client) readPump() {
	defer c.hub.drop(c)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(data)
	}
}

// handleFrame dispatches one inbound frame. The relay stamps the sender's
// identity onto every rebroadcast frame; clients never assert their own.
func (c *client) handleFrame(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		logging.Warn("dropping bad frame", map[string]interface{}{
			"connection_id": c.id,
			"error":         err.Error(),
		})
		return
	}

	switch m := msg.(type) {
	case protocol.Edit:
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := c.hub.store.UpdateContent(ctx, c.documentID, m.Content)
		cancel()
		if err != nil {
			logging.Error("persist edit", err, map[string]interface{}{"document_id": c.documentID})
		}
		// Edits go to everyone; the sender recognizes its own echo.
		c.hub.broadcast(c.documentID, mustEncode(protocol.Edit{
			UserID:   c.userID,
			Username: c.username,
			Content:  m.Content,
		}), nil)

	case protocol.Cursor:
		c.hub.mu.Lock()
		c.lastCursor = m.Position
		c.hub.mu.Unlock()
		c.hub.broadcast(c.documentID, mustEncode(protocol.Cursor{
			UserID:         c.userID,
			Username:       c.username,
			Position:       m.Position,
			SelectionStart: m.SelectionStart,
			SelectionEnd:   m.SelectionEnd,
		}), c)

	case protocol.Comment:
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := c.hub.store.AddComment(ctx, c.documentID, c.userID, c.username, m.Content, m.Position)
		cancel()
		if err != nil {
			logging.Error("persist comment", err, map[string]interface{}{"document_id": c.documentID})
		}
		c.hub.broadcast(c.documentID, mustEncode(protocol.Comment{
			UserID:   c.userID,
			Username: c.username,
			Content:  m.Content,
			Position: m.Position,
		}), nil)

	default:
		// Clients only originate edits, cursors and comments.
	}
}

// writePump is the single writer for one client connection.
func (c *client) writePump() {
	for data := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			c.ws.Close()
			return
		}
	}
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.hub.writeTimeout))
	c.ws.Close()
}

// enqueue queues a frame for a client. Frames for a closed client, or a
// client whose queue is full, are dropped rather than stalling the room.
func (c *client) enqueue(data []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		logging.Warn("client queue full, dropping frame", map[string]interface{}{
			"connection_id": c.id,
		})
	}
}

// close stops the write pump. Idempotent.
func (c *client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// mustEncode serializes a message the relay itself constructed. These
// values always marshal.
func mustEncode(m protocol.Message) []byte {
	data, err := protocol.Encode(m)
	if err != nil {
		logging.Error("encode relay frame", err)
		return []byte("{}")
	}
	return data
}
