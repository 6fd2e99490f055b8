// Package conn owns the persistent document channel: dialing, read/write
// pumps, and reconnect scheduling with bounded backoff.
package conn

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/hsinyu-ko/coedit/internal/logging"
)

// State is the lifecycle state of the channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosing      State = "closing"
)

// Config tunes the channel. Zero values fall back to the defaults below.
type Config struct {
	// URL is the ws:// or wss:// endpoint for one document.
	URL string
	// ReconnectInitial is the first reconnect delay after a drop.
	ReconnectInitial time.Duration
	// ReconnectMax bounds the growing reconnect delay.
	ReconnectMax time.Duration
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// PingInterval paces keepalive pings while connected.
	PingInterval time.Duration
	// SendBuffer is the outbound queue length; a full queue drops frames.
	SendBuffer int
}

func (c *Config) applyDefaults() {
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = 3 * time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
}

// Manager runs the channel state machine:
//
//	Disconnected -> Connecting -> Connected -> (Disconnected | Closing)
//
// Sends are best-effort: when the channel is not Connected, Send drops the
// frame silently. On an unexpected drop the manager schedules a reconnect
// attempt; Close cancels any pending attempt and is terminal.
type Manager struct {
	cfg       Config
	onMessage func([]byte)
	onState   func(connected bool)

	mu        sync.Mutex
	state     State
	ws        *websocket.Conn
	send      chan []byte
	reconnect *time.Timer
	bo        backoff.BackOff
}

// New creates a Manager. onMessage receives every inbound frame in arrival
// order; onState observes Connected transitions in both directions. Either
// callback may be nil.
func New(cfg Config, onMessage func([]byte), onState func(connected bool)) *Manager {
	cfg.applyDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.ReconnectInitial
	bo.MaxInterval = cfg.ReconnectMax
	bo.MaxElapsedTime = 0 // retry until closed

	return &Manager{
		cfg:       cfg,
		onMessage: onMessage,
		onState:   onState,
		state:     StateDisconnected,
		bo:        bo,
	}
}

// Connect starts dialing in the background. It is a no-op unless the
// channel is currently Disconnected.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()

	go m.dial()
}

func (m *Manager) dial() {
	ws, _, err := websocket.DefaultDialer.Dial(m.cfg.URL, nil)

	m.mu.Lock()
	if m.state == StateClosing {
		m.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		return
	}

	if err != nil {
		m.state = StateDisconnected
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		logging.Warn("channel dial failed", map[string]interface{}{"url": m.cfg.URL, "error": err.Error()})
		return
	}

	m.ws = ws
	m.send = make(chan []byte, m.cfg.SendBuffer)
	m.state = StateConnected
	m.bo.Reset()
	sendCh := m.send
	m.mu.Unlock()

	logging.Info("channel connected", map[string]interface{}{"url": m.cfg.URL})
	if m.onState != nil {
		m.onState(true)
	}

	go m.writePump(ws, sendCh)
	go m.readLoop(ws)
}

// readLoop delivers inbound frames until the connection drops.
func (m *Manager) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn("channel read failed", map[string]interface{}{"error": err.Error()})
			}
			break
		}
		if m.onMessage != nil {
			m.onMessage(data)
		}
	}
	m.connLost(ws)
}

// writePump is the single writer for one connection.
func (m *Manager) writePump(ws *websocket.Conn, sendCh chan []byte) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sendCh:
			if !ok {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(m.cfg.WriteTimeout))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// connLost handles an unexpected drop of the given connection. Drops of a
// connection that has already been superseded are ignored.
func (m *Manager) connLost(ws *websocket.Conn) {
	m.mu.Lock()
	if m.ws != ws {
		m.mu.Unlock()
		return
	}
	ws.Close()
	m.ws = nil
	m.closeSendLocked()

	if m.state == StateClosing {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	logging.Info("channel disconnected, reconnect scheduled")
	if m.onState != nil {
		m.onState(false)
	}
}

// scheduleReconnectLocked arms the next reconnect attempt. Callers hold mu.
func (m *Manager) scheduleReconnectLocked() {
	delay := m.bo.NextBackOff()
	if delay == backoff.Stop {
		delay = m.cfg.ReconnectMax
	}
	m.reconnect = time.AfterFunc(delay, m.retry)
}

func (m *Manager) retry() {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()

	m.dial()
}

// Send queues one frame for delivery. When the channel is not Connected,
// or the outbound queue is full, the frame is dropped silently; delivery
// is best-effort by contract.
func (m *Manager) Send(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected || m.send == nil {
		logging.Debug("send dropped, channel not connected")
		return
	}
	select {
	case m.send <- data:
	default:
		logging.Debug("send dropped, outbound queue full")
	}
}

// Close tears the channel down: it cancels any pending reconnect, closes
// the connection, and rejects all further activity. Close is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosing {
		m.mu.Unlock()
		return
	}
	m.state = StateClosing

	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	ws := m.ws
	m.ws = nil
	m.closeSendLocked()
	m.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	logging.Info("channel closed")
}

// closeSendLocked closes the outbound queue, stopping the write pump.
func (m *Manager) closeSendLocked() {
	if m.send != nil {
		close(m.send)
		m.send = nil
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the channel is currently Connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}
