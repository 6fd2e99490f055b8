package conn

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades every request, counts connections, and optionally
// drops each connection after sending a greeting.
func echoServer(t *testing.T, conns *atomic.Int32, dropAfterHello bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)
		ws.WriteMessage(websocket.TextMessage, []byte(`hello`))
		if dropAfterHello {
			ws.Close()
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				ws.Close()
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnectDeliversMessages(t *testing.T) {
	var conns atomic.Int32
	srv := echoServer(t, &conns, false)
	defer srv.Close()

	var got atomic.Value
	var connected atomic.Bool
	m := New(Config{URL: wsURL(srv), ReconnectInitial: 20 * time.Millisecond},
		func(data []byte) { got.Store(string(data)) },
		func(up bool) { connected.Store(up) },
	)
	defer m.Close()

	m.Connect()

	waitFor(t, time.Second, m.IsConnected, "channel never connected")
	waitFor(t, time.Second, func() bool { return connected.Load() }, "onState(true) never fired")
	waitFor(t, time.Second, func() bool { v, _ := got.Load().(string); return v == "hello" }, "greeting not delivered")
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	m := New(Config{URL: "ws://127.0.0.1:1/ws"}, nil, nil)
	// Must not panic or block.
	m.Send([]byte(`{"type":"edit","content":"x"}`))
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
	m.Close()
}

func TestReconnectAfterDrop(t *testing.T) {
	var conns atomic.Int32
	srv := echoServer(t, &conns, true)
	defer srv.Close()

	var downSeen atomic.Bool
	m := New(Config{URL: wsURL(srv), ReconnectInitial: 20 * time.Millisecond, ReconnectMax: 50 * time.Millisecond},
		nil,
		func(up bool) {
			if !up {
				downSeen.Store(true)
			}
		},
	)
	defer m.Close()

	m.Connect()

	waitFor(t, 2*time.Second, func() bool { return conns.Load() >= 2 }, "no reconnect attempt observed")
	if !downSeen.Load() {
		t.Error("onState(false) not observed on drop")
	}
}

func TestCloseCancelsReconnect(t *testing.T) {
	var conns atomic.Int32
	srv := echoServer(t, &conns, true)

	m := New(Config{URL: wsURL(srv), ReconnectInitial: 30 * time.Millisecond}, nil, nil)
	m.Connect()

	waitFor(t, time.Second, func() bool { return conns.Load() >= 1 }, "never connected")
	m.Close()

	// Let any dial already in flight settle before sampling.
	time.Sleep(50 * time.Millisecond)
	seen := conns.Load()
	time.Sleep(150 * time.Millisecond)
	if conns.Load() != seen {
		t.Errorf("reconnect fired after Close: %d -> %d connections", seen, conns.Load())
	}
	if m.State() != StateClosing {
		t.Errorf("state = %s, want closing", m.State())
	}
	srv.Close()
}

func TestConnectIsIdempotentWhileActive(t *testing.T) {
	var conns atomic.Int32
	srv := echoServer(t, &conns, false)
	defer srv.Close()

	m := New(Config{URL: wsURL(srv)}, nil, nil)
	defer m.Close()

	m.Connect()
	waitFor(t, time.Second, m.IsConnected, "channel never connected")

	m.Connect()
	time.Sleep(50 * time.Millisecond)
	if got := conns.Load(); got != 1 {
		t.Errorf("Connect while connected dialed again: %d connections", got)
	}
}
