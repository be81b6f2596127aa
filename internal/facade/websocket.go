package facade

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/cowork-run/supervisor/internal/protocol"
)

const wsBroadcastBuffer = 256
const wsMaxSlowCount = 3

type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	slowCount int
}

// WebSocketBridge fans every worker event out to any number of
// connected websocket clients, so a browser-based shell can subscribe
// to the same event stream transport.Multiplexer dispatches internally
// without re-implementing the NDJSON line protocol over HTTP (§6).
type WebSocketBridge struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewWebSocketBridge registers itself as f's transport event handler.
// Only one bridge (or other event handler) can be active on a Facade's
// worker.Supervisor at a time, matching transport.Multiplexer's single
// EventHandler slot.
func NewWebSocketBridge(f *Facade) *WebSocketBridge {
	b := &WebSocketBridge{clients: make(map[*wsClient]struct{})}
	f.sup.Multiplexer().SetEventHandler(b.onEvent)
	return b
}

func (b *WebSocketBridge) onEvent(evt protocol.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	b.broadcast(data)
}

func (b *WebSocketBridge) broadcast(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var slow []*wsClient
	for c := range b.clients {
		select {
		case c.send <- data:
			c.slowCount = 0
		default:
			c.slowCount++
			if c.slowCount >= wsMaxSlowCount {
				slow = append(slow, c)
			}
		}
	}
	for _, c := range slow {
		delete(b.clients, c)
		close(c.send)
	}
}

func (b *WebSocketBridge) register(c *wsClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *WebSocketBridge) unregister(c *wsClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// ClientCount reports how many websocket clients are currently attached.
func (b *WebSocketBridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// isAllowedOrigin restricts accepted connections to the local UI shells
// this bridge is meant for — a browser page served from anywhere else
// has no business subscribing to this host's supervisor events.
func isAllowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost", "https://localhost",
		"http://127.0.0.1", "https://127.0.0.1",
		"tauri://localhost", "http://tauri.localhost",
	}
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request to a websocket and streams events to
// it until the connection closes. Mount it at whatever path the UI
// shell expects (e.g. "/events").
func (b *WebSocketBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isAllowedOrigin(r.Header.Get("Origin")) {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*", "tauri.localhost", "tauri.localhost:*"},
	})
	if err != nil {
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsBroadcastBuffer)}
	b.register(client)
	defer b.unregister(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for data := range client.send {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}()

	// Drain and discard client reads; this bridge is output-only, but
	// reading is required so Close frames are observed and the
	// connection's context isn't leaked.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
