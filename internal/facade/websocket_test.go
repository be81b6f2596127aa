package facade

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/cowork-run/supervisor/internal/protocol"
	"github.com/cowork-run/supervisor/internal/worker"
)

func TestWebSocketBridgeBroadcastsEvents(t *testing.T) {
	f := &Facade{sup: worker.New()}
	bridge := NewWebSocketBridge(f)

	server := httptest.NewServer(bridge)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	bridge.onEvent(protocol.Event{Type: "session_state_changed", SessionID: "s1"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got protocol.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "session_state_changed" || got.SessionID != "s1" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestWebSocketBridgeRejectsDisallowedOrigin(t *testing.T) {
	if isAllowedOrigin("https://evil.example.com") {
		t.Fatal("expected disallowed origin to be rejected")
	}
	if !isAllowedOrigin("http://localhost:3000") {
		t.Fatal("expected localhost origin to be allowed")
	}
	if !isAllowedOrigin("") {
		t.Fatal("expected empty origin (non-browser client) to be allowed")
	}
}

func TestWebSocketBridgeClientCount(t *testing.T) {
	f := &Facade{sup: worker.New()}
	bridge := NewWebSocketBridge(f)

	server := httptest.NewServer(bridge)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for bridge.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if bridge.ClientCount() != 1 {
		t.Fatalf("expected 1 connected client, got %d", bridge.ClientCount())
	}

	conn.Close(websocket.StatusNormalClosure, "")

	deadline = time.Now().Add(2 * time.Second)
	for bridge.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if bridge.ClientCount() != 0 {
		t.Fatalf("expected client to be unregistered after close, got %d", bridge.ClientCount())
	}
}
