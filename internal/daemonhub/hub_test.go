package daemonhub

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/cowork-run/supervisor/internal/protocol"
)

// fakeWorker is an in-memory stand-in for the spawned worker's stdin/stdout
// pipes: writes made via Hub.forward land on workerIn's read side, and
// tests push Response/Event lines onto workerOut to simulate the worker
// replying.
type fakeWorker struct {
	inR, inW   net.Conn
	outR, outW net.Conn
}

func newFakeWorker() *fakeWorker {
	inR, inW := net.Pipe()
	outR, outW := net.Pipe()
	return &fakeWorker{inR: inR, inW: inW, outR: outR, outW: outW}
}

func TestHubRoutesResponseToOriginatingClient(t *testing.T) {
	fw := newFakeWorker()
	h := New("tok", fw.inW)
	go h.RunUpstream(fw.outR)

	clientConn, clientSide := net.Pipe()
	go h.HandleClient(clientSide)

	// Client sends a request.
	req := protocol.Request{ID: "r1", Command: "get_session", AuthToken: "tok"}
	go func() {
		payload, _ := json.Marshal(req)
		payload = append(payload, '\n')
		_, _ = clientConn.Write(payload)
	}()

	// Hub should forward it upstream with a tagged id; read it off fw.inR.
	scanner := bufio.NewScanner(fw.inR)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		t.Fatalf("expected forwarded request, scan err: %v", scanner.Err())
	}
	var forwarded protocol.Request
	if err := json.Unmarshal(scanner.Bytes(), &forwarded); err != nil {
		t.Fatalf("unmarshal forwarded request: %v", err)
	}
	if forwarded.ID == "r1" {
		t.Fatal("expected id to be tagged with client prefix")
	}

	// Worker replies with a response carrying the tagged id.
	go func() {
		resp := protocol.Response{ID: forwarded.ID, Success: true}
		payload, _ := json.Marshal(resp)
		payload = append(payload, '\n')
		_, _ = fw.outW.Write(payload)
	}()

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	clientScanner := bufio.NewScanner(clientConn)
	clientScanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !clientScanner.Scan() {
		t.Fatalf("expected response at client, scan err: %v", clientScanner.Err())
	}
	var got protocol.Response
	if err := json.Unmarshal(clientScanner.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.ID != "r1" || !got.Success {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestHubRejectsBadAuthToken(t *testing.T) {
	fw := newFakeWorker()
	h := New("tok", fw.inW)
	go h.RunUpstream(fw.outR)

	clientConn, clientSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.HandleClient(clientSide)
		close(done)
	}()

	req := protocol.Request{ID: "r1", Command: "get_session", AuthToken: "wrong"}
	payload, _ := json.Marshal(req)
	payload = append(payload, '\n')
	_, _ = clientConn.Write(payload)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected HandleClient to return after a bad auth token")
	}
}

func TestHubBroadcastsEventsToAllClients(t *testing.T) {
	fw := newFakeWorker()
	h := New("tok", fw.inW)
	go h.RunUpstream(fw.outR)

	var conns []net.Conn
	var sides []net.Conn
	for i := 0; i < 2; i++ {
		conn, side := net.Pipe()
		conns = append(conns, conn)
		sides = append(sides, side)
		go h.HandleClient(side)
	}

	// Give HandleClient a moment to register each connection.
	time.Sleep(20 * time.Millisecond)

	evt := protocol.Event{Type: "session_updated", SessionID: "s1"}
	payload, _ := json.Marshal(evt)
	payload = append(payload, '\n')
	go func() { _, _ = fw.outW.Write(payload) }()

	for _, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		if !scanner.Scan() {
			t.Fatalf("expected event broadcast, scan err: %v", scanner.Err())
		}
		var got protocol.Event
		if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if got.Type != "session_updated" {
			t.Fatalf("unexpected event: %+v", got)
		}
	}
}
