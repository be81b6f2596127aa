// Package daemonhub implements the shared-daemon side of §4.E: a
// multi-client relay in front of a single spawned worker process. Any
// number of supervisor instances can attach in SharedDaemon mode; the
// hub multiplexes their requests onto the one worker connection and
// routes responses back to whichever client sent the matching request,
// fanning events out to every attached client.
package daemonhub

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cowork-run/supervisor/internal/protocol"
)

const idSeparator = ":"

// Hub owns the single upstream connection to the spawned worker and the
// set of currently attached client connections.
type Hub struct {
	token string

	writeMu sync.Mutex
	enc     *protocol.Encoder

	clientsMu sync.Mutex
	clients   map[string]net.Conn

	discardedLines atomic.Uint64
}

// New constructs a Hub that writes requests to workerIn (the spawned
// worker's stdin) after rewriting each client's id to carry its tag.
func New(token string, workerIn io.Writer) *Hub {
	return &Hub{
		token:   token,
		enc:     protocol.NewEncoder(workerIn),
		clients: make(map[string]net.Conn),
	}
}

// DiscardedLines reports how many worker-side lines failed to parse or
// classify, mirroring §9 Open Question 2 for the daemon process itself.
func (h *Hub) DiscardedLines() uint64 {
	return h.discardedLines.Load()
}

// RunUpstream reads the worker's stdout until it closes, routing each
// Response to the client that owns its id prefix and broadcasting every
// Event to all attached clients. It returns when workerOut is exhausted.
func (h *Hub) RunUpstream(workerOut io.Reader) error {
	dec := protocol.NewDecoder(workerOut)
	for {
		resp, evt, ok := dec.Next()
		h.discardedLines.Store(dec.DiscardedLines())
		if !ok {
			return dec.Err()
		}
		switch {
		case resp != nil:
			h.routeResponse(resp)
		case evt != nil:
			h.broadcastEvent(evt)
		}
	}
}

func (h *Hub) routeResponse(resp *protocol.Response) {
	tag, origID, ok := splitTaggedID(resp.ID)
	if !ok {
		return
	}
	conn := h.clientConn(tag)
	if conn == nil {
		return
	}
	resp.ID = origID
	_ = writeLine(conn, resp)
}

func (h *Hub) broadcastEvent(evt *protocol.Event) {
	h.clientsMu.Lock()
	conns := make([]net.Conn, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.clientsMu.Unlock()

	for _, conn := range conns {
		_ = writeLine(conn, evt)
	}
}

func (h *Hub) clientConn(tag string) net.Conn {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return h.clients[tag]
}

// HandleClient services one attached client connection until it closes
// or sends a request whose authToken doesn't match. It blocks; call it
// in its own goroutine per accepted connection.
func (h *Hub) HandleClient(conn net.Conn) {
	tag := uuid.NewString()
	h.clientsMu.Lock()
	h.clients[tag] = conn
	h.clientsMu.Unlock()
	defer func() {
		h.clientsMu.Lock()
		delete(h.clients, tag)
		h.clientsMu.Unlock()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}
		if req.AuthToken != h.token {
			return
		}
		req.ID = tag + idSeparator + req.ID
		if err := h.forward(req); err != nil {
			return
		}
	}
}

func (h *Hub) forward(req protocol.Request) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.enc.Encode(req)
}

func splitTaggedID(id string) (tag, origID string, ok bool) {
	idx := strings.Index(id, idSeparator)
	if idx < 0 {
		return "", "", false
	}
	return id[:idx], id[idx+1:], true
}

func writeLine(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal line: %w", err)
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}
