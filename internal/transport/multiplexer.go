// Package transport implements the request/response/event multiplexer
// that sits over a pair of byte streams bound to a worker process or
// daemon connection (§4.D). It owns the pending-request table, the
// writer task, and the reader task, and is the one package in this
// module allowed to know about idempotency keys and retries.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cowork-run/supervisor/internal/protocol"
)

// Mode is the transport's current attachment state (§3).
type Mode int

const (
	Disconnected Mode = iota
	EmbeddedWorker
	SharedDaemon
)

func (m Mode) String() string {
	switch m {
	case EmbeddedWorker:
		return "embedded"
	case SharedDaemon:
		return "shared-daemon"
	default:
		return "disconnected"
	}
}

const (
	// DefaultDeadline is the §4.D.7 default await timeout for a single
	// sendCommand attempt.
	DefaultDeadline = 300 * time.Second
	// writerQueueSize bounds the writer task's queue; a full queue is
	// itself an enqueue failure (backpressure), per §5.
	writerQueueSize = 100
	maxAttempts     = 3
	backoffUnit     = 250 * time.Millisecond
)

type pendingEntry struct {
	ch chan protocol.Response
}

// EventHandler receives worker-originated events fanned out by the
// reader task. It is invoked on the reader task's goroutine and must not
// block (§4.D Ordering guarantees).
type EventHandler func(protocol.Event)

// Multiplexer owns the pending-request table, the writer channel, and
// the current event handler. A zero-value Multiplexer is not attached to
// any stream; call Attach before SendCommand.
type Multiplexer struct {
	idPrefix string
	idSeq    atomic.Uint64

	mu      sync.Mutex
	mode    Mode
	pending map[string]pendingEntry

	writerMu  sync.Mutex
	writerCh  chan protocol.Request
	authToken string

	healthy        atomic.Bool
	discardedLines atomic.Uint64

	handlerMu sync.Mutex
	handler   EventHandler

	closer io.Closer

	wg sync.WaitGroup
}

// New creates an unattached Multiplexer. idPrefix is used as the short
// textual prefix for request ids allocated by this instance.
func New(idPrefix string) *Multiplexer {
	if idPrefix == "" {
		idPrefix = "req"
	}
	return &Multiplexer{
		idPrefix: idPrefix,
		pending:  make(map[string]pendingEntry),
	}
}

// SetEventHandler installs (or clears, with nil) the handler invoked for
// every inbound Event. Safe to call concurrently with Attach/dispatch.
func (m *Multiplexer) SetEventHandler(h EventHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handler = h
}

// Attach binds a writer/reader stream pair and spawns the writer and
// reader tasks. closer is optional and is closed on Stop (e.g. to close
// the underlying socket or pipe); it may be nil.
func (m *Multiplexer) Attach(writer io.Writer, reader io.Reader, mode Mode, authToken string, closer io.Closer) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()

	m.writerMu.Lock()
	m.writerCh = make(chan protocol.Request, writerQueueSize)
	m.authToken = authToken
	m.closer = closer
	ch := m.writerCh
	m.writerMu.Unlock()

	m.healthy.Store(true)

	m.wg.Add(2)
	go m.writerTask(writer, ch)
	go m.readerTask(reader)
}

func (m *Multiplexer) writerTask(writer io.Writer, ch chan protocol.Request) {
	defer m.wg.Done()
	enc := protocol.NewEncoder(writer)
	for req := range ch {
		if err := enc.Encode(req); err != nil {
			m.healthy.Store(false)
			return
		}
	}
}

func (m *Multiplexer) readerTask(reader io.Reader) {
	defer m.wg.Done()
	dec := protocol.NewDecoder(reader)
	for {
		resp, evt, ok := dec.Next()
		m.discardedLines.Store(dec.DiscardedLines())
		if !ok {
			// EOF or unrecoverable read error: the stream is dead either
			// way, so mark unhealthy so the next sendCommand fails fast
			// instead of hanging for a full deadline.
			m.healthy.Store(false)
			return
		}
		if resp != nil {
			m.dispatchResponse(*resp)
			continue
		}
		if evt != nil {
			m.dispatchEvent(*evt)
		}
	}
}

// DiscardedLines reports how many inbound lines since Attach failed to
// parse or classify as a Response or Event (§9 Open Question 2). It is
// exposed for the facade's diagnostics command, never treated as fatal.
func (m *Multiplexer) DiscardedLines() uint64 {
	return m.discardedLines.Load()
}

func (m *Multiplexer) dispatchResponse(resp protocol.Response) {
	m.mu.Lock()
	entry, found := m.pending[resp.ID]
	if found {
		delete(m.pending, resp.ID)
	}
	m.mu.Unlock()
	if !found {
		// Discard: either already timed out, already delivered (a
		// duplicate), or for an id this instance never allocated.
		return
	}
	entry.ch <- resp
}

func (m *Multiplexer) dispatchEvent(evt protocol.Event) {
	m.handlerMu.Lock()
	handler := m.handler
	m.handlerMu.Unlock()
	if handler == nil {
		return
	}
	handler(evt)
}

// Mode returns the multiplexer's current attachment mode.
func (m *Multiplexer) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Healthy reports whether the writer stream is still usable. It becomes
// false permanently once the writer (or reader) task observes a fatal
// I/O error, and is reset only by a fresh Attach.
func (m *Multiplexer) Healthy() bool {
	return m.healthy.Load()
}

// IsRunning implements the SharedDaemon half of §4.D.isRunning: the
// writer channel is bound and the stream is healthy. The EmbeddedWorker
// half (non-blocking child try-wait) is the lifecycle supervisor's
// concern, since only it owns the child handle (§2).
func (m *Multiplexer) IsRunning() bool {
	m.writerMu.Lock()
	bound := m.writerCh != nil
	m.writerMu.Unlock()
	return bound && m.healthy.Load()
}

func (m *Multiplexer) nextID() string {
	return fmt.Sprintf("%s-%d", m.idPrefix, m.idSeq.Add(1))
}

// SendCommand implements §4.D.sendCommand including the retry policy:
// up to 3 total attempts with linear backoff (250ms × attempt number) on
// the four retryable error kinds, preserving one idempotency key across
// all attempts of one call while incrementing retryAttempt.
func (m *Multiplexer) SendCommand(ctx context.Context, command string, params any) (json.RawMessage, error) {
	idempotencyKey := fmt.Sprintf("%s-%d", command, time.Now().UnixMicro())

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := m.sendOnce(ctx, command, params, idempotencyKey, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == maxAttempts {
			return nil, err
		}
		select {
		case <-time.After(backoffUnit * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (m *Multiplexer) sendOnce(ctx context.Context, command string, params any, idempotencyKey string, attempt int) (json.RawMessage, error) {
	if !m.writerBound() || !m.healthy.Load() {
		return nil, ErrNotRunning
	}

	augmented, err := augmentParams(params, idempotencyKey, attempt)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	id := m.nextID()
	m.writerMu.Lock()
	authToken := m.authToken
	m.writerMu.Unlock()

	req := protocol.Request{ID: id, Command: command, Params: augmented, AuthToken: authToken}

	entryCh := make(chan protocol.Response, 1)
	m.mu.Lock()
	m.pending[id] = pendingEntry{ch: entryCh}
	m.mu.Unlock()

	removePending := func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}

	m.writerMu.Lock()
	ch := m.writerCh
	m.writerMu.Unlock()
	if ch == nil {
		removePending()
		return nil, ErrNotRunning
	}
	select {
	case ch <- req:
	default:
		removePending()
		return nil, ErrEnqueueFailed
	}

	deadline := DefaultDeadline
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case resp, ok := <-entryCh:
		if !ok {
			removePending()
			return nil, ErrOneShotClosed
		}
		if resp.Success {
			return resp.Result, nil
		}
		return nil, WorkerError(resp.Error)
	case <-timer.C:
		removePending()
		return nil, ErrTimeout
	case <-ctx.Done():
		removePending()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (m *Multiplexer) writerBound() bool {
	m.writerMu.Lock()
	defer m.writerMu.Unlock()
	return m.writerCh != nil
}

// Stop tears the transport down per §4.D.stop: the writer channel is
// cleared, writer health reset, mode reset to Disconnected, and every
// pending waiter is completed with a synthetic ErrStopped. It does not
// kill any child process — that is the lifecycle supervisor's job in
// EmbeddedWorker mode.
func (m *Multiplexer) Stop() {
	m.writerMu.Lock()
	ch := m.writerCh
	m.writerCh = nil
	closer := m.closer
	m.closer = nil
	m.writerMu.Unlock()

	if ch != nil {
		close(ch)
	}
	if closer != nil {
		_ = closer.Close()
	}

	m.healthy.Store(false)

	m.mu.Lock()
	m.mode = Disconnected
	pending := m.pending
	m.pending = make(map[string]pendingEntry)
	m.mu.Unlock()

	for _, entry := range pending {
		entry.ch <- protocol.Response{Success: false, Error: ErrStopped.Error()}
	}
}

// Wait blocks until the writer and reader tasks have both returned.
// Intended for tests and for a clean shutdown sequence after Stop.
func (m *Multiplexer) Wait() {
	m.wg.Wait()
}

func augmentParams(params any, idempotencyKey string, retryAttempt int) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	isObject := false
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			isObject = true
		}
		break
	}

	keyJSON, _ := json.Marshal(idempotencyKey)
	attemptJSON, _ := json.Marshal(retryAttempt)

	if isObject {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		if fields == nil {
			fields = make(map[string]json.RawMessage)
		}
		fields["_idempotencyKey"] = keyJSON
		fields["_retryAttempt"] = attemptJSON
		return json.Marshal(fields)
	}

	wrapped := map[string]json.RawMessage{
		"payload":         raw,
		"_idempotencyKey": keyJSON,
		"_retryAttempt":   attemptJSON,
	}
	return json.Marshal(wrapped)
}
