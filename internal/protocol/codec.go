package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineSize bounds a single protocol line; the worker may interleave
// arbitrarily large human-readable log output on the same stream, so the
// scanner buffer is sized generously rather than left at bufio's 64KiB
// default.
const maxLineSize = 16 * 1024 * 1024

// Decoder reads newline-delimited lines from a stream and classifies
// each into a Response or an Event, silently skipping anything that
// doesn't parse or doesn't structurally match either shape.
type Decoder struct {
	scanner        *bufio.Scanner
	discardedLines uint64
}

// NewDecoder wraps r for line-at-a-time decoding.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{scanner: scanner}
}

// Next reads and classifies the next protocol line, skipping (and
// counting) discarded non-protocol lines. It returns ok=false only when the
// stream ends or fails; callers check Err() after a false return to tell a
// clean end of stream from a read error.
func (d *Decoder) Next() (resp *Response, evt *Event, ok bool) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp, evt, ok := Classify(line)
		if ok {
			return resp, evt, true
		}
		// Open Question (§9.2) resolution: discarded lines are counted for
		// observability but never treated as fatal.
		d.discardedLines++
	}
	return nil, nil, false
}

// Err returns the terminal read error, if any (nil on a clean EOF).
func (d *Decoder) Err() error {
	return d.scanner.Err()
}

// DiscardedLines reports how many lines failed to parse as JSON or
// failed to classify as a Response or Event since the decoder was
// created.
func (d *Decoder) DiscardedLines() uint64 {
	return d.discardedLines
}

// Encoder serializes Request values as single newline-terminated JSON
// lines and flushes after each one.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder wraps w for line-at-a-time encoding.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one Request as a line and flushes the underlying
// writer. A marshal or write failure is returned verbatim; per §4.C the
// caller (the transport's writer task) is responsible for treating this
// as a fatal, stream-unhealthy condition.
func (e *Encoder) Encode(req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := e.w.Write(payload); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return e.w.Flush()
}
