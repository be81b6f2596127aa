// Package protocol implements the newline-delimited JSON wire format
// spoken between the supervisor and the worker: request, response, and
// event envelopes, plus the line-framed codec that decodes one from the
// other.
package protocol

import "encoding/json"

// Request is the outbound envelope the supervisor writes to the worker.
type Request struct {
	ID        string          `json:"id"`
	Command   string          `json:"command"`
	Params    json.RawMessage `json:"params"`
	AuthToken string          `json:"authToken,omitempty"`
}

// Response is the inbound envelope correlated to a Request by ID.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Event is an inbound envelope the worker emits without a matching
// request; it carries no id and is fanned out to whatever event handler
// is currently installed.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// wireEnvelope is the superset of fields used to structurally classify
// an incoming line without committing to a shape up front. A Response
// has "id" and "success"; an Event has "type" (a line carrying all three
// is classified as a Response). Using
// pointers for id/success/type lets us tell "field present" apart from
// "field present with zero value".
type wireEnvelope struct {
	ID      *string         `json:"id"`
	Success *bool           `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *string         `json:"error,omitempty"`

	Type      *string         `json:"type"`
	SessionID *string         `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Classify decodes a single line into either a Response or an Event,
// trying the response shape first as required by §4.C: a Response
// requires both "id" and "success"; an Event requires "type". Anything
// else — including malformed JSON — is reported via ok=false and must be
// discarded silently by the caller (the stream may interleave the
// worker's own human-readable log lines).
func Classify(line []byte) (resp *Response, evt *Event, ok bool) {
	var env wireEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, nil, false
	}
	if env.ID != nil && env.Success != nil {
		r := &Response{ID: *env.ID, Success: *env.Success, Result: env.Result}
		if env.Error != nil {
			r.Error = *env.Error
		}
		return r, nil, true
	}
	if env.Type != nil {
		e := &Event{Type: *env.Type, Data: env.Data}
		if env.SessionID != nil {
			e.SessionID = *env.SessionID
		}
		return nil, e, true
	}
	return nil, nil, false
}
