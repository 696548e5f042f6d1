// Package hook handles the process boundary with the external host runtime.
//
// The host delivers one JSON-shaped event per turn on standard input and
// consumes a guidance block on standard output. This package decodes input
// events and renders guidance; it knows nothing about classification or
// session state.
//
// Key types:
//   - [Event] - The per-turn input record from the host
//   - [Guidance] - The output block injected back into the host's turn
package hook

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// PriorAction reports the outcome of the action the host executed on the
// previous turn, used to advance the session's step index.
type PriorAction struct {
	ActionID string `json:"actionId"`
	Outcome  string `json:"outcome,omitempty"`
}

// Succeeded reports whether the prior action completed successfully. An
// empty outcome counts as success: hosts that only deliver completed actions
// omit the field.
func (p *PriorAction) Succeeded() bool {
	return p.Outcome == "" || p.Outcome == "success"
}

// Event is the input record delivered once per turn by the host.
type Event struct {
	// SessionID identifies the conversation. When the host omits it, a
	// fresh UUID is minted so the turn still routes; such turns cannot
	// resume prior state.
	SessionID string `json:"sessionId"`

	// Text is the raw free-text user request.
	Text string `json:"text"`

	// PriorAction optionally reports the previous turn's action outcome.
	PriorAction *PriorAction `json:"priorAction,omitempty"`
}

// ReadEvent decodes a single event from r, minting a session id when the
// host omitted one.
func ReadEvent(r io.Reader) (*Event, error) {
	var ev Event
	dec := json.NewDecoder(r)
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("failed to decode input event: %w", err)
	}
	if ev.SessionID == "" {
		ev.SessionID = uuid.NewString()
	}
	return &ev, nil
}

// ParseEvent decodes a single event from a JSON line, minting a session id
// when absent. Used by serve mode, which reads one event per line.
func ParseEvent(line []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode input event: %w", err)
	}
	if ev.SessionID == "" {
		ev.SessionID = uuid.NewString()
	}
	return &ev, nil
}
