// Package wire implements the broker's framed text protocol: inbound frame
// parsing with delta reconstruction against per-subscription baselines, and
// outbound connect/sub/unsub framing.
package wire

import "encoding/json"

// Code identifies the frame type.
type Code byte

const (
	// CodeAnswer carries a full JSON payload that becomes the new baseline.
	CodeAnswer Code = 'A'
	// CodeDelta carries an edit script applied against the baseline.
	CodeDelta Code = 'D'
	// CodeComplete ends the stream and clears the baseline.
	CodeComplete Code = 'C'
	// CodeError carries a JSON business failure for the subscription.
	CodeError Code = 'E'
)

// String returns the single-letter wire form.
func (c Code) String() string { return string(rune(c)) }

// Message is a decoded inbound frame. Payload is nil for CodeComplete.
type Message struct {
	ID      int
	Code    Code
	Payload json.RawMessage
}

// Error is a protocol-level failure: malformed frame, JSON parse failure,
// delta against a missing baseline, or a dead connection. ID is the affected
// subscription, or 0 for connection-level failures.
type Error struct {
	ID     int
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }
