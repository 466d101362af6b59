package wire

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Frames are <id> <code> <payload> where the payload may itself contain
// newlines, so the pattern runs in dotall mode. Complete frames arrive
// without a payload.
var framePattern = regexp.MustCompile(`(?s)^(\d+) (A|D|C|E)(?: (.*))?$`)

// Codec decodes inbound frames and owns the per-subscription baselines
// against which delta frames are applied. It is not safe for concurrent use;
// the connection's reader goroutine is its sole owner.
type Codec struct {
	// StrictDeltas makes unknown delta instructions an error instead of
	// silently skipping them the way the broker's web client does.
	StrictDeltas bool

	baselines map[int]string
}

// NewCodec creates a codec with no baselines.
func NewCodec() *Codec {
	return &Codec{baselines: make(map[int]string)}
}

// HasBaseline reports whether a baseline exists for id.
func (c *Codec) HasBaseline(id int) bool {
	_, ok := c.baselines[id]
	return ok
}

// Baseline returns the current baseline for id.
func (c *Codec) Baseline(id int) (string, bool) {
	b, ok := c.baselines[id]
	return b, ok
}

// Reset drops all baselines. Called when the connection dies; baselines never
// survive a socket.
func (c *Codec) Reset() {
	c.baselines = make(map[int]string)
}

// Decode parses one inbound frame, maintaining the baseline map: answers
// replace the baseline, deltas are applied against it, complete frames delete
// it. A failure on one frame leaves every other subscription's state
// untouched.
func (c *Codec) Decode(raw []byte) (*Message, error) {
	m := framePattern.FindSubmatch(raw)
	if m == nil {
		return nil, &Error{Reason: fmt.Sprintf("malformed frame: %q", truncate(string(raw), 120))}
	}

	id, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return nil, &Error{Reason: "malformed frame: invalid subscription id", Err: err}
	}
	code := Code(m[2][0])
	payload := string(m[3])

	switch code {
	case CodeComplete:
		delete(c.baselines, id)
		return &Message{ID: id, Code: CodeComplete}, nil

	case CodeAnswer:
		c.baselines[id] = payload
		if !json.Valid([]byte(payload)) {
			return nil, &Error{ID: id, Reason: "answer payload is not valid JSON"}
		}
		return &Message{ID: id, Code: CodeAnswer, Payload: json.RawMessage(payload)}, nil

	case CodeDelta:
		baseline, ok := c.baselines[id]
		if !ok {
			return nil, &Error{ID: id, Reason: fmt.Sprintf("delta frame for subscription %d without baseline", id)}
		}
		next, err := applyDelta(baseline, payload, c.StrictDeltas)
		if err != nil {
			return nil, &Error{ID: id, Reason: "delta application failed", Err: err}
		}
		c.baselines[id] = next
		if !json.Valid([]byte(next)) {
			return nil, &Error{ID: id, Reason: "reconstructed payload is not valid JSON"}
		}
		return &Message{ID: id, Code: CodeDelta, Payload: json.RawMessage(next)}, nil

	case CodeError:
		if !json.Valid([]byte(payload)) {
			return nil, &Error{ID: id, Reason: "error payload is not valid JSON"}
		}
		return &Message{ID: id, Code: CodeError, Payload: json.RawMessage(payload)}, nil

	default:
		return nil, &Error{Reason: fmt.Sprintf("unknown frame code %q", code)}
	}
}

// applyDelta applies a tab-separated edit script to the baseline. The cursor
// advances over the baseline in code units; the output accumulates inserted
// text and copied spans.
func applyDelta(baseline, script string, strict bool) (string, error) {
	base := []rune(baseline)
	var out strings.Builder
	cursor := 0

	for _, instr := range strings.Split(script, "\t") {
		if instr == "" {
			continue
		}
		op, arg := instr[0], instr[1:]

		switch op {
		case '+':
			text, err := url.QueryUnescape(strings.ReplaceAll(arg, "+", " "))
			if err != nil {
				return "", fmt.Errorf("invalid insert instruction %q: %w", instr, err)
			}
			out.WriteString(strings.TrimSpace(text))

		case '-':
			n, err := strconv.Atoi(arg)
			if err != nil {
				return "", fmt.Errorf("invalid skip instruction %q: %w", instr, err)
			}
			if cursor+n > len(base) {
				return "", fmt.Errorf("skip past end of baseline (cursor %d + %d > %d)", cursor, n, len(base))
			}
			cursor += n

		case '=':
			n, err := strconv.Atoi(arg)
			if err != nil {
				return "", fmt.Errorf("invalid copy instruction %q: %w", instr, err)
			}
			if cursor+n > len(base) {
				return "", fmt.Errorf("copy past end of baseline (cursor %d + %d > %d)", cursor, n, len(base))
			}
			out.WriteString(string(base[cursor : cursor+n]))
			cursor += n

		default:
			// The broker's web client skips instructions it does not
			// recognize.
			if strict {
				return "", fmt.Errorf("unknown delta instruction %q", instr)
			}
		}
	}

	return out.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
