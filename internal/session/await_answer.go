package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/metrics"
)

// AwaitAnswer is the single-shot pattern: subscribe, resolve on the first
// answer frame, tear the subscription down before returning. Delta frames
// arriving before the answer are ignored; callers of this pattern do not use
// delta streams. Exactly one outcome is returned per call.
func (c *Client) AwaitAnswer(ctx context.Context, topic string, payload map[string]any, timeout time.Duration) (json.RawMessage, error) {
	if err := c.gate(); err != nil {
		return nil, err
	}

	sub, err := c.Subscribe(topic, payload)
	if err != nil {
		return nil, err
	}
	defer c.Unsubscribe(sub.ID)

	// Selecting over the delivery channel, the timer, and the context gives
	// exactly one outcome with no listener leaks; the losing arms are
	// abandoned when the subscription is torn down.
	timer := c.clock.After(timeout)
	for {
		select {
		case <-ctx.Done():
			metrics.RecordAwait("answer", "canceled")
			return nil, ctx.Err()

		case <-timer:
			metrics.RecordAwait("answer", "timeout")
			return nil, fmt.Errorf("%w: no answer for topic %q within %s", ErrTimeout, topic, timeout)

		case u := <-sub.Updates():
			switch {
			case u.Err != nil:
				metrics.RecordAwait("answer", "error")
				return nil, u.Err
			case u.End:
				metrics.RecordAwait("answer", "error")
				return nil, &SubscriptionError{ID: sub.ID, Message: "stream completed before an answer arrived"}
			case u.Delta:
				continue
			default:
				metrics.RecordAwait("answer", "ok")
				return u.Payload, nil
			}
		}
	}
}

// Answer runs AwaitAnswer and decodes the payload into T, the typed schema
// seam for feature services.
func Answer[T any](ctx context.Context, c *Client, topic string, payload map[string]any, timeout time.Duration) (T, error) {
	var out T

	raw, err := c.AwaitAnswer(ctx, topic, payload, timeout)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode %q answer: %w", topic, err)
	}
	return out, nil
}
