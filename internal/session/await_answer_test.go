package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answerOutcome struct {
	payload json.RawMessage
	err     error
}

// startAwaitAnswer runs AwaitAnswer in the background and waits until the sub
// frame went out.
func startAwaitAnswer(t *testing.T, client *Client, conn *fakeConn, topic string, payload map[string]any) <-chan answerOutcome {
	t.Helper()

	out := make(chan answerOutcome, 1)
	go func() {
		p, err := client.AwaitAnswer(context.Background(), topic, payload, time.Minute)
		out <- answerOutcome{p, err}
	}()

	require.Eventually(t, func() bool { return conn.sentCount("sub ") == 1 }, time.Second, 5*time.Millisecond)
	return out
}

func TestAwaitAnswerResolvesOnAnswer(t *testing.T) {
	client, conn, _, _ := newTestClient(t)

	out := startAwaitAnswer(t, client, conn, TopicCash, nil)
	conn.push(`1 A {"amount":{"value":1000.5,"currency":"EUR"}}`)

	res := <-out
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"amount":{"value":1000.5,"currency":"EUR"}}`, string(res.payload))

	// The single-shot pattern tears its subscription down.
	assert.Equal(t, 1, conn.sentCount("unsub 1"))
}

func TestAwaitAnswerIgnoresDeltas(t *testing.T) {
	client, conn, _, _ := newTestClient(t)

	out := startAwaitAnswer(t, client, conn, TopicInstrument, map[string]any{"id": "US0378331005"})

	// A delta delivered ahead of the answer is skipped, not returned.
	sub := client.reg.get(1)
	require.NotNil(t, sub)
	sub.deliver(Update{Payload: json.RawMessage(`{"partial":true}`), Delta: true})
	sub.deliver(Update{Payload: json.RawMessage(`{"full":true}`)})

	res := <-out
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"full":true}`, string(res.payload))
}

func TestAwaitAnswerErrorFrame(t *testing.T) {
	client, conn, _, _ := newTestClient(t)

	out := startAwaitAnswer(t, client, conn, TopicInstrument, map[string]any{"id": "XX0000000000"})
	conn.push(`1 E {"errors":[{"errorCode":"BAD_ISIN","errorMessage":"unknown instrument"}]}`)

	res := <-out
	var subErr *SubscriptionError
	require.ErrorAs(t, res.err, &subErr)
	assert.Equal(t, "BAD_ISIN", subErr.Code)
	assert.Equal(t, "unknown instrument", subErr.Message)

	// The broker already terminated the subscription; no unsub goes out.
	assert.Equal(t, 0, conn.sentCount("unsub"))
}

func TestAwaitAnswerStreamCompleted(t *testing.T) {
	client, conn, _, _ := newTestClient(t)

	out := startAwaitAnswer(t, client, conn, TopicOrders, nil)
	conn.push("1 C")

	res := <-out
	var subErr *SubscriptionError
	require.ErrorAs(t, res.err, &subErr)
	assert.Contains(t, subErr.Message, "completed")
}

func TestAwaitAnswerTimeout(t *testing.T) {
	client, conn, clock, _ := newTestClient(t)

	out := startAwaitAnswer(t, client, conn, TopicCash, nil)

	require.Eventually(t, func() bool { return clock.timerCount() == 1 }, time.Second, 5*time.Millisecond)
	clock.fireTimers()

	res := <-out
	require.ErrorIs(t, res.err, ErrTimeout)
	assert.Nil(t, res.payload)

	// Exactly one teardown for the one subscription.
	assert.Equal(t, 1, conn.sentCount("unsub 1"))
}

func TestAwaitAnswerCanceledContext(t *testing.T) {
	client, conn, _, _ := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan answerOutcome, 1)
	go func() {
		p, err := client.AwaitAnswer(ctx, TopicCash, nil, time.Minute)
		out <- answerOutcome{p, err}
	}()
	require.Eventually(t, func() bool { return conn.sentCount("sub ") == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	res := <-out
	require.ErrorIs(t, res.err, context.Canceled)
}

func TestAnswerDecodesTypedPayload(t *testing.T) {
	client, conn, _, _ := newTestClient(t)

	type cash struct {
		Amount struct {
			Value    float64 `json:"value"`
			Currency string  `json:"currency"`
		} `json:"amount"`
	}

	out := make(chan answerOutcome, 1)
	resCh := make(chan cash, 1)
	go func() {
		c, err := Answer[cash](context.Background(), client, TopicCash, nil, time.Minute)
		resCh <- c
		out <- answerOutcome{err: err}
	}()
	require.Eventually(t, func() bool { return conn.sentCount("sub ") == 1 }, time.Second, 5*time.Millisecond)

	conn.push(`1 A {"amount":{"value":250.75,"currency":"EUR"}}`)

	res := <-out
	require.NoError(t, res.err)
	got := <-resCh
	assert.Equal(t, 250.75, got.Amount.Value)
	assert.Equal(t, "EUR", got.Amount.Currency)
}
