package session

import (
	"context"
	"sync"
	"time"

	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/event"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/metrics"
)

// TickerExchangeSuffix is appended to ISINs when subscribing to the ticker
// topic; the broker keys tickers by instrument and venue.
const TickerExchangeSuffix = ".LSX"

// evaluation is one predicate hit crossing from a watcher goroutine to the
// awaiting caller.
type evaluation struct {
	isin string
	snap *event.Snapshot
	hits []event.ConditionHit
}

// AwaitEvent is the streaming pattern: one ticker subscription per requested
// instrument, every answer and delta routed through that instrument's
// predicate tracker. The first hit wins; a timeout resolves with the last
// snapshot seen per instrument. All subscriptions are torn down on every exit
// path, and exactly one outcome is returned.
func (c *Client) AwaitEvent(ctx context.Context, req event.Request) (*event.Result, error) {
	if err := c.gate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		hitCh  = make(chan evaluation, 1)
		errCh  = make(chan error, len(req.Subscriptions))
		stop   = make(chan struct{})
		lastMu sync.Mutex
		last   = make(map[string]event.Snapshot)
	)

	var subs []*Subscription
	defer func() {
		close(stop)
		for _, sub := range subs {
			c.Unsubscribe(sub.ID)
		}
	}()

	start := c.clock.Now()

	for _, sr := range req.Subscriptions {
		sub, err := c.Subscribe(TopicTicker, map[string]any{"id": sr.ISIN + TickerExchangeSuffix})
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)

		tracker := event.NewTracker(sr)
		go c.watchTicker(sub, tracker, stop, hitCh, errCh, &lastMu, last)
	}

	timer := c.clock.After(time.Duration(req.TimeoutSeconds) * time.Second)

	select {
	case <-ctx.Done():
		metrics.RecordAwait("event", "canceled")
		return nil, ctx.Err()

	case err := <-errCh:
		metrics.RecordAwait("event", "error")
		return nil, err

	case ev := <-hitCh:
		metrics.RecordAwait("event", "triggered")
		return &event.Result{
			Status:              event.StatusTriggered,
			ISIN:                ev.isin,
			Snapshot:            ev.snap,
			TriggeredConditions: ev.hits,
			DurationSeconds:     c.clock.Now().Sub(start).Seconds(),
		}, nil

	case <-timer:
		metrics.RecordAwait("event", "timeout")
		lastMu.Lock()
		tickers := make(map[string]event.Snapshot, len(last))
		for isin, snap := range last {
			tickers[isin] = snap
		}
		lastMu.Unlock()
		return &event.Result{
			Status:          event.StatusTimeout,
			LastTickers:     tickers,
			DurationSeconds: float64(req.TimeoutSeconds),
		}, nil
	}
}

// watchTicker consumes one subscription's updates in arrival order and runs
// the tracker over each snapshot. It exits on the first hit, a terminal
// update, or teardown.
func (c *Client) watchTicker(
	sub *Subscription,
	tracker *event.Tracker,
	stop <-chan struct{},
	hitCh chan<- evaluation,
	errCh chan<- error,
	lastMu *sync.Mutex,
	last map[string]event.Snapshot,
) {
	for {
		select {
		case <-stop:
			return

		case u := <-sub.Updates():
			if u.Err != nil {
				select {
				case errCh <- u.Err:
				case <-stop:
				}
				return
			}
			if u.End {
				return
			}

			snap, err := event.ParseTicker(u.Payload)
			if err != nil {
				c.log.Debug().Err(err).Int("id", sub.ID).Msg("Skipping unparsable ticker")
				continue
			}

			lastMu.Lock()
			last[tracker.ISIN()] = *snap
			lastMu.Unlock()

			if hits := tracker.Evaluate(snap); hits != nil {
				select {
				case hitCh <- evaluation{isin: tracker.ISIN(), snap: snap, hits: hits}:
				case <-stop:
				}
				return
			}
		}
	}
}
