package session

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/metrics"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/wire"
)

// updateBuffer bounds each subscription's delivery channel. The reader
// goroutine blocks when a consumer falls this far behind, preserving order.
const updateBuffer = 64

// Update is one demultiplexed event for a subscription.
type Update struct {
	// Payload is the fully reconstructed JSON document. Nil when Err is set
	// or End is true.
	Payload json.RawMessage
	// Delta marks payloads reconstructed from a delta frame.
	Delta bool
	// End marks the broker completing the stream.
	End bool
	// Err is a SubscriptionError (E frame) or a wire error (dead connection,
	// per-frame decode failure).
	Err error
}

// Subscription is one logical stream multiplexed over the socket.
type Subscription struct {
	ID    int
	Topic string

	updates   chan Update
	done      chan struct{}
	closeOnce sync.Once
}

// Updates returns the in-order delivery channel. It is never closed; select
// against Done.
func (s *Subscription) Updates() <-chan Update { return s.updates }

// Done is closed when the subscription is removed from the registry.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// deliver blocks until the consumer takes the update or the subscription is
// removed, keeping per-id delivery strictly in arrival order.
func (s *Subscription) deliver(u Update) {
	select {
	case s.updates <- u:
	case <-s.done:
	}
}

// registry allocates subscription ids and routes demultiplexed frames to
// per-id channels. Ids start at 1 and are never reused within a socket
// lifetime.
type registry struct {
	log zerolog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]*Subscription
}

func newRegistry(log zerolog.Logger) *registry {
	return &registry{
		log:  log,
		subs: make(map[int]*Subscription),
	}
}

// allocate reserves the next id and registers a subscription for it.
func (r *registry) allocate(topic string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	sub := &Subscription{
		ID:      r.nextID,
		Topic:   topic,
		updates: make(chan Update, updateBuffer),
		done:    make(chan struct{}),
	}
	r.subs[sub.ID] = sub

	metrics.SubscriptionsTotal.Inc()
	metrics.SubscriptionsActive.Set(float64(len(r.subs)))
	return sub
}

// remove detaches a subscription. Safe on unknown ids; returns nil then.
func (r *registry) remove(id int) *Subscription {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	metrics.SubscriptionsActive.Set(float64(len(r.subs)))
	r.mu.Unlock()

	if !ok {
		return nil
	}
	sub.close()
	return sub
}

func (r *registry) get(id int) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id]
}

// Route implements stream.Router. Frames for unknown ids are dropped with a
// debug log; they commonly arrive during teardown races.
func (r *registry) Route(msg *wire.Message) {
	sub := r.get(msg.ID)
	if sub == nil {
		metrics.DroppedFrames.Inc()
		r.log.Debug().Int("id", msg.ID).Str("code", msg.Code.String()).Msg("Dropping frame for unknown subscription")
		return
	}

	switch msg.Code {
	case wire.CodeAnswer:
		sub.deliver(Update{Payload: msg.Payload})
	case wire.CodeDelta:
		sub.deliver(Update{Payload: msg.Payload, Delta: true})
	case wire.CodeComplete:
		// Terminal frame: the registry's ownership ends here.
		sub.deliver(Update{End: true})
		r.remove(msg.ID)
	case wire.CodeError:
		sub.deliver(Update{Err: subscriptionError(msg.ID, msg.Payload)})
		r.remove(msg.ID)
	}
}

// FailSubscription implements stream.Router for per-frame decode failures
// scoped to one id.
func (r *registry) FailSubscription(id int, err error) {
	if sub := r.get(id); sub != nil {
		sub.deliver(Update{Err: err})
	}
}

// FailAll implements stream.Router. A dead connection fails every active
// subscription.
func (r *registry) FailAll(err error) {
	r.mu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.subs = make(map[int]*Subscription)
	metrics.SubscriptionsActive.Set(0)
	r.mu.Unlock()

	for _, sub := range subs {
		// Best effort: a consumer that stopped draining still observes Done.
		select {
		case sub.updates <- Update{Err: err}:
		default:
		}
		sub.close()
	}
}
