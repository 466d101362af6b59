// Package stream owns the single persistent socket to the broker: the
// connect frame, heartbeat-based liveness, and demultiplexing of inbound
// frames by subscription id.
package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/metrics"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/wire"
)

// DefaultURL is the broker's production streaming endpoint.
const DefaultURL = "wss://api.traderepublic.com"

const (
	// The supervisor samples staleness at this interval.
	defaultHeartbeatInterval = 20 * time.Second
	// The connection is declared dead once no message arrived for this long.
	defaultStaleAfter = 40 * time.Second
)

// State is the socket lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Router receives demultiplexed frames from the reader goroutine. Messages
// for a given id are routed strictly in arrival order.
type Router interface {
	Route(msg *wire.Message)
	FailSubscription(id int, err error)
	FailAll(err error)
}

// Config configures a connection. Zero values select production defaults.
type Config struct {
	URL               string
	Dialer            Dialer
	Clock             Clock
	Router            Router
	Logger            zerolog.Logger
	ConnectInfo       wire.ConnectInfo
	StrictDeltas      bool
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
}

// Connection owns one socket. There is no automatic reconnection; a dead
// connection is torn down and the caller decides whether to rebuild.
type Connection struct {
	cfg   Config
	codec *wire.Codec

	state       atomic.Int32
	lastMessage atomic.Int64 // unix nanos

	conn Conn
	done chan struct{}
	wg   sync.WaitGroup

	teardownOnce sync.Once
	failOnce     sync.Once
}

// New creates a connection. Open must be called before anything is sent.
func New(cfg Config) *Connection {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &WebsocketDialer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if (cfg.ConnectInfo == wire.ConnectInfo{}) {
		cfg.ConnectInfo = wire.DefaultConnectInfo()
	}

	codec := wire.NewCodec()
	codec.StrictDeltas = cfg.StrictDeltas

	return &Connection{
		cfg:   cfg,
		codec: codec,
		done:  make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// LastMessageTime returns when the last inbound message arrived.
func (c *Connection) LastMessageTime() time.Time {
	return time.Unix(0, c.lastMessage.Load())
}

// Open dials the endpoint with the given headers (the session's Cookie header
// among them), sends the connect frame, and starts the reader and supervisor
// goroutines.
func (c *Connection) Open(ctx context.Context, header http.Header) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return &wire.Error{Reason: "connection already open"}
	}

	conn, err := c.cfg.Dialer.Dial(ctx, c.cfg.URL, header)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return &wire.Error{Reason: "failed to open streaming connection", Err: err}
	}
	c.conn = conn

	frame, err := wire.ConnectFrame(c.cfg.ConnectInfo)
	if err != nil {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		return &wire.Error{Reason: "failed to build connect frame", Err: err}
	}
	if err := conn.WriteMessage([]byte(frame)); err != nil {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		return &wire.Error{Reason: "failed to send connect frame", Err: err}
	}
	metrics.FramesSent.WithLabelValues("connect").Inc()

	c.lastMessage.Store(c.cfg.Clock.Now().UnixNano())
	c.state.Store(int32(StateConnected))
	metrics.RecordConnectionStatus(true)

	c.cfg.Logger.Info().Str("url", c.cfg.URL).Msg("Streaming connection established")

	c.wg.Add(2)
	go c.readLoop()
	go c.superviseLoop()

	return nil
}

// Send writes one outbound frame. Only valid while connected.
func (c *Connection) Send(frame string) error {
	if c.State() != StateConnected {
		return &wire.Error{Reason: "not connected"}
	}
	if err := c.conn.WriteMessage([]byte(frame)); err != nil {
		return &wire.Error{Reason: "failed to send frame", Err: err}
	}
	return nil
}

// Close tears the connection down without failing active subscriptions. Used
// for orderly, user-driven shutdown.
func (c *Connection) Close() error {
	c.teardown()
	c.wg.Wait()
	return nil
}

// teardown closes the socket exactly once and marks the state disconnected.
func (c *Connection) teardown() {
	c.teardownOnce.Do(func() {
		close(c.done)
		c.state.Store(int32(StateDisconnected))
		metrics.RecordConnectionStatus(false)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// fail tears down and propagates err to every active subscription, exactly
// once.
func (c *Connection) fail(err error) {
	c.failOnce.Do(func() {
		c.cfg.Logger.Error().Err(err).Msg("Streaming connection failed")
		c.teardown()
		if c.cfg.Router != nil {
			c.cfg.Router.FailAll(err)
		}
	})
}

// readLoop is the sole consumer of the socket and the sole owner of the
// codec and its baselines.
func (c *Connection) readLoop() {
	defer c.wg.Done()

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Orderly close.
			default:
				c.fail(&wire.Error{Reason: "connection closed", Err: err})
			}
			return
		}

		c.lastMessage.Store(c.cfg.Clock.Now().UnixNano())

		msg, err := c.codec.Decode(data)
		if err != nil {
			metrics.FrameDecodeErrors.Inc()
			var we *wire.Error
			if errors.As(err, &we) && we.ID != 0 {
				// The failure is scoped to one subscription; others are
				// unaffected.
				c.cfg.Logger.Warn().Err(err).Int("id", we.ID).Msg("Frame decode failed")
				if c.cfg.Router != nil {
					c.cfg.Router.FailSubscription(we.ID, err)
				}
			} else {
				c.cfg.Logger.Warn().Err(err).Msg("Dropping undecodable frame")
			}
			continue
		}

		metrics.RecordFrame(msg.Code.String())
		if c.cfg.Router != nil {
			c.cfg.Router.Route(msg)
		}
	}
}

// superviseLoop declares the connection dead when no message arrived for
// StaleAfter. There is no ping frame in the broker protocol; liveness is
// inferred from inbound traffic alone.
func (c *Connection) superviseLoop() {
	defer c.wg.Done()

	tick, stop := c.cfg.Clock.Tick(c.cfg.HeartbeatInterval)
	defer stop()

	for {
		select {
		case <-c.done:
			return
		case <-tick:
			stale := c.cfg.Clock.Now().Sub(c.LastMessageTime())
			metrics.HeartbeatStaleness.Set(stale.Seconds())
			if stale >= c.cfg.StaleAfter {
				metrics.ConnectionTimeouts.Inc()
				c.fail(&wire.Error{Reason: "connection timeout: no message received within heartbeat window"})
				return
			}
		}
	}
}
