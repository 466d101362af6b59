// Package session exposes the authenticated streaming surface: subscription
// management over the single socket and the two high-level request patterns,
// AwaitAnswer and AwaitEvent.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/auth"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/metrics"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/stream"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/wire"
)

// Topics the surrounding feature services subscribe to. The core treats
// their payload shapes as opaque.
const (
	TopicTicker           = "ticker"
	TopicAggregateHistory = "aggregateHistory"
	TopicNeonSearch       = "neonSearch"
	TopicInstrument       = "instrument"
	TopicCompactPortfolio = "compactPortfolio"
	TopicCash             = "cash"
	TopicOrders           = "orders"
	TopicCreateOrder      = "simpleCreateOrder"
	TopicCancelOrder      = "cancelOrder"
)

// Config configures the session client. Zero values select production
// defaults.
type Config struct {
	Handshake *auth.HandshakeClient

	URL               string
	Dialer            stream.Dialer
	Clock             stream.Clock
	Logger            zerolog.Logger
	ConnectInfo       wire.ConnectInfo
	StrictDeltas      bool
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
}

// Client is the session facade. Every public call is gated on the handshake
// client being authenticated. One client owns at most one socket.
type Client struct {
	cfg   Config
	clock stream.Clock
	log   zerolog.Logger
	reg   *registry

	mu   sync.Mutex
	conn *stream.Connection
}

// NewClient creates a session client around an authenticated handshake.
func NewClient(cfg Config) *Client {
	if cfg.Clock == nil {
		cfg.Clock = stream.RealClock()
	}
	return &Client{
		cfg:   cfg,
		clock: cfg.Clock,
		log:   cfg.Logger,
		reg:   newRegistry(cfg.Logger),
	}
}

// gate fails any call made while not authenticated.
func (c *Client) gate() error {
	if c.cfg.Handshake == nil || c.cfg.Handshake.State() != auth.StateAuthenticated {
		return &auth.Error{Code: "NOT_AUTHENTICATED", Message: "log in before using the streaming session"}
	}
	return nil
}

// Connect opens the streaming socket with the session cookies and sends the
// connect frame.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.gate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.conn.State() != stream.StateDisconnected {
		return &wire.Error{Reason: "already connected"}
	}

	conn := stream.New(stream.Config{
		URL:               c.cfg.URL,
		Dialer:            c.cfg.Dialer,
		Clock:             c.clock,
		Router:            c.reg,
		Logger:            c.log,
		ConnectInfo:       c.cfg.ConnectInfo,
		StrictDeltas:      c.cfg.StrictDeltas,
		HeartbeatInterval: c.cfg.HeartbeatInterval,
		StaleAfter:        c.cfg.StaleAfter,
	})

	header := http.Header{}
	if session := c.cfg.Handshake.Session(); session != nil {
		header.Set("Cookie", session.CookieHeader())
	}

	if err := conn.Open(ctx, header); err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Disconnect tears the socket down. Rebuilding is an explicit user action:
// call Connect again.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Connected reports whether the socket is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return conn != nil && conn.State() == stream.StateConnected
}

func (c *Client) connection() *stream.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Subscribe allocates the next id and sends the sub frame. There is no
// delivery guarantee: if the socket drops after send, the subscription fails
// when the heartbeat supervisor fires.
func (c *Client) Subscribe(topic string, payload map[string]any) (*Subscription, error) {
	if err := c.gate(); err != nil {
		return nil, err
	}
	conn := c.connection()
	if conn == nil || conn.State() != stream.StateConnected {
		return nil, &wire.Error{Reason: "not connected"}
	}

	sub := c.reg.allocate(topic)
	frame, err := wire.SubFrame(sub.ID, topic, payload)
	if err != nil {
		c.reg.remove(sub.ID)
		return nil, err
	}
	if err := conn.Send(frame); err != nil {
		c.reg.remove(sub.ID)
		return nil, err
	}
	metrics.FramesSent.WithLabelValues("sub").Inc()

	c.log.Debug().Int("id", sub.ID).Str("topic", topic).Msg("Subscribed")
	return sub, nil
}

// Unsubscribe sends the unsub frame (best effort, only while connected) and
// detaches the sink. Safe on unknown ids.
func (c *Client) Unsubscribe(id int) {
	if c.reg.remove(id) == nil {
		return
	}

	conn := c.connection()
	if conn != nil && conn.State() == stream.StateConnected {
		if err := conn.Send(wire.UnsubFrame(id)); err != nil {
			c.log.Debug().Err(err).Int("id", id).Msg("Failed to send unsub frame")
			return
		}
		metrics.FramesSent.WithLabelValues("unsub").Inc()
	}
}

// ModifyOrder is not permitted by the broker's API. Cancel and replace
// instead.
func (c *Client) ModifyOrder(ctx context.Context, orderID string) error {
	return &NotSupportedError{Op: "order modification; cancel and create a new order"}
}
