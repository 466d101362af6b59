// Package metrics exposes Prometheus metrics for the broker session core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics for the broker session core
var (
	// Wire protocol metrics
	FramesDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tr_frames_decoded_total",
			Help: "Total number of inbound frames decoded, by frame code",
		},
		[]string{"code"},
	)

	FrameDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tr_frame_decode_errors_total",
			Help: "Total number of inbound frames that failed to decode",
		},
	)

	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tr_frames_sent_total",
			Help: "Total number of outbound frames sent, by kind",
		},
		[]string{"kind"},
	)

	// Subscription metrics
	SubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tr_subscriptions_active",
			Help: "Number of currently active subscriptions",
		},
	)

	SubscriptionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tr_subscriptions_total",
			Help: "Total number of subscription ids allocated",
		},
	)

	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tr_dropped_frames_total",
			Help: "Frames referencing unknown subscription ids (teardown races)",
		},
	)

	// Connection metrics
	ConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tr_connection_up",
			Help: "Whether the streaming connection is up (1) or down (0)",
		},
	)

	ConnectionTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tr_connection_timeouts_total",
			Help: "Times the heartbeat supervisor declared the connection dead",
		},
	)

	HeartbeatStaleness = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tr_heartbeat_staleness_seconds",
			Help: "Seconds since the last inbound message, sampled by the supervisor",
		},
	)

	// Login metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tr_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// High-level pattern metrics
	AwaitOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tr_await_outcomes_total",
			Help: "Outcomes of AwaitAnswer/AwaitEvent calls",
		},
		[]string{"pattern", "outcome"},
	)

	// Ticker metrics (daemon)
	TickerUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tr_ticker_updates_total",
			Help: "Ticker snapshots received per instrument",
		},
		[]string{"isin"},
	)
)

// RecordFrame records a decoded inbound frame.
func RecordFrame(code string) {
	FramesDecoded.WithLabelValues(code).Inc()
}

// RecordConnectionStatus records whether the connection is up.
func RecordConnectionStatus(up bool) {
	status := 0.0
	if up {
		status = 1.0
	}
	ConnectionStatus.Set(status)
}

// RecordLogin records a login attempt outcome.
func RecordLogin(outcome string) {
	LoginAttempts.WithLabelValues(outcome).Inc()
}

// RecordAwait records the outcome of a high-level call.
func RecordAwait(pattern, outcome string) {
	AwaitOutcomes.WithLabelValues(pattern, outcome).Inc()
}

// Server starts the Prometheus metrics HTTP server
type Server struct {
	addr   string
	server *http.Server
}

// NewServer creates a new metrics server
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("Starting metrics server")
	return s.server.ListenAndServe()
}

// Stop stops the metrics server gracefully
func (s *Server) Stop() error {
	return s.server.Close()
}
