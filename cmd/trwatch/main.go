package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/auth"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/config"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/event"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/keystore"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/metrics"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/publisher"
	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/session"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("api", cfg.APIBaseURL).
		Str("stream", cfg.StreamURL).
		Str("metrics", ":"+cfg.MetricsPort).
		Int("isins", len(cfg.ISINs)).
		Msg("Starting trade watch daemon")

	// Start metrics server
	metricsServer := metrics.NewServer(":" + cfg.MetricsPort)
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	// Device identity: generated once, reused on every start.
	store := keystore.New(keystore.NewFileStorage(cfg.KeysPath))
	pair, err := store.Ensure()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare key pair")
	}
	if pubKey, err := pair.PublicKeyBase64(); err == nil {
		log.Debug().Str("public_key", pubKey).Msg("Device key pair ready")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handshake := auth.NewHandshakeClient(auth.HandshakeConfig{
		BaseURL: cfg.APIBaseURL,
		Logger:  log.Logger,
	})

	if err := login(ctx, handshake, cfg); err != nil {
		metrics.RecordLogin("failed")
		log.Fatal().Err(err).Msg("Login failed")
	}
	metrics.RecordLogin("ok")

	client := session.NewClient(session.Config{
		Handshake: handshake,
		URL:       cfg.StreamURL,
		Logger:    log.Logger,
	})
	if err := client.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to open streaming connection")
	}

	var pub *publisher.RedisPublisher
	if cfg.RedisAddr != "" {
		pub, err = publisher.NewRedisPublisher(cfg.RedisAddr)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running without publishing")
		} else {
			defer pub.Close()
		}
	}

	for _, isin := range cfg.ISINs {
		isin = strings.TrimSpace(isin)
		if isin == "" {
			continue
		}
		if err := watch(ctx, client, pub, isin); err != nil {
			log.Error().Err(err).Str("isin", isin).Msg("Failed to subscribe ticker")
		}
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")
	cancel()

	if err := client.Disconnect(); err != nil {
		log.Error().Err(err).Msg("Error closing streaming connection")
	}
	if err := metricsServer.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping metrics server")
	}
}

// login runs the two-step handshake, prompting on stdin for the second-factor
// code.
func login(ctx context.Context, handshake *auth.HandshakeClient, cfg *config.Config) error {
	creds := auth.Credentials{
		PhoneNumber: cfg.PhoneNumber,
		PIN:         cfg.PIN,
	}

	prompt, err := handshake.BeginLogin(ctx, creds)
	if err != nil {
		return err
	}

	log.Info().Str("phone", prompt.MaskedPhone).Msg("Enter the 4-digit code sent to your device:")
	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	_, err = handshake.CompleteLogin(ctx, strings.TrimSpace(code))
	return err
}

// watch opens a ticker subscription and publishes every snapshot until the
// context ends.
func watch(ctx context.Context, client *session.Client, pub *publisher.RedisPublisher, isin string) error {
	sub, err := client.Subscribe(session.TopicTicker, map[string]any{"id": isin + session.TickerExchangeSuffix})
	if err != nil {
		return err
	}

	go func() {
		defer client.Unsubscribe(sub.ID)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case u := <-sub.Updates():
				if u.Err != nil {
					log.Error().Err(u.Err).Str("isin", isin).Msg("Ticker subscription failed")
					return
				}
				if u.End {
					log.Info().Str("isin", isin).Msg("Ticker stream completed")
					return
				}

				snap, err := event.ParseTicker(u.Payload)
				if err != nil {
					log.Debug().Err(err).Str("isin", isin).Msg("Skipping unparsable ticker")
					continue
				}
				metrics.TickerUpdates.WithLabelValues(isin).Inc()

				log.Debug().
					Str("isin", isin).
					Float64("bid", snap.Bid).
					Float64("ask", snap.Ask).
					Float64("spread_pct", snap.SpreadPercent).
					Msg("Ticker")

				if pub != nil {
					if err := pub.PublishTicker(ctx, isin, snap); err != nil {
						log.Error().Err(err).Str("isin", isin).Msg("Failed to publish ticker")
					}
				}
			}
		}
	}()

	return nil
}
