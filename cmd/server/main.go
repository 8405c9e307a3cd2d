// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Command server runs the relay packet inspection service: the HTTP API,
// the websocket event stream, and the background services that keep the
// anomaly baseline and traffic statistics fresh.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/action"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/anomaly"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/api"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/config"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/events"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/inspector"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/packetlog"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/pipeline"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/ratestats"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/rules"
	ws "github.com/dionjoshualobo/SchizoChatPlus/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().
		Str("node_label", cfg.Server.NodeLabel).
		Int("port", cfg.Server.Port).
		Msg("starting relay inspection service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event store.
	db, err := sql.Open("duckdb", cfg.Events.DatabasePath)
	if err != nil {
		return fmt.Errorf("open event database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping event database: %w", err)
	}

	store := events.NewDuckDBStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("init event schema: %w", err)
	}

	// Raw packet log with TTL retention.
	plog, err := packetlog.Open(cfg.PacketLog.Path, cfg.PacketLog.TTL)
	if err != nil {
		return fmt.Errorf("open packet log: %w", err)
	}
	defer plog.Close()

	// In-process pub/sub carrying live events to websocket clients.
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NopLogger{})
	defer pubsub.Close()

	recorder := events.NewRecorder(store, pubsub, events.RecorderConfig{
		RecordTimeout:           cfg.Events.RecordTimeout,
		BreakerFailureThreshold: cfg.Events.BreakerFailureThreshold,
		BreakerResetTimeout:     cfg.Events.BreakerResetTimeout,
		EmitLiveEvents:          cfg.Logging.EmitLiveEvents,
		DisablePersistence:      !cfg.Logging.LogEvents,
	})

	// Decision stage.
	decider := action.NewDecider(cfg.Actions.FlagThreshold, cfg.Actions.BlockThreshold, cfg.Logging.LogAllowed, recorder)
	decider.RegisterNotifier(action.NewLogNotifier())
	if cfg.Notifications.Webhook.Enabled {
		decider.RegisterNotifier(action.NewWebhookNotifier(action.WebhookConfig{
			URL:           cfg.Notifications.Webhook.URL,
			Headers:       cfg.Notifications.Webhook.Headers,
			Enabled:       true,
			RatePerSecond: cfg.Notifications.Webhook.RatePerSecond,
		}))
	}

	// Detection stages.
	engine, err := rules.NewEngine(rules.DefaultRules(cfg.Rules))
	if err != nil {
		return fmt.Errorf("build rule engine: %w", err)
	}
	engine.SetEnabled(cfg.Rules.Enabled)

	scorer := anomaly.NewGaussianScorer(cfg.Anomaly.ConfidenceThreshold)
	tracker := ratestats.NewTracker(cfg.Rules.MaxTrackedSenders)
	insp := inspector.New(cfg.Packet, cfg.Rules.OversizedPacketLimit)

	// The packet log feeds the anomaly baseline; keep writing when either
	// consumer wants it.
	var pipelineLog pipeline.PacketLog
	if cfg.Logging.LogPackets || cfg.Anomaly.Enabled {
		pipelineLog = plog
	}

	pipe := pipeline.New(pipeline.Config{
		Inspector:      insp,
		Engine:         engine,
		Scorer:         scorer,
		Decider:        decider,
		Tracker:        tracker,
		Log:            pipelineLog,
		NodeLabel:      cfg.Server.NodeLabel,
		Enabled:        cfg.Pipeline.Enabled,
		AnomalyEnabled: cfg.Anomaly.Enabled,
	})

	// HTTP surface.
	hub := ws.NewHub()
	handler := api.NewHandler(pipe, engine, recorder, hub, plog)
	router := api.NewRouter(handler, cfg.Server)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	// Supervision tree. Every long-running component restarts independently
	// on failure.
	hook := (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook()
	root := suture.New("schizochatplus", suture.Spec{
		EventHook:        hook,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})

	root.Add(hub)
	root.Add(ws.NewEventSubscriber(hub, pubsub, events.TopicEvents))
	root.Add(tracker)
	root.Add(plog)
	if cfg.Anomaly.Enabled {
		root.Add(anomaly.NewRetrainer(scorer, plog, cfg.Anomaly.RetrainInterval, cfg.Anomaly.TrainingSetSize))
	}
	root.Add(&httpService{server: server})

	err = root.Serve(ctx)
	if err != nil && err != context.Canceled {
		return err
	}

	logging.Info().Msg("shutdown complete")
	return nil
}

// httpService adapts http.Server to the supervisor's service contract.
type httpService struct {
	server *http.Server
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.server.Addr).Msg("http server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("http server shutdown error")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *httpService) String() string {
	return "http-server"
}
