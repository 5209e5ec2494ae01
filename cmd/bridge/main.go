// Command bridge runs the mission-control bridge: a reconnecting gateway
// session client that normalizes agent events onto a state store, tracks
// presence/status, and serves an operator control plane and health check.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/corvidlabs/missionbridge/internal/bridge"
	"github.com/corvidlabs/missionbridge/internal/config"
	"github.com/corvidlabs/missionbridge/internal/control"
	"github.com/corvidlabs/missionbridge/internal/dedupe"
	"github.com/corvidlabs/missionbridge/internal/eventbuffer"
	"github.com/corvidlabs/missionbridge/internal/gatewayclient"
	"github.com/corvidlabs/missionbridge/internal/health"
	"github.com/corvidlabs/missionbridge/internal/presence"
	"github.com/corvidlabs/missionbridge/internal/statestore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store := statestore.New(cfg.StateStore.URL, cfg.StateStore.Secret, cfg.Gateway.RequestTimeout)

	gw := gatewayclient.New(gatewayclient.Config{
		URL:                  cfg.Gateway.URL,
		Token:                cfg.Gateway.Token,
		ReconnectInterval:    cfg.Gateway.ReconnectInterval,
		MaxReconnectAttempts: cfg.Gateway.MaxReconnectAttempts,
		RequestTimeout:       cfg.Gateway.RequestTimeout,
	}, nil)

	tracker := presence.New(cfg.Gateway.AgentIDAliases, cfg.Tracker.BusyActivityWindow)
	buffer := eventbuffer.New(cfg.Buffer.BatchSize)

	dedupeDBPath := os.Getenv("BRIDGE_DEDUPE_DB_PATH")
	var dedupeStore *dedupe.SQLiteStore
	if dedupeDBPath != "" {
		dedupeStore, err = dedupe.NewSQLiteStore(dedupeDBPath)
		if err != nil {
			slog.Error("failed to open dedupe database", "error", err)
			os.Exit(1)
		}
		defer dedupeStore.Close()
	}
	dedupeGuard := dedupe.New(dedupe.NewRing(0), dedupeStore)

	controlHandler := control.NewHandler(gw, tracker, store, cfg.Control.Secret, cfg.Control.MaxBodyBytes)
	healthHandler := health.NewHandler(gw, cfg.Control.Secret)

	br := bridge.New(bridge.Deps{
		Gateway:        gw,
		Tracker:        tracker,
		Buffer:         buffer,
		Store:          store,
		Dedupe:         dedupeGuard,
		ControlHandler: controlHandler,
		HealthHandler:  healthHandler,
		AllowedOrigins: cfg.Control.AllowedOrigins,
		HTTPAddr:       ":" + cfg.Control.Port,
		BatchInterval:  cfg.Buffer.BatchInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("bridge starting", "control_addr", ":"+cfg.Control.Port, "gateway_url", cfg.Gateway.URL)
	br.Start(ctx)
	slog.Info("bridge stopped")
}
