// Command notifier runs the notification delivery daemon: it polls the
// state store for pending notifications and delivers them over the
// gateway to agents with a live session.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/corvidlabs/missionbridge/internal/config"
	"github.com/corvidlabs/missionbridge/internal/gatewayclient"
	"github.com/corvidlabs/missionbridge/internal/notifier"
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
		ClientID:             "missionbridge-notifier",
		ReconnectInterval:    cfg.Gateway.ReconnectInterval,
		MaxReconnectAttempts: cfg.Gateway.MaxReconnectAttempts,
		RequestTimeout:       cfg.Gateway.RequestTimeout,
	}, nil)

	tracker := presence.New(cfg.Gateway.AgentIDAliases, cfg.Tracker.BusyActivityWindow)

	daemon := notifier.New(notifier.Config{
		PollInterval:  cfg.Notifier.PollInterval,
		PollBatchSize: cfg.Notifier.PollBatchSize,
		RetryBackoff:  cfg.Notifier.RetryBackoff,
	}, gw, store, tracker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("notifier starting", "gateway_url", cfg.Gateway.URL, "poll_interval", cfg.Notifier.PollInterval)
	daemon.Start(ctx)
	slog.Info("notifier stopped")
}
