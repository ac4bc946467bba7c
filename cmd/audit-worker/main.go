package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang-messaging-bridge/internal/adapters/db/postgres"
	"golang-messaging-bridge/internal/adapters/queue/rabbitmq"
	"golang-messaging-bridge/internal/config"
	"golang-messaging-bridge/internal/domain"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	conf := config.FromEnv()

	// ── Adapters ─────────────────────────────────────────────────────────────
	store, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		log.Error("connect postgres", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	consumer, err := rabbitmq.NewConsumer(conf.AMQPURL, log)
	if err != nil {
		log.Error("connect rabbitmq consumer", "err", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("audit-worker started")

	if err := consumer.Consume(ctx, func(ctx context.Context, r domain.BroadcastReport) error {
		if err := store.SaveReport(ctx, r); err != nil {
			return err
		}
		log.Info("broadcast report archived",
			"report_id", r.ID,
			"network", r.Network,
			"owner_id", r.OwnerID,
			"results", len(r.Results),
		)
		return nil
	}); err != nil && ctx.Err() == nil {
		log.Error("consumer error", "err", err)
		os.Exit(1)
	}

	log.Info("shutting down audit-worker")
}
