package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-messaging-bridge/internal/adapters/db/postgres"
	"golang-messaging-bridge/internal/adapters/network/channelgw"
	"golang-messaging-bridge/internal/adapters/network/devicegw"
	"golang-messaging-bridge/internal/adapters/queue/rabbitmq"
	"golang-messaging-bridge/internal/app"
	"golang-messaging-bridge/internal/config"
	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/middleware"
	"golang-messaging-bridge/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	if err := run(log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	conf := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Adapters ─────────────────────────────────────────────────────────
	store, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		return errors.New("failed to connect to postgres: " + err.Error())
	}
	defer store.Close()

	reporter, err := rabbitmq.NewReporter(conf.AMQPURL)
	if err != nil {
		return errors.New("failed to connect to rabbitmq: " + err.Error())
	}
	defer reporter.Close()

	channelClient := channelgw.New(conf.ChannelGWURL)
	deviceClient := devicegw.New(conf.DeviceGWURL, conf.DeviceReconnect, log.With("component", "devicegw"))
	go deviceClient.Run(ctx)
	defer deviceClient.Close()

	adapters := app.Adapters{
		domain.NetworkChannel: channelClient,
		domain.NetworkDevice:  deviceClient,
	}

	// ── Application services ─────────────────────────────────────────────
	sessions := app.NewSessionManager(store, adapters, log.With("component", "sessions"))
	registry := app.NewDestinationRegistry(sessions, store, adapters, log.With("component", "registry"))
	dispatcher := app.NewBroadcastDispatcher(sessions, registry, adapters, reporter, app.DispatcherConfig{
		PerItemTimeout:   conf.PerItemTimeout,
		RetryBackoff:     conf.RetryBackoff,
		ThrottleInterval: conf.ThrottleEvery,
	}, log.With("component", "dispatcher"))

	fiberApp := fiber.New(fiber.Config{
		AppName:               "bridge-api",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          5 * time.Minute, // broadcasts return synchronously
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "",
		BodyLimit:             32 * 1024 * 1024, // media payloads arrive base64 inline
	})

	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.CORSConfig())

	rateLimiter := middleware.NewRateLimiter(100, 1*time.Minute)
	fiberApp.Use(rateLimiter.Middleware())

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	handler := transport.NewHandler(sessions, registry, dispatcher, log.With("component", "http"))
	api := fiberApp.Group("/api", middleware.OwnerFromHeaders())
	handler.Register(api)

	errChan := make(chan error, 1)
	go func() {
		log.Info("bridge-api started", "addr", conf.HTTPAddr)
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return errors.New("failed to shutdown gracefully: " + err.Error())
	}

	log.Info("bridge-api stopped gracefully")
	return nil
}
