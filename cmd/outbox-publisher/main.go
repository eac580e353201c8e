package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/instance"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
	"github.com/angelmondragon/bazaar-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	bootCtx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(bootCtx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	exitOn(bootCtx, logg, "failed to load config", err)
	cfg.Service.Kind = serviceKind
	logg = logger.ForService(serviceKind, cfg.App)

	if !cfg.Eventing.OutboxPublisherEnabled {
		logg.Warn(bootCtx, "outbox publisher disabled by config; exiting")
		return
	}

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	exitOn(bootCtx, logg, "failed to bootstrap database", err)
	defer closeWithLog(bootCtx, logg, "database", dbClient.Close)

	exitOn(bootCtx, logg, "failed to run dev migrations", migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient))

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	exitOn(bootCtx, logg, "failed to build event registry", err)

	pubsubClient, err := pubsub.NewClient(bootCtx, cfg.GCP, cfg.PubSub, logg)
	exitOn(bootCtx, logg, "failed to bootstrap pubsub", err)
	// Close flushes buffered messages, so it must run before the database closes.
	defer closeWithLog(bootCtx, logg, "pubsub client", pubsubClient.Close)

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		PubSub:     pubsubClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   eventRegistry,
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	exitOn(bootCtx, logg, "failed to create outbox publisher", err)

	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
		"topics":      eventRegistry.Topics(),
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func exitOn(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

func closeWithLog(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
