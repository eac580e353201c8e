package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bazaar-backend/api/routes"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/connect"
	"github.com/angelmondragon/bazaar-backend/internal/idempotency"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/internal/stores"
	stripewebhook "github.com/angelmondragon/bazaar-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/bazaar-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.ForService("api", cfg.App)

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	gdb := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:            ledger.NewRepository(gdb),
		TxRunner:        dbClient,
		Logger:          logg,
		ListingFeeCents: cfg.Checkout.ListingFeeCents,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(gdb)
	lifecycle, err := orders.NewLifecycle(orders.LifecycleParams{
		Repo:               ordersRepo,
		Ledger:             ledgerSvc,
		Outbox:             outboxSvc,
		Logger:             logg,
		PlatformFeePercent: cfg.Checkout.PlatformFeePercent,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order lifecycle", err)
		os.Exit(1)
	}
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      ordersRepo,
		TxRunner:  dbClient,
		Lifecycle: lifecycle,
		Outbox:    outboxSvc,
		Checkout:  cfg.Checkout,
		Currency:  cfg.Stripe.Currency,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	issuer, err := idempotency.NewIssuer(idempotency.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency issuer", err)
		os.Exit(1)
	}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Repo:               checkout.NewRepository(gdb),
		Gateway:            stripeClient,
		Issuer:             issuer,
		Ledger:             ledgerSvc,
		PlatformFeePercent: cfg.Checkout.PlatformFeePercent,
		Metrics:            paymentMetrics,
		Logger:             logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	productSvc, err := product.NewService(product.ServiceParams{
		Repo:     product.NewRepository(gdb),
		TxRunner: dbClient,
		Ledger:   ledgerSvc,
		Outbox:   outboxSvc,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	connectSvc, err := connect.NewService(connect.ServiceParams{
		Repo:     connect.NewRepository(gdb),
		Gateway:  stripeClient,
		TxRunner: dbClient,
		Outbox:   outboxSvc,
		StateTTL: cfg.Connect.StateTTL,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create connect service", err)
		os.Exit(1)
	}

	storeSvc, err := stores.NewService(stores.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to create store service", err)
		os.Exit(1)
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Repo:              stripewebhook.NewRepository(gdb),
		Orders:            ordersRepo,
		Lifecycle:         lifecycle,
		Outbox:            outboxSvc,
		TransactionRunner: dbClient,
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			storeSvc,
			ordersSvc,
			checkoutSvc,
			productSvc,
			ledgerSvc,
			connectSvc,
			stripeClient,
			webhookSvc,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
