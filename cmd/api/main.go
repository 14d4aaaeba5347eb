package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/fernwood-goods/storefront-backend/api/routes"
	"github.com/fernwood-goods/storefront-backend/internal/fulfillment"
	"github.com/fernwood-goods/storefront-backend/internal/orders"
	"github.com/fernwood-goods/storefront-backend/internal/products"
	"github.com/fernwood-goods/storefront-backend/internal/shipping"
	"github.com/fernwood-goods/storefront-backend/pkg/config"
	"github.com/fernwood-goods/storefront-backend/pkg/db"
	"github.com/fernwood-goods/storefront-backend/pkg/logger"
	"github.com/fernwood-goods/storefront-backend/pkg/metrics"
	"github.com/fernwood-goods/storefront-backend/pkg/migrate"
	"github.com/fernwood-goods/storefront-backend/pkg/redis"
	"github.com/fernwood-goods/storefront-backend/pkg/stripe"
)

const webhookGuardScope = "stripe-checkout"

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

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(registry)

	orderRepo := orders.NewRepository(dbClient.DB())
	productRepo := products.NewRepository(dbClient.DB())
	zoneRepo := shipping.NewZoneRepository(dbClient.DB())

	calculator, err := shipping.NewCalculator(productRepo, zoneRepo, cfg.Shipping.HomeCountry)
	if err != nil {
		logg.Error(context.Background(), "failed to build shipping calculator", err)
		os.Exit(1)
	}

	reconciler, err := fulfillment.NewService(fulfillment.ServiceParams{
		OrderRepo:         orderRepo,
		ProductRepo:       productRepo,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           fulfillmentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build fulfillment reconciler", err)
		os.Exit(1)
	}

	webhookGuard, err := fulfillment.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, webhookGuardScope)
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook guard", err)
		os.Exit(1)
	}

	composer, err := orders.NewComposer(orders.ComposerParams{
		OrderRepo:         orderRepo,
		Calculator:        calculator,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           fulfillmentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build order composer", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:       cfg,
			Logger:       logg,
			DBPinger:     dbClient,
			RedisClient:  redisClient,
			StripeClient: stripeClient,
			Reconciler:   reconciler,
			WebhookGuard: webhookGuard,
			Calculator:   calculator,
			Composer:     composer,
			Registry:     registry,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		errs := server.Shutdown(shutdownCtx)
		errs = multierr.Append(errs, redisClient.Close())
		errs = multierr.Append(errs, dbClient.Close())
		if errs != nil {
			logg.Error(ctx, "shutdown finished with errors", errs)
			os.Exit(1)
		}
		logg.Info(ctx, "shutdown complete")
	}
}
