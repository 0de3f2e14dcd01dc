// Package main is the entry point for the MindGarden billing sync service.
//
// It loads configuration, connects to Postgres, builds the Stripe client
// and the webhook reconciler, and serves the billing HTTP API until a
// shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mindgarden/internal/api/handlers"
	"mindgarden/internal/billing"
	"mindgarden/internal/config"
	"mindgarden/internal/core"
	"mindgarden/internal/db"
	"mindgarden/internal/external"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("mindgarden billing sync starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Misconfigured price ids must stop the process here, before any event
	// could be classified against a broken catalog.
	catalog, err := billing.NewPlanCatalog(cfg.Billing.PriceMonthly, cfg.Billing.PriceYearly)
	if err != nil {
		return fmt.Errorf("building plan catalog: %w", err)
	}

	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 20 * time.Second},
		external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey,
			Logger:    logger,
		},
	)

	profileRepo := db.NewUserProfileRepo(pool, logger)
	subRepo := db.NewSubscriptionRepo(pool, logger)
	reconciler := billing.NewReconciler(subRepo, profileRepo, stripeClient, catalog, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, &db.HealthProbe{Pool: pool})

	webhookHandler := handlers.NewStripeWebhookHandler(
		&external.StripeVerifier{},
		reconciler,
		cfg.Billing.StripeWebhookSecret,
		logger,
	)
	billingHandler := handlers.NewBillingHandler(
		stripeClient,
		subRepo,
		catalog,
		srv.Validator,
		cfg.Server.AppBaseURL,
		logger,
	)

	srv.MountRoutes(webhookHandler.RegisterRoutes, billingHandler.RegisterRoutes)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", ":"+cfg.Server.Port)
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
