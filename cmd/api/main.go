// Package main is the entry point for the Chainvoice entitlement API server.
//
// It loads configuration, opens the database pool, wires the entitlement
// core (catalog, resolver, wallet ledger, trial clock, accountant, gate)
// with its AWS collaborators (SQS deny publisher, CloudWatch metrics), and
// serves the HTTP surface with graceful shutdown on SIGINT/SIGTERM.
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"chainvoice/internal/api/handlers"
	"chainvoice/internal/billing"
	"chainvoice/internal/config"
	"chainvoice/internal/core"
	"chainvoice/internal/db"
	"chainvoice/internal/entitlement"
	"chainvoice/internal/queue"
	"chainvoice/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("chainvoice entitlement API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	identities := db.NewIdentityRepo(pool)
	counters := db.NewUsageRepo(pool)
	ledger := db.NewLedgerRepo(pool)

	// AWS collaborators. Publisher and metrics are best-effort; an
	// unreachable AWS endpoint never blocks authorization answers.
	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	publisher := queue.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)
	metrics := telemetry.NewCloudWatchDecisionMetrics(
		cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, logger)

	// Entitlement core.
	catalog := entitlement.NewStaticCatalog(cfg.Entitlement.CountsSeparatelyChains)
	trial := entitlement.NewTrialClock(cfg.Entitlement.TrialDays)
	resolver := entitlement.NewResilientResolver(
		entitlement.NewResolver(identities),
		entitlement.RetryPolicy{
			MaxRetries: cfg.Entitlement.ResolveMaxRetries,
			MinWait:    cfg.Entitlement.ResolveRetryMin,
			MaxWait:    cfg.Entitlement.ResolveRetryMax,
		},
		cfg.Entitlement.StaleSnapshotTTL,
	)
	wallets := entitlement.NewWalletLedger(identities, catalog)
	accountant := entitlement.NewAccountant(identities, counters, ledger, catalog, trial)
	gate := entitlement.NewGate(wallets, accountant, trial, publisher, metrics, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	entitlementHandler := handlers.NewEntitlementHandler(
		resolver, wallets, accountant, gate, identities, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, entitlementHandler.RegisterRoutes)

	webhookHandler := handlers.NewStripeWebhookHandler(
		&billing.StripeVerifier{},
		identities,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		logger,
	)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		webhookHandler.RegisterRoutes(r)
	})

	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "database",
		Fn:        pool.Ping,
	})

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// loadAWSConfig builds the AWS SDK configuration, honoring the LocalStack
// endpoint override when set.
func loadAWSConfig(ctx context.Context, awsCfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(awsCfg.Region),
	}
	if awsCfg.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(awsCfg.EndpointURL))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
