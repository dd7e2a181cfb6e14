package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/campaignwatch/internal/adapter/driven/exchangerate"
	"github.com/ericfisherdev/campaignwatch/internal/adapter/driven/fundraising"
	sqliteadapter "github.com/ericfisherdev/campaignwatch/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/campaignwatch/internal/adapter/driving/http"
	"github.com/ericfisherdev/campaignwatch/internal/application"
	"github.com/ericfisherdev/campaignwatch/internal/config"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// app holds the wired components shared by the serve and refresh commands.
type app struct {
	cfg       *config.Config
	db        *sqliteadapter.DB
	accounts  *sqliteadapter.AccountRepo
	campaigns *sqliteadapter.CampaignRepo
	service   *application.CampaignService
	converter *application.Converter
	registry  *prometheus.Registry
}

// newLogger installs a JSON slog handler as the process default.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// buildApp loads configuration, opens the database and wires every adapter
// into the campaign service. The caller must call close.
func buildApp(ctx context.Context) (*app, error) {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	newLogger(cfg.Debug)
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"concurrent_requests", cfg.ConcurrentRequests,
		"campaigns_enabled", cfg.EnableCampaigns,
		"backup_rates", cfg.HasBackupRates(),
	)

	// 2. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	// 3. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete")

	// 4. Wire stores and metrics.
	accounts := sqliteadapter.NewAccountRepo(db)
	campaigns := sqliteadapter.NewCampaignRepo(db)
	rateStore := sqliteadapter.NewExchangeRateRepo(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := application.NewMetrics(registry)

	// 5. Currency conversion: memory cache, persisted rates, then providers.
	primary := exchangerate.NewPrimary(cfg.ExchangeRatesAPIKey, cfg.UserAgent, cfg.HTTPTimeout)
	var backup driven.RateProvider
	if cfg.HasBackupRates() {
		backup = exchangerate.NewBackup(cfg.FixerAPIKey, cfg.HTTPTimeout)
	} else {
		slog.Info("no fixer api key configured, backup exchange rates disabled")
	}
	converter := application.NewConverter(application.NewRateCache(0), rateStore, primary, backup, metrics)

	// 6. Campaign sources.
	opts := fundraising.Options{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
		Proxy:     cfg.CampaignHTTPProxy,
	}
	gofundme, err := fundraising.NewGoFundMe(opts, converter)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create gofundme source: %w", err)
	}
	sources := []driven.CampaignSource{
		fundraising.NewChuffed(opts, converter),
		gofundme,
		fundraising.NewSteunactie(opts, converter),
	}

	service := application.NewCampaignService(
		sources,
		campaigns,
		accounts,
		metrics,
		cfg.ConcurrentRequests,
		cfg.EnableCampaigns,
	)

	return &app{
		cfg:       cfg,
		db:        db,
		accounts:  accounts,
		campaigns: campaigns,
		service:   service,
		converter: converter,
		registry:  registry,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// runServe starts the poll loop and the HTTP server and blocks until ctx is done.
func runServe(ctx context.Context) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	// 7. Create and start poll service.
	pollSvc := application.NewPollService(a.service, a.cfg.PollInterval)
	go pollSvc.Start(ctx)

	// 8. Create HTTP handler with API routes, metrics, conversion and readiness.
	metricsHandler := promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	apiHandler := httphandler.NewHandler(a.accounts, a.campaigns, pollSvc, metricsHandler, slog.Default()).
		WithConverter(a.converter).
		WithDatabase(a.db)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Manual refreshes are synchronous and may take several provider round trips.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("campaignwatch started",
		"listen_addr", a.cfg.ListenAddr,
		"poll_interval", a.cfg.PollInterval,
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// runRefresh performs a single refresh of every registered account and exits.
func runRefresh(ctx context.Context) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	summary, err := a.service.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	slog.Info("refresh finished",
		"run_id", summary.RunID,
		"campaigns", summary.Campaigns,
		"new_donations", summary.NewDonations,
		"failed", summary.Failed,
	)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d campaigns failed", summary.Failed, summary.Campaigns)
	}
	return nil
}
