package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/koi-prep/internal/api"
	"github.com/terra-clan/koi-prep/internal/cleanup"
	"github.com/terra-clan/koi-prep/internal/config"
	"github.com/terra-clan/koi-prep/internal/gateway"
	"github.com/terra-clan/koi-prep/internal/quota"
	"github.com/terra-clan/koi-prep/internal/report"
	"github.com/terra-clan/koi-prep/internal/services"
	"github.com/terra-clan/koi-prep/internal/session"
	"github.com/terra-clan/koi-prep/internal/storage"
	"github.com/terra-clan/koi-prep/internal/telemetry"
	"github.com/terra-clan/koi-prep/internal/templates"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting koi-prep",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"gateway", cfg.Gateway.BaseURL,
		"model", cfg.Gateway.Model,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	if err := telemetry.Init(initCtx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	}); err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	// Initialize service registry for the readiness probe
	registry := services.NewRegistry()

	// Gateway call ledger
	var ledger storage.Repository
	gatewayOpts := []gateway.Option{}
	if cfg.Database.Enabled() {
		repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
			MaxIdleConns: int32(cfg.Database.MaxIdleConns),
		})
		if err != nil {
			slog.Error("failed to create database repository", "error", err)
			os.Exit(1)
		}
		defer repo.Close()

		migrations, err := storage.Migrations(cfg.Database.MigrationsDir)
		if err != nil {
			slog.Error("failed to open migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := storage.RunMigrations(initCtx, repo.Pool(), migrations); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		slog.Info("database connected successfully")
		ledger = repo
		gatewayOpts = append(gatewayOpts, gateway.WithRecorder(repo))
		registry.Register(services.NewPingFunc("postgres", repo.Ping))
	} else {
		slog.Info("gateway call ledger disabled")
	}

	// Quota
	var limiter quota.Limiter = quota.Unlimited{}
	if cfg.Redis.Enabled() {
		redisProvider, err := services.NewRedisProvider(initCtx, cfg.Redis)
		if err != nil {
			slog.Error("failed to create redis provider", "error", err)
			os.Exit(1)
		}
		defer redisProvider.Close()

		registry.Register(redisProvider)
		limiter = quota.NewRedisLimiter(redisProvider.Client(), cfg.Quota.Limit, cfg.Quota.Window)
		slog.Info("gateway quota enabled", "limit", cfg.Quota.Limit, "window", cfg.Quota.Window)
	} else {
		slog.Info("gateway quota disabled")
	}

	// Load language catalog
	languages := templates.NewLoader()
	if err := languages.LoadFromDir(cfg.Languages.Dir); err != nil {
		slog.Warn("failed to load languages from dir", "dir", cfg.Languages.Dir, "error", err)
	}

	// AI gateway
	gatewayOpts = append(gatewayOpts, gateway.WithLanguageLabels(languages.GatewayLabel))
	gw := gateway.NewClient(cfg.Gateway, gatewayOpts...)
	registry.Register(services.NewPingFunc("gateway", gw.Ping))

	// Report export
	rasterizer := report.NewRasterizer(nil)
	if cfg.Report.FontPath != "" {
		face, err := report.LoadFace(cfg.Report.FontPath, cfg.Report.FontSize)
		if err != nil {
			slog.Error("failed to load report font", "path", cfg.Report.FontPath, "error", err)
			os.Exit(1)
		}
		rasterizer = report.NewRasterizer(face)
	} else {
		slog.Warn("no report font configured, exported reports cannot show Hangul")
	}

	// Sessions
	hub := api.NewHub()
	machine := session.NewMachine(gw, languages, session.WithPublisher(hub))
	sessions := session.NewRegistry()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker
	cleaner := cleanup.NewCleaner(sessions, cfg.Sessions.IdleTTL, cfg.Sessions.CleanupInterval)
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, api.Dependencies{
		Machine:   machine,
		Sessions:  sessions,
		Languages: languages,
		Hub:       hub,
		Exporter:  report.NewExporter(rasterizer),
		Services:  registry,
		Limiter:   limiter,
		Ledger:    ledger,
	})
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Let in-flight gateway calls land before the ledger closes
	if err := machine.WaitContext(shutdownCtx); err != nil {
		slog.Warn("gateway calls still running at shutdown", "error", err)
	}

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}

	slog.Info("koi-prep stopped")
}
