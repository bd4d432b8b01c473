// Kestrel - KYC review console service.
// Copyright (c) 2025 securekyc
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/securekyc/kestrel/internal/api"
	"github.com/securekyc/kestrel/internal/backend"
	"github.com/securekyc/kestrel/internal/bus"
	"github.com/securekyc/kestrel/internal/cache"
	"github.com/securekyc/kestrel/internal/domain"
	"github.com/securekyc/kestrel/internal/poller"
	"github.com/securekyc/kestrel/internal/repository"
	"github.com/securekyc/kestrel/internal/triage"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"kyc_backend", cfg.Backends.KYCBaseURL,
		"fraud_backend", cfg.Backends.FraudBaseURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize backend clients
	kycClient := backend.NewKYCClient(cfg.Backends.KYCBaseURL, cfg.Backends.Timeout)
	fraudClient := backend.NewFraudClient(cfg.Backends.FraudBaseURL, cfg.Backends.Timeout)

	// Initialize Triage Engine
	engine, err := triage.NewEngine()
	if err != nil {
		slog.Error("failed to initialize triage engine", "error", err)
		os.Exit(1)
	}

	// Load rules from database (no hardcoded defaults - configure via API)
	if err := loadTriageRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load triage rules", "error", err)
		os.Exit(1)
	}
	slog.Info("triage engine initialized", "rules_count", engine.RulesCount())

	// Initialize snapshot store and poller
	store := poller.NewStore()
	poll := poller.New(poller.Config{
		Records:   kycClient,
		Aggregate: fraudClient,
		Store:     store,
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Interval:  cfg.Poller.Interval,
	})
	poll.Start(ctx)
	defer poll.Stop()
	slog.Info("poller started", "interval", cfg.Poller.Interval)

	// Initialize Server
	srv := api.NewServer(cfg.Server, store, kycClient, fraudClient, repo, cacheImpl, busImpl, engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides layers deployment-specific settings over the tier
// defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_KYC_URL"); v != "" {
		cfg.Backends.KYCBaseURL = v
	}
	if v := os.Getenv("KESTREL_FRAUD_URL"); v != "" {
		cfg.Backends.FraudBaseURL = v
	}
	if v := os.Getenv("KESTREL_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Poller.Interval = d
		} else {
			slog.Warn("ignoring invalid KESTREL_POLL_INTERVAL", "value", v)
		}
	}
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
}

// loadTriageRulesFromDatabase loads persisted rules into the engine.
// All rules are configured via the triage API - no hardcoded defaults.
func loadTriageRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *triage.Engine) error {
	dbRules, err := repo.ListTriageRules(ctx)
	if err != nil {
		slog.Warn("failed to list triage rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading triage rules from database", "count", len(dbRules))
		return engine.ReloadRules(dbRules)
	}

	slog.Info("no triage rules in database - configure via POST /api/triage/rules")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║        KYC Review Console Service         ║")
	fmt.Println("  ║      Every submission, triaged.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /api/cases                   - List normalized KYC cases")
	fmt.Println("    GET  /api/cases/export            - Export cases as CSV")
	fmt.Println("    GET  /api/dashboard               - Risk aggregate dashboard")
	fmt.Println("    GET  /api/audit                   - Audit trail + action log")
	fmt.Println("    POST /api/cases/{id}/approve      - Approve a submission")
	fmt.Println("    POST /api/cases/{id}/reject       - Reject a submission")
	fmt.Println("    POST /api/cases/{id}/flag         - Flag for manual review")
	fmt.Println("    POST /api/extract/{doctype}       - OCR document extraction")
	fmt.Println("    POST /api/submit                  - Submit a KYC application")
	fmt.Println("    POST /api/analyze                 - Synchronous fraud analysis")
	fmt.Println("    GET  /api/uploads                 - Caller's own submissions")
	fmt.Println("    GET  /api/triage/rules            - List triage rules")
	fmt.Println("    POST /api/triage/rules            - Create a triage rule")
	fmt.Println("    POST /api/triage/rules/reload     - Hot-reload rules")
	fmt.Println("    GET  /health                      - Health check")
	fmt.Println()
}
