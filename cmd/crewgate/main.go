// Crewgate - Crew evaluation decisions in one call.
// Copyright (c) 2025 crewgate.io
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/crewgate/crewgate/internal/api"
	"github.com/crewgate/crewgate/internal/bus"
	"github.com/crewgate/crewgate/internal/cache"
	"github.com/crewgate/crewgate/internal/decision"
	"github.com/crewgate/crewgate/internal/domain"
	"github.com/crewgate/crewgate/internal/gate"
	"github.com/crewgate/crewgate/internal/redflag"
	"github.com/crewgate/crewgate/internal/repository"
	"github.com/crewgate/crewgate/internal/rubric"
	"github.com/crewgate/crewgate/internal/seaservice"
	"github.com/crewgate/crewgate/internal/worker"
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
	if os.Getenv("CREWGATE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting crewgate",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("CREWGATE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if v := os.Getenv("CREWGATE_CLASSIFIER"); v != "" {
		cfg.Classifier.Type = v
	}
	if v := os.Getenv("CREWGATE_JUDGE_URL"); v != "" {
		cfg.Classifier.Endpoint = v
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"classifier", cfg.Classifier.Type,
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

	// Initialize Sea Service (experience lookups for the gate)
	seaSvc := seaservice.NewService(repo, cacheImpl)
	slog.Info("sea service initialized")

	// Initialize Rubric Evaluator
	evaluator := rubric.NewEvaluator(nil)

	// Load templates from database (no hardcoded defaults - configure via API)
	if err := loadTemplatesFromDatabase(ctx, repo, evaluator); err != nil {
		slog.Error("failed to load templates", "error", err)
		os.Exit(1)
	}
	slog.Info("rubric evaluator initialized", "template_count", evaluator.TemplateCount())

	// Initialize Red Flag Detector
	classifier, err := redflag.NewClassifier(cfg.Classifier)
	if err != nil {
		slog.Error("failed to initialize classifier", "error", err)
		os.Exit(1)
	}
	detector := redflag.NewDetector(classifier, cacheImpl,
		time.Duration(cfg.Classifier.TimeoutSecs)*time.Second)
	slog.Info("red flag detector initialized", "classifier", cfg.Classifier.Type)

	// Initialize Eligibility Gate with the sea service experience getter
	eligibilityGate, err := gate.New(seaSvc.GetExperienceGetter())
	if err != nil {
		slog.Error("failed to initialize eligibility gate", "error", err)
		os.Exit(1)
	}

	// Load profiles from database (no hardcoded defaults - configure via API)
	if err := loadProfilesFromDatabase(ctx, repo, eligibilityGate); err != nil {
		slog.Error("failed to load profiles", "error", err)
		os.Exit(1)
	}
	slog.Info("eligibility gate initialized", "profile_count", eligibilityGate.ProfileCount())

	// Initialize Decision Composer
	composer := decision.NewComposer()
	slog.Info("decision composer initialized", "engine_version", decision.EngineVersion)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("CREWGATE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, evaluator, detector, eligibilityGate, composer)

		tenantIDs := []string{}
		if envTenants := os.Getenv("CREWGATE_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, evaluator, detector, eligibilityGate, composer, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("crewgate is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("crewgate shutdown complete")
}

// GlobalTenantID is used for templates and profiles shared across tenants.
const GlobalTenantID = "*"

// loadTemplatesFromDatabase loads assessment templates into the evaluator.
// All templates must be configured via POST /templates - no hardcoded defaults.
func loadTemplatesFromDatabase(ctx context.Context, repo domain.Repository, evaluator *rubric.Evaluator) error {
	templates, err := repo.ListTemplates(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list templates from database", "error", err)
		return nil // Start empty - templates can be added via API
	}

	if len(templates) > 0 {
		slog.Info("loading templates from database", "count", len(templates))
		return evaluator.LoadTemplates(templates)
	}

	slog.Info("no templates in database - configure via POST /templates API")
	return nil
}

// loadProfilesFromDatabase loads eligibility profiles into the gate.
// All profiles must be configured via POST /profiles - no hardcoded defaults.
func loadProfilesFromDatabase(ctx context.Context, repo domain.Repository, g *gate.Gate) error {
	profiles, err := repo.ListProfiles(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list profiles from database", "error", err)
		return nil // Start empty - profiles can be added via API
	}

	if len(profiles) > 0 {
		slog.Info("loading profiles from database", "count", len(profiles))
		return g.LoadProfiles(profiles)
	}

	slog.Info("no profiles in database - configure via POST /profiles API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               ⚓ CREWGATE                  ║")
	fmt.Println("  ║      Crew Evaluation Decision Engine      ║")
	fmt.Println("  ║       Every candidate, one verdict.       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate                          - Evaluate a candidate")
	fmt.Println("    GET  /decisions/{id}                    - Get decision record by ID")
	fmt.Println("    POST /candidates                        - Register a candidate")
	fmt.Println("    GET  /candidates/{id}                   - Get candidate by ID")
	fmt.Println("    POST /candidates/{id}/service-records   - Add a sea service record")
	fmt.Println("    GET  /candidates/{id}/service-records   - List sea service records")
	fmt.Println("    GET  /templates                         - List assessment templates")
	fmt.Println("    POST /templates                         - Create a template (draft)")
	fmt.Println("    POST /templates/{id}/activate           - Validate and activate a template")
	fmt.Println("    POST /templates/reload                  - Hot-reload templates from database")
	fmt.Println("    GET  /profiles                          - List eligibility profiles")
	fmt.Println("    POST /profiles                          - Create an eligibility profile")
	fmt.Println("    DELETE /profiles/{key}                  - Disable a profile")
	fmt.Println("    POST /profiles/reload                   - Hot-reload profiles")
	fmt.Println("    GET  /health                            - Health check")
	fmt.Println()
}
