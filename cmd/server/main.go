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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leok974/ApplyLens-sub019/config"
	"github.com/leok974/ApplyLens-sub019/internal/approval"
	"github.com/leok974/ApplyLens-sub019/internal/audit"
	"github.com/leok974/ApplyLens-sub019/internal/auth"
	"github.com/leok974/ApplyLens-sub019/internal/database"
	"github.com/leok974/ApplyLens-sub019/internal/events"
	"github.com/leok974/ApplyLens-sub019/internal/executor"
	"github.com/leok974/ApplyLens-sub019/internal/guardrails"
	"github.com/leok974/ApplyLens-sub019/internal/handlers"
	"github.com/leok974/ApplyLens-sub019/internal/models"
	"github.com/leok974/ApplyLens-sub019/internal/monitoring"
	"github.com/leok974/ApplyLens-sub019/internal/policy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogFormat)

	db, err := database.Open(cfg)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}

	metrics, err := monitoring.New("agent-governance")
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	// Policy: load the active snapshot, seeding defaults on first boot.
	policyStore := policy.NewStore(db)
	active, err := policyStore.Active(context.Background())
	if errors.Is(err, models.ErrNoActiveSnapshot) {
		active, err = policyStore.Replace(context.Background(), policy.DefaultRules(), policy.DefaultBudgets(), "bootstrap")
		if err == nil {
			slog.Info("Seeded default policy snapshot", "version", active.Version)
		}
	}
	if err != nil {
		slog.Error("Failed to load policy snapshot", "error", err)
		os.Exit(1)
	}
	engine, err := policy.NewEngine(active.Rules)
	if err != nil {
		slog.Error("Active policy snapshot is invalid", "error", err)
		os.Exit(1)
	}

	approvals, err := approval.NewService(db, []byte(cfg.ApprovalSecret), approval.WithTTL(cfg.ApprovalTTL))
	if err != nil {
		slog.Error("Failed to initialize approval service", "error", err)
		os.Exit(1)
	}

	paramTable, err := guardrails.LoadParamTable(cfg.ParamTablePath)
	if err != nil {
		slog.Error("Failed to load required-parameter table", "error", err)
		os.Exit(1)
	}

	auditSvc := audit.NewService(db)
	bus := events.NewBus(func() { metrics.IncEventDropped(context.Background()) })
	defer bus.Close()

	guards := guardrails.New(engine, approvals, paramTable)
	registry := executor.NewRegistry()
	runner := executor.NewRunner(guards, registry, auditSvc, bus, approvals, metrics)

	policyHandler := handlers.NewPolicyHandler(engine, policyStore, active)
	runner.RegisterValidator(guardrails.NewBudgetValidator(policyHandler.Budgets, auditSvc))

	// Action handlers are owned outside the governance core and registered
	// here at wiring time. An action in the parameter table with no handler
	// is a configuration smell worth surfacing at boot.
	if missing := runner.ValidateStartup(paramTable); len(missing) > 0 {
		slog.Warn("Actions in parameter table have no registered handler", "actions", missing)
	}

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		slog.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	approvalHandler := handlers.NewApprovalHandler(approvals)
	agentHandler := handlers.NewAgentHandler(runner, auditSvc, bus)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.Health)
	r.Get("/policy", policyHandler.GetPolicy)
	r.With(verifier.Middleware).Put("/policy", policyHandler.ReplacePolicy)

	r.Post("/approvals", approvalHandler.CreateApproval)
	r.Get("/approvals", approvalHandler.ListApprovals)
	r.With(verifier.Middleware).Post("/approvals/{id}/approve", approvalHandler.DecideApproval)
	r.Post("/approvals/{id}/verify", approvalHandler.VerifyApproval)

	r.Post("/agents/execute", agentHandler.Execute)
	r.Get("/agents/events", agentHandler.Events)
	r.Get("/agents/history", agentHandler.History)

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("Agent governance service listening", "port", cfg.Port, "metrics_port", cfg.MetricsPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	_ = metricsServer.Shutdown(ctx)
	slog.Info("Server stopped")
}

func setupLogger(format string) {
	if format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}
}
