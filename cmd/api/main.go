package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/consultia/clinic-agent/internal/api/router"
	"github.com/consultia/clinic-agent/internal/app/bootstrap"
	"github.com/consultia/clinic-agent/internal/clinic"
	appconfig "github.com/consultia/clinic-agent/internal/config"
	"github.com/consultia/clinic-agent/internal/conversation"
	"github.com/consultia/clinic-agent/internal/events"
	"github.com/consultia/clinic-agent/internal/http/handlers"
	"github.com/consultia/clinic-agent/internal/messaging"
	"github.com/consultia/clinic-agent/internal/observability/metrics"
	"github.com/consultia/clinic-agent/internal/staff"
	"github.com/consultia/clinic-agent/internal/webchat"
	"github.com/consultia/clinic-agent/pkg/logging"
)

const sessionSweepEvery = 5 * time.Minute

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, convMetrics := setupMetrics()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	sqlDB := openSQLDB(cfg.DatabaseURL, logger)
	if sqlDB != nil {
		defer func() { _ = sqlDB.Close() }()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	tenantStore, err := bootstrap.BuildTenantStore(ctx, cfg, sqlDB, redisClient, logger)
	if err != nil {
		logger.Error("failed to build tenant store", "error", err)
		os.Exit(1)
	}
	book := bootstrap.BuildAppointmentService(cfg, pool, redisClient, logger)
	sessions := bootstrap.BuildSessionStore(cfg, redisClient, logger)

	gateway, closeLLM, err := bootstrap.BuildCompletionGateway(ctx, cfg, convMetrics, logger)
	if err != nil {
		logger.Error("failed to build completion backend", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeLLM() }()

	publisher, deliverer := setupExport(ctx, cfg, pool, logger)

	orchestratorOpts := []conversation.OrchestratorOption{conversation.WithOrchestratorMetrics(convMetrics)}
	if publisher != nil {
		orchestratorOpts = append(orchestratorOpts, conversation.WithBookingRecorder(publisher))
	}
	orchestrator := conversation.NewOrchestrator(sessions, gateway, book, logger, orchestratorOpts...)

	var dedupe messaging.Deduper
	if pool != nil {
		dedupe = events.NewProcessedStore(pool)
	}
	whatsapp := bootstrap.BuildWhatsAppHandler(cfg, clinic.NewResolver(tenantStore), orchestrator, dedupe, convMetrics, logger)

	routerCfg := &router.Config{
		Logger:             logger,
		WebChat:            webchat.NewHandler(tenantStore, orchestrator, cfg.DefaultWebTenant, logger),
		WhatsApp:           whatsapp,
		Dashboard:          setupDashboard(cfg, pool, book, tenantStore, publisher, logger),
		StaffJWTSecret:     cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PublicRateLimit:    cfg.PublicRateLimit,
		PublicBurst:        cfg.PublicBurst,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Completions may take up to COMPLETION_TIMEOUT twice per message.
		WriteTimeout: 2*cfg.CompletionTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	if deliverer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deliverer.Start(ctx)
		}()
	}

	if mem, ok := sessions.(*conversation.MemorySessionStore); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mem.RunSweeper(ctx, sessionSweepEvery, logger)
		}()
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	wg.Wait()

	logger.Info("server stopped")
}

func setupMetrics() (http.Handler, *metrics.ConversationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewConversationMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if url == "" {
		logger.Warn("DATABASE_URL not set; running without Postgres")
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres not reachable", "error", err)
		os.Exit(1)
	}
	return pool
}

func openSQLDB(url string, logger *logging.Logger) *sql.DB {
	if url == "" {
		return nil
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	return db
}

// setupExport wires the outbox publisher and its Sheets deliverer. Both are
// nil unless a database and a spreadsheet are configured.
func setupExport(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (*events.AppointmentPublisher, *events.Deliverer) {
	if pool == nil {
		return nil, nil
	}
	exporter, err := bootstrap.BuildSheetsExporter(ctx, cfg, logger)
	if err != nil {
		logger.Error("spreadsheet export disabled", "error", err)
		return nil, nil
	}
	if exporter == nil {
		return nil, nil
	}
	outbox := events.NewOutboxStore(pool)
	deliverer := events.NewDeliverer(outbox, exporter, logger).WithInterval(cfg.OutboxInterval)
	return events.NewAppointmentPublisher(outbox), deliverer
}

func setupDashboard(cfg *appconfig.Config, pool *pgxpool.Pool, book handlers.AppointmentBook, tenants clinic.Store, publisher *events.AppointmentPublisher, logger *logging.Logger) *handlers.DashboardHandler {
	if pool == nil {
		logger.Warn("staff dashboard disabled: no database")
		return nil
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; dashboard requests will be rejected")
	}
	auth := staff.NewService(staff.NewPgStore(pool), cfg.AdminJWTSecret, logger, staff.WithTokenTTL(cfg.AdminTokenTTL))
	var evts handlers.AppointmentEvents
	if publisher != nil {
		evts = publisher
	}
	return handlers.NewDashboardHandler(auth, book, tenants, evts, logger)
}
