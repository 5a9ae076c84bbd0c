// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carterperez-dev/gatepass/internal/access"
	"github.com/carterperez-dev/gatepass/internal/admin"
	"github.com/carterperez-dev/gatepass/internal/auth"
	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/credential"
	"github.com/carterperez-dev/gatepass/internal/gate"
	"github.com/carterperez-dev/gatepass/internal/health"
	"github.com/carterperez-dev/gatepass/internal/ledger"
	"github.com/carterperez-dev/gatepass/internal/metrics"
	"github.com/carterperez-dev/gatepass/internal/middleware"
	"github.com/carterperez-dev/gatepass/internal/outbox"
	"github.com/carterperez-dev/gatepass/internal/principal"
	"github.com/carterperez-dev/gatepass/internal/report"
	"github.com/carterperez-dev/gatepass/internal/server"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"driver", cfg.Database.Driver,
		"max_open_conns", db.Stats().MaxOpenConnections,
	)

	if cfg.Database.AutoMigrate {
		if err := core.Migrate(db); err != nil {
			return err
		}
		version, _ := core.SchemaVersion(db) //nolint:errcheck // informational
		logger.Info("database migrated", "schema_version", version)
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	tokens, err := auth.LoadVerifier(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("client token verifier initialized",
		"algorithm", "ES256",
		"key_id", tokens.KeyID(),
	)

	codec, err := ticket.FromConfig(cfg.Tickets)
	if err != nil {
		return err
	}

	channel := credential.New(cfg.Credential)
	logger.Info("credential channel ready",
		"classes", codec.Classes(),
		"composited", channel.Composited(),
	)

	provider, err := access.NewMembershipProvider(cfg.Membership)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	gateMetrics := metrics.New(registry)

	principals := principal.NewService(db.DB)
	admissions := ledger.NewService(db.DB)
	policy := access.NewPolicy(
		provider,
		principals,
		cfg.Membership.Timeout,
		cfg.Membership.BotName,
	)

	gateSvc, err := gate.NewService(
		principals,
		codec,
		channel,
		admissions,
		policy,
		outbox.NewPublisher(cfg.Outbox, redis),
		gateMetrics,
		gate.Options{
			IssueClass: ticket.Class(cfg.Tickets.IssueClass),
			Channel:    cfg.Membership.Channel,
		},
	)
	if err != nil {
		return err
	}
	gateHandler := gate.NewHandler(gateSvc, policy, cfg.Credential.MaxImageBytes)

	healthHandler := health.NewHandler(
		health.Check{Name: "database", Checker: db},
		health.Check{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		Totals:        gateSvc,
		SchemaVersion: func() (int64, error) { return core.SchemaVersion(db) },
		DBStats:       db.Stats,
		DBPing:        db.Ping,
		RedisStats:    redis.PoolStats,
		RedisPing:     redis.Ping,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
		ServiceName:   cfg.Otel.ServiceName,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recoverer(logger))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(middleware.MaxBody(cfg.Server.MaxBodyBytes))

	healthHandler.RegisterRoutes(router)

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		Registry: registry,
	}))
	router.Get("/.well-known/jwks.json", tokens.JWKSHandler())

	authenticator := middleware.Authenticator(tokens)

	clientLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit:    middleware.PerMinute(cfg.RateLimit.Requests, cfg.RateLimit.Burst),
		KeyFunc:  middleware.KeyByClient,
		FailOpen: true,
	}).Handler

	scanLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit: middleware.PerMinute(
			cfg.RateLimit.ScanRequests,
			cfg.RateLimit.ScanBurst,
		),
		KeyFunc:  middleware.KeyByStaff(cfg.Credential.MaxImageBytes),
		FailOpen: true,
	}).Handler

	router.Route("/v1", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(clientLimiter)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(auth.ScopeBot))
			gateHandler.RegisterRoutes(r, scanLimiter)
		})

		adminHandler.RegisterRoutes(r, middleware.RequireScope(auth.ScopeOps))
	})

	var reporter *report.Reporter
	if cfg.Report.Enabled {
		reporter = report.New(cfg.Report, gateSvc, gateMetrics, logger)
		if err := reporter.Start(ctx); err != nil {
			return err
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if reporter != nil {
		reporter.Stop(shutdownCtx)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
