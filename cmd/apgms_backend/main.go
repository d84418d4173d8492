package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/apgms/apgms/internal/adapters/cache/redisjti"
	"github.com/apgms/apgms/internal/adapters/database/memory"
	"github.com/apgms/apgms/internal/adapters/database/pgsql"
	"github.com/apgms/apgms/internal/adapters/egress"
	"github.com/apgms/apgms/internal/core/ports/gateways"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/core/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/handlers"
	"github.com/apgms/apgms/internal/middleware"
	"github.com/apgms/apgms/internal/platform/config"
	"github.com/apgms/apgms/internal/platform/metrics"
	"github.com/apgms/apgms/internal/rpt"
	"github.com/apgms/apgms/pkg/database"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 15 * time.Second

// @title APGMS Core API
// @version 1.0
// @description BAS gate, OWA ledger, RPT issuance and remittance for PAYGW and GST.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @security BearerAuth
func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", slog.String("driver", cfg.StoreDriver), slog.String("error", err.Error()))
		os.Exit(1)
	}
	if provider.Close != nil {
		defer provider.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redisjti.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to connect to redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		logger.Info("Redis connection established.")
	}
	if cfg.JTIBackend == config.JTIRedis {
		provider.JTI = redisjti.New(redisClient)
		logger.Info("RPT replay registry backed by redis.")
	}

	keyring, err := rpt.LoadKeyring(rpt.KeyMaterial{
		PrivateKey: cfg.RPTPrivateKey,
		PublicKey:  cfg.RPTPublicKey,
		Secret:     cfg.RPTSecret,
		Trusted:    cfg.RPTTrustedKeys,
	})
	if err != nil {
		logger.Error("Failed to load RPT keys", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if keyring.CanSign() {
		logger.Info("RPT signing key loaded", slog.String("kid", rpt.KeyID(keyring.PublicKey())))
	}

	var rail gateways.EgressProvider = egress.NewSandbox()
	if cfg.EgressProvider == config.EgressHTTP {
		rail = egress.NewHTTPRail(cfg.EgressBaseURL, cfg.EgressTimeout)
	}
	killSwitch := egress.NewKillSwitch(rail, cfg.KillSwitch)
	if cfg.KillSwitch {
		logger.Warn("Kill switch engaged, remittances are disabled.")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	svc := services.NewServiceContainer(cfg, provider, keyring, killSwitch, services.WithMetrics(m))

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := dto.RegisterValidators(v); err != nil {
			logger.Error("Failed to register validators", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	var limiterClient redis.UniversalClient
	if redisClient != nil {
		limiterClient = redisClient
	}
	remitLimiter, err := middleware.NewLimiter(cfg.RemitRateLimit, limiterClient)
	if err != nil {
		logger.Error("Failed to create remit rate limiter", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware (logging, recovery, metrics, deadline, CORS)
	r.Use(
		middleware.StructuredLoggingMiddleware(logger),
		gin.Recovery(),
		middleware.MetricsMiddleware(m),
		middleware.RequestTimeout(cfg.RequestTimeout),
		cors.New(corsConfig(cfg.CORSAllowedOrigins)),
	)

	err = r.SetTrustedProxies(nil)
	if err != nil {
		logger.Error("Failed to set trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handlers.RegisterRoutes(r, cfg, svc, handlers.EdgeDeps{
		Gatherer:     registry,
		RemitLimiter: remitLimiter,
	})

	go runSweeper(ctx, svc.Idempotency, cfg.SweepInterval, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to run", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", slog.String("error", err.Error()))
	}
}

// openStore returns the repository provider for the configured driver. The
// postgres driver applies pending migrations first.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (portsrepo.RepositoryProvider, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("Using in-memory store")
		return memory.NewStore().Provider(), nil
	}

	logger.Info("Running database migrations...")
	if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger); err != nil {
		return portsrepo.RepositoryProvider{}, err
	}

	pool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, database.PoolOptions{StatementTimeout: cfg.RequestTimeout})
	if err != nil {
		return portsrepo.RepositoryProvider{}, err
	}
	logger.Info("Database connection pool established.")
	return pgsql.NewRepositoryProvider(pool), nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", middleware.HeaderIdempotencyKey)
	c.ExposeHeaders = []string{middleware.HeaderIdempotencyReplayed, middleware.HeaderRequestID, middleware.HeaderTraceID}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// runSweeper purges expired idempotency keys and RPT nonces until ctx ends.
func runSweeper(ctx context.Context, idem portssvc.IdempotencySvc, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			keys, nonces, err := idem.Sweep(ctx)
			if err != nil {
				logger.Error("Sweep failed", slog.String("error", err.Error()))
				continue
			}
			if keys > 0 || nonces > 0 {
				logger.Info("Sweep complete", slog.Int64("idempotency_keys", keys), slog.Int64("rpt_nonces", nonces))
			}
		}
	}
}
