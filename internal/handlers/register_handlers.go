package handlers

import (
	"net/http"

	"github.com/apgms/apgms/cmd/docs"
	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/middleware"
	"github.com/apgms/apgms/internal/platform/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/ulule/limiter/v3"
)

const (
	idempotencyScopeRemit = "remit"
	idempotencyScopeGate  = "gate"
)

// EdgeDeps are the edge components built at startup. Nil fields disable the
// feature they back.
type EdgeDeps struct {
	// Gatherer serves /metrics.
	Gatherer prometheus.Gatherer
	// RemitLimiter throttles /egress/remit.
	RemitLimiter *limiter.Limiter
}

// RegisterRoutes sets up all application routes, injecting dependencies using interfaces
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	deps EdgeDeps,
) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	setupAPIRoutes(r, cfg, services, deps)

	setupSwaggerRoutes(r, cfg)
}

// setupAPIRoutes registers the core surfaces, behind bearer auth when enabled.
func setupAPIRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	deps EdgeDeps,
) {
	api := r.Group("/")
	if cfg.AuthEnabled {
		api.Use(middleware.AuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))
	}

	var gateMW, remitMW []gin.HandlerFunc
	if deps.RemitLimiter != nil {
		remitMW = append(remitMW, middleware.RateLimit(deps.RemitLimiter))
	}
	if cfg.EnableIdempotency {
		gateMW = append(gateMW, middleware.Idempotency(services.Idempotency, middleware.IdempotencyOptions{
			Scope: idempotencyScopeGate,
			TTL:   cfg.IdempotencyTTL,
		}))
		remitMW = append(remitMW, middleware.Idempotency(services.Idempotency, middleware.IdempotencyOptions{
			Scope:    idempotencyScopeRemit,
			TTL:      cfg.IdempotencyTTL,
			Required: true,
		}))
	}

	RegisterGateRoutes(api, services.Gate, gateMW...)
	RegisterLedgerRoutes(api, services.Ledger)
	RegisterReconRoutes(api, services.Recon)
	RegisterRPTRoutes(api, services.RPT)
	RegisterRemitRoutes(api, services.Remit, remitMW...)
	RegisterAuditRoutes(api, services.Audit)
}

// setupSwaggerRoutes configures the swagger documentation routes
func setupSwaggerRoutes(r *gin.Engine, cfg *config.Config) {
	if cfg.IsProduction {
		//no swagger in prod
		return
	}
	docs.SwaggerInfo.BasePath = "/"
	swagger := r.Group("/swagger")
	swagger.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
