package http

import (
	"github.com/GriffinCanCode/courier/internal/api/middleware"
	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/GriffinCanCode/courier/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/courier/internal/infrastructure/tracing"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	CORS      middleware.CORSConfig
	RateLimit middleware.RateLimitConfig
	Metrics   *monitoring.Metrics
	Tracer    *tracing.Tracer
	Logger    *zap.Logger
}

// NewRouter builds the Gin engine with all routes registered.
func NewRouter(h *Handlers, cfg RouterConfig) *gin.Engine {
	if cfg.CORS.AllowMethods == nil {
		cfg.CORS = middleware.DefaultCORSConfig()
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = middleware.DefaultRateLimitConfig()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.AccessLog(logging.OrNop(cfg.Logger)))
	if cfg.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(cfg.Tracer))
	}
	router.Use(monitoring.Middleware(cfg.Metrics))
	router.Use(middleware.CORS(cfg.CORS))

	v1 := router.Group("/v1")
	v1.POST("/intercept", h.Intercept)

	ops := router.Group("/")
	ops.Use(middleware.RateLimit(cfg.RateLimit))
	ops.GET("/health", h.Health)
	ops.GET("/status", h.Status)
	ops.GET("/metrics", h.Metrics)

	return router
}
