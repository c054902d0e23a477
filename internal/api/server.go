package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	// Swagger docs
	_ "github.com/nexconsult/quote-harvester/docs"
	"github.com/nexconsult/quote-harvester/internal/api/handlers"
	"github.com/nexconsult/quote-harvester/internal/api/middleware"
	"github.com/nexconsult/quote-harvester/internal/config"
	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/services"
)

// Server represents the HTTP control server
type Server struct {
	Router      *gin.Engine
	config      *config.Config
	logger      *logrus.Logger
	services    *services.Container
	rateLimiter *middleware.RateLimiter
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, logger *logrus.Logger, services *services.Container) *Server {
	server := &Server{
		config:   cfg,
		logger:   logger,
		services: services,
	}

	server.setupRouter()
	return server
}

// setupRouter configures the router with all routes and middleware
func (s *Server) setupRouter() {
	s.Router = gin.New()

	// Global middleware
	s.Router.Use(middleware.RequestID())
	s.Router.Use(middleware.Logger(s.logger))
	s.Router.Use(middleware.Recovery(s.logger))
	s.Router.Use(middleware.CORS(s.config.Security.CORS))
	s.Router.Use(middleware.Security())

	// Health checks and metrics are not rate limited
	healthHandler := handlers.NewHealthHandler(s.services, s.logger)
	s.Router.GET("/health", healthHandler.GetHealth)
	s.Router.GET("/health/ready", healthHandler.GetReadiness)
	s.Router.GET("/health/live", healthHandler.GetLiveness)

	metricsHandler := handlers.NewMetricsHandler(s.services.BrowserService, s.services.CacheService, s.services.Harvest, s.services.Metrics.Handler(), s.logger)
	s.Router.GET("/metrics", metricsHandler.GetMetrics)

	// Swagger documentation
	if !s.config.IsProduction() {
		s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		s.Router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
		})
	}

	s.rateLimiter = middleware.NewRateLimiter(s.config.Security.RateLimit)
	requireKey := middleware.APIKeyAuth(s.config.Security.APIKey)

	v1 := s.Router.Group("/api/v1")
	v1.Use(s.rateLimiter.Middleware())
	{
		v1.GET("/stats", metricsHandler.GetStats)

		runHandler := handlers.NewRunHandler(s.services.Harvest, s.logger)
		runs := v1.Group("/runs")
		{
			runs.POST("", requireKey, runHandler.StartRun)
			runs.GET("/last", runHandler.GetLastRun)
		}

		cacheHandler := handlers.NewCacheHandler(s.services.CacheService, s.logger)
		cache := v1.Group("/cache")
		{
			cache.GET("/stats", cacheHandler.GetStats)
			cache.DELETE("/clear", requireKey, cacheHandler.Clear)
		}

		browserHandler := handlers.NewBrowserHandler(s.services.BrowserService, s.logger)
		browser := v1.Group("/browser")
		{
			browser.GET("/stats", browserHandler.GetStats)
			browser.GET("/health", browserHandler.GetHealth)
		}
	}

	// 404 handler
	s.Router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:     "Not Found",
			Message:   "The requested resource was not found",
			Code:      models.ErrorCodeNotFound,
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
	})

	// 405 handler
	s.Router.HandleMethodNotAllowed = true
	s.Router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, models.ErrorResponse{
			Error:     "Method Not Allowed",
			Message:   "The requested method is not allowed for this resource",
			Code:      models.ErrorCodeInvalidRequest,
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
	})
}

// Close stops background work owned by the server
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
