package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/services"
	"github.com/nexconsult/quote-harvester/internal/worker"
)

// WorkerStats reports the tenant worker pool
type WorkerStats interface {
	PoolStats() worker.PoolStats
}

// MetricsHandler serves prometheus metrics and a JSON statistics summary
type MetricsHandler struct {
	browserService services.BrowserServiceInterface
	cacheService   services.CacheServiceInterface
	workers        WorkerStats
	prometheus     http.Handler
	logger         *logrus.Logger
	startTime      time.Time
}

// NewMetricsHandler creates a new metrics handler. prom serves the
// exposition format on /metrics.
func NewMetricsHandler(browser services.BrowserServiceInterface, cache services.CacheServiceInterface, workers WorkerStats, prom http.Handler, logger *logrus.Logger) *MetricsHandler {
	return &MetricsHandler{
		browserService: browser,
		cacheService:   cache,
		workers:        workers,
		prometheus:     prom,
		logger:         logger,
		startTime:      time.Now(),
	}
}

// GetMetrics serves the prometheus registry
// @Summary Prometheus metrics
// @Description Harvester counters and histograms in the Prometheus text format
// @Tags Metrics
// @Produce plain
// @Success 200 {string} string
// @Router /metrics [get]
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	h.prometheus.ServeHTTP(c.Writer, c.Request)
}

// GetStats handles the statistics request
// @Summary Process statistics
// @Description Get browser, cache, worker pool and runtime statistics
// @Tags Metrics
// @Produce json
// @Success 200 {object} models.StatsResponse
// @Router /api/v1/stats [get]
func (h *MetricsHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	cacheStats, err := h.cacheService.GetStats(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).WithField("request_id", c.GetString("request_id")).Warn("Failed to get cache statistics")
		cacheStats = map[string]interface{}{"error": err.Error()}
	}

	c.JSON(http.StatusOK, models.StatsResponse{
		Browser: h.browserService.GetStats(),
		Cache:   cacheStats,
		Workers: h.workers.PoolStats(),
		System: models.SystemStats{
			MemoryMB:   float64(m.Alloc) / 1024 / 1024,
			Goroutines: runtime.NumGoroutine(),
			Uptime:     time.Since(h.startTime).String(),
		},
		Timestamp: time.Now(),
	})
}
