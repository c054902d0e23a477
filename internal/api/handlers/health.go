package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/models"
)

// Version is reported by the health endpoints
const Version = "1.0.0"

// HealthChecker reports the health of each dependency by name
type HealthChecker interface {
	Health() map[string]interface{}
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checker   HealthChecker
	logger    *logrus.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker HealthChecker, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		checker:   checker,
		logger:    logger,
		startTime: time.Now(),
	}
}

// GetHealth reports the aggregated status of every dependency. Only an
// unhealthy dependency turns the response into a 503.
// @Summary Health check
// @Description Get the health status of the API and its dependencies
// @Tags Health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Failure 503 {object} models.HealthResponse
// @Router /health [get]
func (h *HealthHandler) GetHealth(c *gin.Context) {
	servicesHealth := h.checker.Health()
	now := time.Now()

	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: now,
		Version:   Version,
		Services:  make(map[string]models.ServiceInfo),
		Uptime:    time.Since(h.startTime).String(),
	}

	for name, serviceHealth := range servicesHealth {
		info := models.ServiceInfo{
			Status:    statusOf(serviceHealth),
			LastCheck: now,
		}
		if healthMap, ok := serviceHealth.(map[string]interface{}); ok {
			if msg, ok := healthMap["error"].(string); ok {
				info.Error = msg
			}
		}
		response.Services[name] = info
		response.Status = worse(response.Status, info.Status)
	}

	httpStatus := http.StatusOK
	if response.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
		h.logger.WithField("services", servicesHealth).Warn("Health check failed")
	}

	c.JSON(httpStatus, response)
}

// GetReadiness reports whether runs can be served: the database and the
// browser service must not be unhealthy.
// @Summary Readiness check
// @Description Check if the database and browser can serve runs
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/ready [get]
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	servicesHealth := h.checker.Health()

	issues := make([]string, 0)
	for _, name := range []string{"database", "browser"} {
		if statusOf(servicesHealth[name]) == "unhealthy" {
			issues = append(issues, name+" is unhealthy")
		}
	}

	response := map[string]interface{}{
		"ready":     len(issues) == 0,
		"timestamp": time.Now(),
		"services":  servicesHealth,
	}

	httpStatus := http.StatusOK
	if len(issues) > 0 {
		response["issues"] = issues
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, response)
}

// GetLiveness answers as long as the process can respond
// @Summary Liveness check
// @Description Check if the API is alive and responding
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/live [get]
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
		"version":   Version,
	})
}

// statusOf reads the "status" field of a health map. Maps without one, like
// the cache's per-backend report, take the worst status of their children.
func statusOf(v interface{}) string {
	healthMap, ok := v.(map[string]interface{})
	if !ok {
		return "healthy"
	}
	if status, ok := healthMap["status"].(string); ok {
		if status == "disabled" {
			return "healthy"
		}
		return status
	}

	status := "healthy"
	for _, child := range healthMap {
		if _, ok := child.(map[string]interface{}); ok {
			status = worse(status, statusOf(child))
		}
	}
	return status
}

func worse(a, b string) string {
	rank := map[string]int{"healthy": 0, "degraded": 1, "unhealthy": 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
