package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/services"
)

// BrowserHandler reports on the browser sessions
type BrowserHandler struct {
	browserService services.BrowserServiceInterface
	logger         *logrus.Logger
}

// NewBrowserHandler creates a new browser handler
func NewBrowserHandler(browserService services.BrowserServiceInterface, logger *logrus.Logger) *BrowserHandler {
	return &BrowserHandler{
		browserService: browserService,
		logger:         logger,
	}
}

// GetStats handles browser session statistics request
// @Summary Browser statistics
// @Description Get browser session counters and slot usage
// @Tags Browser
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/browser/stats [get]
func (h *BrowserHandler) GetStats(c *gin.Context) {
	h.logger.WithField("request_id", c.GetString("request_id")).Debug("Getting browser statistics")

	c.JSON(http.StatusOK, map[string]interface{}{
		"stats":     h.browserService.GetStats(),
		"timestamp": time.Now(),
	})
}

// GetHealth handles browser health check request
// @Summary Browser health
// @Description Check whether new browser sessions can be opened
// @Tags Browser
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/browser/health [get]
func (h *BrowserHandler) GetHealth(c *gin.Context) {
	health := h.browserService.Health()

	httpStatus := http.StatusOK
	if health["status"] == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, map[string]interface{}{
		"health":    health,
		"timestamp": time.Now(),
	})
}
