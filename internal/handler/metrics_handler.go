package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinicore/scheduling-api/internal/service"
	"github.com/clinicore/scheduling-api/pkg/response"
)

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	dbPing  func() error
}

// NewMetricsHandler constructs a metrics handler. dbPing is used by the
// readiness probe; nil means always ready.
func NewMetricsHandler(metrics *service.MetricsService, dbPing func() error) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, dbPing: dbPing}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready verifies the database connection before reporting readiness.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.dbPing != nil {
		if err := h.dbPing(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Snapshot returns aggregated runtime counters.
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}
