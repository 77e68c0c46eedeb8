package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-materials-api/internal/service"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// OpsHandler serves the Prometheus scrape endpoint and the readiness probe.
type OpsHandler struct {
	metrics *service.MetricsService
	db      pinger
}

// NewOpsHandler constructs the handler. db may be nil, in which case health never checks storage.
func NewOpsHandler(metrics *service.MetricsService, db pinger) *OpsHandler {
	return &OpsHandler{metrics: metrics, db: db}
}

// Prometheus serves the metrics registry.
func (h *OpsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health godoc
// @Summary Readiness probe
// @Tags Ops
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *OpsHandler) Health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
