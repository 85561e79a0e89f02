package handler

import (
	"context"
	"net/http"

	"github.com/ErlanBelekov/backend-skeleton/internal/health"
	"github.com/gin-gonic/gin"
)

type healthChecker interface {
	Liveness(ctx context.Context) health.HealthResult
	Readiness(ctx context.Context) health.HealthResult
}

type HealthHandler struct {
	checker healthChecker
}

func NewHealthHandler(checker healthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Liveness(c.Request.Context()))
}

// GET /health/ready
// Returns 503 with per-dependency detail when any check is down.
func (h *HealthHandler) Ready(c *gin.Context) {
	result := h.checker.Readiness(c.Request.Context())
	if result.Status != health.StatusUp {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errServiceUnavailable, "checks": result.Checks})
		return
	}
	c.JSON(http.StatusOK, result)
}
