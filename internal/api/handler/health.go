package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/chirp_analysis/internal/service"
)

type HealthHandler struct {
	healthService *service.HealthService
}

func NewHealthHandler(healthService *service.HealthService) *HealthHandler {
	return &HealthHandler{healthService: healthService}
}

// Health 健康检查，依赖异常时返回 503 便于负载均衡摘除
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := h.healthService.Check(c.Request.Context())
	status := http.StatusOK
	if resp.Status != service.HealthOK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
