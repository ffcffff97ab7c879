package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pulsewatch/pulsewatch/internal/health"
)

type HealthHandler struct {
	checker *health.Checker
	logger  *slog.Logger
}

func NewHealthHandler(checker *health.Checker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checker: checker, logger: logger.With("component", "health_handler")}
}

func (h *HealthHandler) Liveness(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.checker.Liveness(ctx.Request.Context()))
}

func (h *HealthHandler) Readiness(ctx *gin.Context) {
	result := h.checker.Readiness(ctx.Request.Context())
	code := http.StatusOK
	if result.Status != "up" {
		code = http.StatusServiceUnavailable
	}
	ctx.JSON(code, result)
}
