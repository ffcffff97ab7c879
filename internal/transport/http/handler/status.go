package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pulsewatch/pulsewatch/internal/repository"
	"github.com/pulsewatch/pulsewatch/internal/worker"
)

// StatusHandler exposes the worker's live state plus a summary of the
// schedule table for operators.
type StatusHandler struct {
	worker    *worker.Worker
	schedules repository.ScheduleRepository
	logger    *slog.Logger
}

func NewStatusHandler(w *worker.Worker, schedules repository.ScheduleRepository, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		worker:    w,
		schedules: schedules,
		logger:    logger.With("component", "status_handler"),
	}
}

func (h *StatusHandler) Status(ctx *gin.Context) {
	resp := gin.H{"worker": h.worker.Status()}

	stats, err := h.schedules.Stats(ctx.Request.Context(), ctx.Query("tenant_id"))
	if err != nil {
		h.logger.Warn("schedule stats unavailable", "error", err)
	} else {
		resp["schedule"] = stats
	}

	ctx.JSON(http.StatusOK, resp)
}
