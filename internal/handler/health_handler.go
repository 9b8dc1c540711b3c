package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/labstack/echo/v4"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a health handler checking db.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthResponse reports probe status.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// Healthz godoc
// @Summary Liveness and database check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.db(ctx); err != nil {
		log.WithError(err).Warn("health check: database unreachable")
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
