package handler

import (
	"net/http"

	"github.com/mcoot/typeroom/internal/api/response"
	"github.com/mcoot/typeroom/internal/dependencies/clock"
	"github.com/mcoot/typeroom/internal/realtime"
)

// HealthHandler reports liveness and live connection counts
type HealthHandler struct {
	registry *realtime.Registry
	clock    clock.Clock
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(registry *realtime.Registry, clock clock.Clock) *HealthHandler {
	return &HealthHandler{registry: registry, clock: clock}
}

// Get handles GET /api/v1/health
func (h *HealthHandler) Get(w http.ResponseWriter, _ *http.Request) {
	stats := h.registry.Stats()
	response.JSON(w, http.StatusOK, response.Health{
		Status:    "ok",
		Timestamp: h.clock.Now().UTC(),
		Rooms:     stats.Rooms,
		Sessions:  stats.Sessions,
	})
}
