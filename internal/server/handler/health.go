package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	markets   MarketService
	mode      string
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting on the given desk.
func NewHealthHandler(markets MarketService, mode string, startedAt time.Time, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		markets:   markets,
		mode:      mode,
		startedAt: startedAt,
		logger:    logger,
	}
}

// healthMarket is the per-market slice of the health payload.
type healthMarket struct {
	Asset string `json:"asset"`
	Kind  string `json:"kind"`
}

// HealthCheck reports liveness plus a summary of the desk: run mode, uptime,
// and the initialized markets. A desk with zero markets is still healthy --
// markets can be created at runtime over the API.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.Markets()
	summary := make([]healthMarket, 0, len(markets))
	for _, m := range markets {
		summary = append(summary, healthMarket{Asset: m.Asset, Kind: string(m.Kind)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"markets":        summary,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
