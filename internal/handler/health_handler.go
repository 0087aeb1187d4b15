package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"podcast-be/pkg/logger"
)

// Pinger is a dependency the health check can probe
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	database Pinger
	redis    Pinger
	logger   *logger.Logger
	version  string
}

// NewHealthHandler creates a new health handler. A nil redis means the
// service runs without Redis and is reported as "disabled".
func NewHealthHandler(database, redis Pinger, log *logger.Logger, version string) *HealthHandler {
	return &HealthHandler{
		database: database,
		redis:    redis,
		logger:   log,
		version:  version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

const healthCheckTimeout = 2 * time.Second

// Check handles GET /health. An unreachable database fails the check; an
// unreachable Redis only degrades it.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Service:   "podcast-be",
		Checks:    make(map[string]string, 2),
	}
	status := http.StatusOK

	response.Checks["database"] = h.probe(ctx, "database", h.database)
	if response.Checks["database"] == "down" {
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	response.Checks["redis"] = h.probe(ctx, "redis", h.redis)
	if response.Checks["redis"] == "down" && status == http.StatusOK {
		response.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode health check response")
	}
}

func (h *HealthHandler) probe(ctx context.Context, name string, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Health(ctx); err != nil {
		h.logger.WithError(err).WithField("dependency", name).Warn("Health check failed")
		return "down"
	}
	return "up"
}
