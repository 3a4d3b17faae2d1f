package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/lendpeer/escrow-engine/internal/gateway"
	"github.com/lendpeer/escrow-engine/pkg/response"
)

type HealthHandler struct {
	db        *sqlx.DB
	redis     *redis.Client
	processor gateway.PaymentProcessor
}

func NewHealthHandler(db *sqlx.DB, redis *redis.Client, processor gateway.PaymentProcessor) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     redis,
		processor: processor,
	}
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health performs a basic liveness check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	response.Success(w, status)
}

// Ready performs readiness checks against the database, redis and the
// payment processor.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		status.Status = "error"
		status.Checks["database"] = "failed: " + err.Error()
	} else {
		status.Checks["database"] = "ok"
	}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		status.Status = "error"
		status.Checks["redis"] = "failed: " + err.Error()
	} else {
		status.Checks["redis"] = "ok"
	}

	// A slow processor degrades readiness but the check must not hang.
	if err := h.processor.HealthCheck(ctx); err != nil {
		status.Status = "error"
		status.Checks["processor"] = "failed: " + err.Error()
	} else {
		status.Checks["processor"] = "ok"
	}

	if status.Status == "error" {
		response.Error(w, http.StatusServiceUnavailable, "Service not ready", nil)
		return
	}

	response.Success(w, status)
}
