package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db      *sql.DB
	rdb     *redis.Client
	started time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{
		db:      db,
		rdb:     rdb,
		started: time.Now(),
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Service string `json:"service" example:"siwe-login"`
	Uptime  string `json:"uptime" example:"1h2m3s"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks"`
}

// Health godoc
// @Summary Health check
// @Description Returns server health status
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "siwe-login",
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

// Ready godoc
// @Summary Readiness check
// @Description Returns server readiness, including database and Redis connectivity
// @Tags health
// @Produce json
// @Success 200 {object} ReadyResponse
// @Failure 503 {object} ReadyResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	response := ReadyResponse{
		Status: "ok",
		Checks: map[string]string{
			"db":    "ok",
			"redis": "ok",
		},
	}
	statusCode := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		response.Checks["db"] = "error"
		response.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		response.Checks["redis"] = "error"
		response.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
