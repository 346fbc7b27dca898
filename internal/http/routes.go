package http

import (
	"task_reminders/internal/config"
	"task_reminders/internal/http/handlers"
	"task_reminders/internal/http/middleware"
	"task_reminders/internal/registry"
	"task_reminders/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegisterRoutes wires the health probes and the push channel. Task CRUD and
// auth live in their own services; this process only carries the reminder
// pipeline and its transport.
func RegisterRoutes(r *gin.Engine, db *pgxpool.Pool, queue handlers.QueueStatus, reg *registry.Registry, cfg *config.Config, version string) {
	healthHandler := handlers.NewHealthHandler(db, queue, version)

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// Push channel for task notifications; connect attempts are rate limited
	// per client IP.
	r.GET("/ws", middleware.RedisRateLimit(cfg.WSRateLimit, cfg.WSRateWindow), ws.Handle(reg))
}
