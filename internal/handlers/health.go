package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"lorehub/internal/database"
	"lorehub/internal/health"
	"lorehub/internal/jobs"
	"lorehub/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db        *database.DB
	mongo     *database.MongoDB
	scheduler *jobs.Scheduler
	providers *health.Service
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, mongo *database.MongoDB, scheduler *jobs.Scheduler, providers *health.Service) *HealthHandler {
	return &HealthHandler{
		db:        db,
		mongo:     mongo,
		scheduler: scheduler,
		providers: providers,
	}
}

// Handle responds with server health status. Either core store being down
// makes the whole check fail with 503.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	healthy := true

	mysqlStatus := "healthy"
	if err := h.db.PingContext(ctx); err != nil {
		mysqlStatus = "unhealthy: " + err.Error()
		healthy = false
	}

	mongoStatus := "healthy"
	if err := h.mongo.Ping(ctx); err != nil {
		mongoStatus = "unhealthy: " + err.Error()
		healthy = false
	}

	// Redis is optional; the server degrades without it
	redisStatus := "disabled"
	if redis := services.GetRedisService(); redis != nil {
		redisStatus = "healthy"
		if err := redis.Ping(ctx); err != nil {
			redisStatus = "unhealthy: " + err.Error()
		}
	}

	status := "healthy"
	code := fiber.StatusOK
	if !healthy {
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}

	response := fiber.Map{
		"status":    status,
		"mysql":     mysqlStatus,
		"mongodb":   mongoStatus,
		"redis":     redisStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if h.scheduler != nil {
		response["jobs"] = h.scheduler.Status()
	}
	if h.providers != nil {
		response["providers"] = h.providers.GetStatus()
	}

	return c.Status(code).JSON(response)
}
