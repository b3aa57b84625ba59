package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/supuni9622/ModelSnap/app/models"
	"github.com/supuni9622/ModelSnap/app/repository"
	"github.com/supuni9622/ModelSnap/internal/pkg/jobqueue"
)

// HandleAdminQueueStats reports job queue depth and per-status counters.
func HandleAdminQueueStats(c *fiber.Ctx) error {
	queue := jobqueue.GetManager().GetQueue()

	stats, err := queue.GetJobStats(c.Context())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Stats lookup failed")
	}
	pending, err := queue.GetQueueSize(c.Context())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Stats lookup failed")
	}
	processing, err := queue.GetProcessingSize(c.Context())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Stats lookup failed")
	}

	return c.JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
		"stats":      stats,
	})
}

// HandleAdminGetJob returns one queue job by id for debugging stuck renders.
func HandleAdminGetJob(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("id"))
	if jobID == "" {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", "Job id is required")
	}

	job, err := jobqueue.GetManager().GetQueue().GetJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Job not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Job lookup failed")
	}

	return c.JSON(fiber.Map{"job": job})
}

// HandleAdminGenerationStats reports request counts by status plus a daily
// submission series for the last 30 days.
func HandleAdminGenerationStats(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetGenerationRepository()

	statuses := []string{
		models.GenerationStatusRequested,
		models.GenerationStatusProcessing,
		models.GenerationStatusPendingRetry,
		models.GenerationStatusCompleted,
		models.GenerationStatusFailed,
		models.GenerationStatusRejected,
	}
	byStatus := make(map[string]int64, len(statuses))
	for _, status := range statuses {
		count, err := repo.CountByStatus(status)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Stats lookup failed")
		}
		byStatus[status] = count
	}

	end := time.Now()
	start := end.AddDate(0, 0, -30)
	daily, err := repo.GetDailyCounts(start, end)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Stats lookup failed")
	}

	users, err := repository.GetGlobalFactory().GetUserRepository().Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Stats lookup failed")
	}

	return c.JSON(fiber.Map{
		"by_status": byStatus,
		"daily":     daily,
		"users":     users,
	})
}
