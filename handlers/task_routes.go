// handlers/task_routes.go
package handlers

import (
	"context"
	"strconv"

	"term-translation-system/middleware"
	"term-translation-system/models"
	"term-translation-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTaskRoutes(app *fiber.App, taskService *services.TaskService) {
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Get("/tasks", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		if limit < 1 || limit > 500 {
			limit = 50
		}

		q := taskService.DB.Order("created_at DESC").Limit(limit)
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		if sourceID := c.Query("source_id"); sourceID != "" {
			q = q.Where("source_id = ?", sourceID)
		}

		var tasks []models.Task
		if err := q.Find(&tasks).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load tasks", "cause": err.Error()})
		}
		return c.JSON(tasks)
	})

	adminGroup.Get("/tasks/:id", func(c *fiber.Ctx) error {
		var task models.Task
		if err := taskService.DB.First(&task, "id = ?", c.Params("id")).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
		}
		return c.JSON(task)
	})

	// Manual task run (also the resubmission path for failed tasks — failed
	// work is never retried automatically).
	adminGroup.Post("/tasks", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			TaskType models.TaskType `json:"task_type"`
			SourceID string          `json:"source_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.TaskType == "" || req.SourceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "task_type and source_id are required"})
		}

		task, err := taskService.CreateManualTask(req.TaskType, req.SourceID, userID)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to create task", "cause": err.Error()})
		}

		// Execute off the request path; the task row carries the outcome.
		go taskService.ExecuteTask(context.Background(), task)

		return c.Status(fiber.StatusCreated).JSON(task)
	})

	adminGroup.Get("/schedulers", func(c *fiber.Ctx) error {
		var schedulers []models.TaskScheduler
		if err := taskService.DB.Order("name ASC").Find(&schedulers).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load schedulers", "cause": err.Error()})
		}
		return c.JSON(schedulers)
	})

	adminGroup.Post("/schedulers", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			Name           string          `json:"name"`
			TaskType       models.TaskType `json:"task_type"`
			SourceID       string          `json:"source_id"`
			ScheduleConfig string          `json:"schedule_config"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.Name == "" || req.TaskType == "" || req.SourceID == "" || req.ScheduleConfig == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name, task_type, source_id and schedule_config are required"})
		}

		sched, err := taskService.CreateScheduler(req.Name, req.TaskType, req.SourceID, req.ScheduleConfig, userID)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to create scheduler", "cause": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(sched)
	})

	adminGroup.Post("/schedulers/:id/enable", func(c *fiber.Ctx) error {
		sched, err := taskService.SetSchedulerEnabled(c.Params("id"), true)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to enable scheduler", "cause": err.Error()})
		}
		return c.JSON(sched)
	})

	adminGroup.Post("/schedulers/:id/disable", func(c *fiber.Ctx) error {
		sched, err := taskService.SetSchedulerEnabled(c.Params("id"), false)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to disable scheduler", "cause": err.Error()})
		}
		return c.JSON(sched)
	})
}
