// handlers/flow_routes.go
package handlers

import (
	"errors"

	"term-translation-system/middleware"
	"term-translation-system/services"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps service sentinels to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidState):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func SetupFlowRoutes(app *fiber.App, flowService *services.FlowService, gamificationService *services.GamificationService) {
	securedGroup := app.Group("/s", middleware.UserContextMiddleware())

	securedGroup.Get("/flow/next", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		task, err := flowService.GetNextTask(userID, c.Query("language"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to select next task",
				"cause": err.Error(),
			})
		}

		if sessionID := c.Query("session_id"); sessionID != "" && task.Type != services.FlowTaskNone {
			// Best-effort: a stale session must not block the work queue.
			_ = gamificationService.RecordSessionActivity(sessionID, services.SessionActivityTaskServed)
		}
		return c.JSON(task)
	})

	securedGroup.Post("/translations", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			TermFieldID string `json:"term_field_id"`
			Language    string `json:"language"`
			Value       string `json:"value"`
			SessionID   string `json:"session_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.TermFieldID == "" || req.Language == "" || req.Value == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "term_field_id, language and value are required"})
		}

		translation, err := flowService.SubmitTranslation(userID, req.TermFieldID, req.Language, req.Value)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to submit translation", "cause": err.Error()})
		}
		if req.SessionID != "" {
			_ = gamificationService.RecordSessionActivity(req.SessionID, services.SessionActivityTranslation)
		}
		return c.Status(fiber.StatusCreated).JSON(translation)
	})

	securedGroup.Post("/translations/:id/review", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			Decision  string `json:"decision"` // "approve" or "reject"
			Comment   string `json:"comment"`
			SessionID string `json:"session_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.Decision != "approve" && req.Decision != "reject" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "decision must be approve or reject"})
		}

		result, err := flowService.SubmitReview(userID, c.Params("id"), req.Decision == "approve", req.Comment)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to submit review", "cause": err.Error()})
		}
		if req.SessionID != "" {
			_ = gamificationService.RecordSessionActivity(req.SessionID, services.SessionActivityReview)
		}
		return c.JSON(result)
	})

	securedGroup.Post("/translations/:id/resubmit", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			Value string `json:"value"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		translation, err := flowService.ResubmitTranslation(userID, c.Params("id"), req.Value)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to resubmit translation", "cause": err.Error()})
		}
		return c.JSON(translation)
	})

	securedGroup.Post("/translations/:id/merge", func(c *fiber.Ctx) error {
		result, err := flowService.MergeTranslation(c.Params("id"))
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to merge translation", "cause": err.Error()})
		}
		return c.JSON(result)
	})

	// Appeals hook — invoked by the (external) appeals flow when a rejection
	// is overturned.
	securedGroup.Post("/translations/:id/overturn", func(c *fiber.Ctx) error {
		result, err := flowService.OverturnRejection(c.Params("id"))
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to overturn rejection", "cause": err.Error()})
		}
		return c.JSON(result)
	})

	securedGroup.Post("/flow/sessions", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		session, err := gamificationService.StartSession(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start session", "cause": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	securedGroup.Post("/flow/sessions/:id/end", func(c *fiber.Ctx) error {
		session, err := gamificationService.EndSession(c.Params("id"))
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to end session", "cause": err.Error()})
		}
		return c.JSON(session)
	})

	securedGroup.Get("/flow/streak", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		stats, err := gamificationService.EnsureStats(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load stats", "cause": err.Error()})
		}
		return c.JSON(stats)
	})

	securedGroup.Get("/flow/challenges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		challenges, err := gamificationService.EnsureDailyChallenges(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load challenges", "cause": err.Error()})
		}
		return c.JSON(challenges)
	})
}
