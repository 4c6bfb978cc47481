// handlers/reputation_routes.go
package handlers

import (
	"strconv"

	"term-translation-system/middleware"
	"term-translation-system/models"
	"term-translation-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupReputationRoutes(app *fiber.App, reputationService *services.ReputationService) {
	securedGroup := app.Group("/s", middleware.UserContextMiddleware())

	securedGroup.Get("/users/:id/reputation", func(c *fiber.Ctx) error {
		userID := c.Params("id")
		reputation := reputationService.GetReputation(userID)
		return c.JSON(fiber.Map{
			"user_id":    userID,
			"reputation": reputation,
			"tier":       models.TierFor(reputation),
		})
	})

	securedGroup.Get("/users/:id/reputation/events", func(c *fiber.Ctx) error {
		userID := c.Params("id")
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		if limit < 1 || limit > 500 {
			limit = 50
		}

		var events []models.ReputationEvent
		if err := reputationService.DB.
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Limit(limit).
			Find(&events).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load reputation events",
				"cause": err.Error(),
			})
		}
		return c.JSON(events)
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Get("/reputation/rules", func(c *fiber.Ctx) error {
		var rules []models.ReputationRule
		if err := reputationService.DB.Order("name ASC").Find(&rules).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load rules", "cause": err.Error()})
		}
		return c.JSON(rules)
	})

	adminGroup.Put("/reputation/rules/:name", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			Value int `json:"value"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		rule, err := reputationService.UpdateRule(c.Params("name"), req.Value, userID)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to update rule", "cause": err.Error()})
		}
		return c.JSON(rule)
	})

	// Dry-run of a rule change against the historical ledger — mutates
	// nothing.
	adminGroup.Post("/reputation/rules/:name/preview", func(c *fiber.Ctx) error {
		var req struct {
			Value      int `json:"value"`
			SampleSize int `json:"sample_size"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		preview, err := reputationService.PreviewRuleChange(c.Params("name"), req.Value, req.SampleSize)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "failed to preview rule change", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{
			"rule":           c.Params("name"),
			"proposed_value": req.Value,
			"users":          preview,
		})
	})

	adminGroup.Post("/reputation/adjust", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
			Delta  int    `json:"delta"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
		}

		result, err := reputationService.ApplyChange(req.UserID, req.Delta, models.ReasonManualAdjustment, nil, false)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to adjust reputation", "cause": err.Error()})
		}
		if !result.Applied {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}
		return c.JSON(result)
	})
}
