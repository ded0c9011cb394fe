/**
 * @description
 * Trigger webhook for request-created events.
 * Accepts the database-webhook envelope {"record": {...}} and runs the
 * appraisal processor synchronously. Safe to deliver more than once.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"errors"

	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/models"
	"github.com/curio-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// HookHandler handles trigger webhooks
type HookHandler struct {
	processor *services.AppraisalProcessor
}

// NewHookHandler creates a new HookHandler
func NewHookHandler(processor *services.AppraisalProcessor) *HookHandler {
	return &HookHandler{processor: processor}
}

// ProcessAppraisalPayload is the webhook envelope
type ProcessAppraisalPayload struct {
	Record *models.AppraisalRequest `json:"record"`
}

// ProcessAppraisal scores the posted request and stores its result
// POST /api/v1/hooks/process-appraisal
func (h *HookHandler) ProcessAppraisal(c *fiber.Ctx) error {
	var payload ProcessAppraisalPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if payload.Record == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing record in request body"})
	}

	out, err := h.processor.Process(c.UserContext(), payload.Record)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Error()})
		}
		logger.Error("ProcessAppraisal: request %s: %v", payload.Record.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	message := "Appraisal processed successfully"
	if !out.Created {
		message = "Appraisal already processed"
	}
	return c.JSON(fiber.Map{
		"message": message,
		"result":  out.Result,
	})
}
