/**
 * @description
 * Interest API Handlers.
 * Consumers flag interest in appraised items; collectors list interest received.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"github.com/curio-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// InterestHandler handles interest-related requests
type InterestHandler struct {
	interestService *services.InterestService
}

// NewInterestHandler creates a new InterestHandler
func NewInterestHandler(interestService *services.InterestService) *InterestHandler {
	return &InterestHandler{interestService: interestService}
}

// ExpressInterestRequest represents an interest request body
type ExpressInterestRequest struct {
	RequestID uuid.UUID `json:"request_id"`
}

// ExpressInterest records interest in an appraised item
// POST /api/v1/interests
func (h *InterestHandler) ExpressInterest(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	var req ExpressInterestRequest
	if err := c.BodyParser(&req); err != nil || req.RequestID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "request_id is required",
		})
	}

	interest, created, err := h.interestService.ExpressInterest(c.UserContext(), userID, req.RequestID)
	if err != nil {
		return respondError(c, err, "Failed to record interest")
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"interest": interest})
}

// ListMine returns the caller's interests
// GET /api/v1/interests
func (h *InterestHandler) ListMine(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	interests, err := h.interestService.ListMine(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "Failed to fetch interests")
	}
	return c.JSON(fiber.Map{"interests": interests, "count": len(interests)})
}

// ListReceived returns interest in the caller's items
// GET /api/v1/interests/received
func (h *InterestHandler) ListReceived(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	interests, err := h.interestService.ListReceived(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "Failed to fetch received interests")
	}
	return c.JSON(fiber.Map{"interests": interests, "count": len(interests)})
}

// RemoveInterest withdraws one of the caller's interests
// DELETE /api/v1/interests/:id
func (h *InterestHandler) RemoveInterest(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}
	id, ok, err := parseIDParam(c, "id")
	if !ok {
		return err
	}

	if err := h.interestService.RemoveInterest(c.UserContext(), userID, id); err != nil {
		return respondError(c, err, "Failed to remove interest")
	}
	return c.JSON(fiber.Map{"success": true})
}
