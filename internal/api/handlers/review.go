/**
 * @description
 * Collector review API Handlers.
 * The collector appraisal queue and manual reviews of submitted items.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"github.com/curio-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// ReviewHandler handles collector review requests
type ReviewHandler struct {
	reviewService *services.ReviewService
}

// NewReviewHandler creates a new ReviewHandler
func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// ListPending returns items waiting for a collector review, oldest first
// GET /api/v1/appraisals/pending
func (h *ReviewHandler) ListPending(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	views, err := h.reviewService.ListPending(c.UserContext(), userID, c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err, "Failed to fetch review queue")
	}
	return c.JSON(fiber.Map{
		"appraisals": views,
		"count":      len(views),
	})
}

// SubmitReview attaches or revises the caller's review of an item
// POST /api/v1/appraisals/:id/review
func (h *ReviewHandler) SubmitReview(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}
	id, ok, err := parseIDParam(c, "id")
	if !ok {
		return err
	}

	var in services.ReviewInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	review, created, err := h.reviewService.SubmitReview(c.UserContext(), userID, id, in)
	if err != nil {
		return respondError(c, err, "Failed to save review")
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"review": review})
}
