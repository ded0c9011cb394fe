/**
 * @description
 * Profile API Handlers.
 * Lets the signed-in user set up and read their marketplace profile.
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

// ProfileHandler handles profile-related requests
type ProfileHandler struct {
	profileService *services.ProfileService
}

// NewProfileHandler creates a new ProfileHandler
func NewProfileHandler(profileService *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

// UpsertProfile creates or updates the caller's profile
// POST /api/v1/profile
func (h *ProfileHandler) UpsertProfile(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	var in services.ProfileInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	profile, err := h.profileService.UpsertProfile(c.UserContext(), userID, in)
	if err != nil {
		return respondError(c, err, "Failed to save profile")
	}
	return c.JSON(fiber.Map{"profile": profile})
}

// GetMe returns the caller's profile
// GET /api/v1/profile/me
func (h *ProfileHandler) GetMe(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	profile, err := h.profileService.GetProfile(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "Failed to fetch profile")
	}
	return c.JSON(fiber.Map{"profile": profile})
}
