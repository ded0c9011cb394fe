/**
 * @description
 * Notification API Handlers.
 * Lists the caller's notifications and marks them read.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"strconv"

	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// NotificationHandler handles notification endpoints
type NotificationHandler struct {
	notificationService *services.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// GetNotifications returns user's notifications
// GET /api/v1/notifications
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	notifications, err := h.notificationService.GetNotifications(c.UserContext(), userID, limit, offset)
	if err != nil {
		logger.Error("NotificationHandler: Failed to get notifications: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch notifications",
		})
	}

	unreadCount, _ := h.notificationService.GetUnreadCount(c.UserContext(), userID)

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"unread_count":  unreadCount,
		"count":         len(notifications),
	})
}

// MarkNotificationRead marks a notification as read
// POST /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkNotificationRead(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}
	notifID, ok, err := parseIDParam(c, "id")
	if !ok {
		return err
	}

	if err := h.notificationService.MarkAsRead(c.UserContext(), userID, notifID); err != nil {
		return respondError(c, err, "Failed to mark notification as read")
	}

	return c.JSON(fiber.Map{"success": true})
}

// MarkAllNotificationsRead marks all notifications as read
// POST /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllNotificationsRead(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	if err := h.notificationService.MarkAllAsRead(c.UserContext(), userID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to mark all as read",
		})
	}

	return c.JSON(fiber.Map{"success": true})
}
