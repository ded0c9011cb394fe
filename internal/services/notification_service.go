/**
 * @description
 * Notification Service for marketplace alerts.
 * Creates and manages notifications for appraisal results, interests and
 * transaction updates.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/models
 */

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationService handles notification operations
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		db: db,
	}
}

func (s *NotificationService) create(ctx context.Context, n *models.Notification) error {
	if n.UserID == "" {
		return nil // Anonymous requests have nobody to notify
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		logger.Error("NotificationService: Failed to create %s notification: %v", n.Type, err)
		return err
	}
	return nil
}

// NotifyAppraisalReady tells the request owner their result is available
func (s *NotificationService) NotifyAppraisalReady(ctx context.Context, req *models.AppraisalRequest, result *models.AppraisalResult) error {
	if req.UserID == nil {
		return nil
	}
	requestID := req.ID
	return s.create(ctx, &models.Notification{
		UserID:    *req.UserID,
		Type:      models.NotificationTypeAppraisalReady,
		Title:     fmt.Sprintf("%s has been appraised", req.ItemName),
		Message:   fmt.Sprintf("Appraised at %.2f %s (%s)", result.AppraisedValue, result.Currency, result.QualityAssessment),
		RequestID: &requestID,
	})
}

// NotifyAppraisalFailed tells the request owner processing was abandoned
func (s *NotificationService) NotifyAppraisalFailed(ctx context.Context, req *models.AppraisalRequest, reason string) error {
	if req.UserID == nil {
		return nil
	}
	requestID := req.ID
	return s.create(ctx, &models.Notification{
		UserID:    *req.UserID,
		Type:      models.NotificationTypeAppraisalFailed,
		Title:     fmt.Sprintf("Appraisal of %s failed", req.ItemName),
		Message:   reason,
		RequestID: &requestID,
	})
}

// NotifyNewInterest tells a collector that a consumer is interested in their item
func (s *NotificationService) NotifyNewInterest(ctx context.Context, req *models.AppraisalRequest, consumerName string) error {
	if req.UserID == nil {
		return nil
	}
	if consumerName == "" {
		consumerName = "A consumer"
	}
	requestID := req.ID
	return s.create(ctx, &models.Notification{
		UserID:    *req.UserID,
		Type:      models.NotificationTypeNewInterest,
		Title:     fmt.Sprintf("New interest in %s", req.ItemName),
		Message:   fmt.Sprintf("%s is interested in your %s", consumerName, req.ItemName),
		RequestID: &requestID,
	})
}

// NotifyCollectorReview tells the request owner a collector reviewed their item
func (s *NotificationService) NotifyCollectorReview(ctx context.Context, req *models.AppraisalRequest, review *models.CollectorReview) error {
	if req.UserID == nil {
		return nil
	}
	requestID := req.ID
	return s.create(ctx, &models.Notification{
		UserID:    *req.UserID,
		Type:      models.NotificationTypeCollectorReview,
		Title:     fmt.Sprintf("A collector reviewed %s", req.ItemName),
		Message:   fmt.Sprintf("Estimated at %s %s (%s)", review.EstimatedValue.StringFixed(2), review.Currency, review.Quality),
		RequestID: &requestID,
	})
}

// NotifyTransactionUpdate tells one party that a transaction changed status
func (s *NotificationService) NotifyTransactionUpdate(ctx context.Context, userID string, tx *models.Transaction) error {
	requestID := tx.RequestID
	return s.create(ctx, &models.Notification{
		UserID:    userID,
		Type:      models.NotificationTypeTransaction,
		Title:     fmt.Sprintf("Transaction %s", tx.Status),
		Message:   fmt.Sprintf("Transaction %s is now %s", tx.ID, tx.Status),
		RequestID: &requestID,
	})
}

// GetNotifications returns notifications for a user
func (s *NotificationService) GetNotifications(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	var notifications []models.Notification

	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications)

	if result.Error != nil {
		return nil, result.Error
	}

	return notifications, nil
}

// GetUnreadCount returns the count of unread notifications
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count)

	if result.Error != nil {
		return 0, result.Error
	}

	return count, nil
}

// MarkAsRead marks a specific notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, userID string, notificationID uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkAllAsRead marks all notifications as read for a user
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error
}

// DeleteOldNotifications deletes notifications older than the specified duration
func (s *NotificationService) DeleteOldNotifications(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)

	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Notification{})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		logger.Info("NotificationService: Deleted %d old notifications", result.RowsAffected)
	}

	return nil
}
