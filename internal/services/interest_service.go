/**
 * @description
 * Interest Service for consumer bookmarks on appraised items.
 * Consumers flag interest in completed appraisals; collectors see who is
 * interested in their items together with contact details. Both sides need
 * a profile with the matching role.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/models
 */

package services

import (
	"context"
	"fmt"

	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InterestService handles interest operations
type InterestService struct {
	db            *gorm.DB
	appraisals    *AppraisalService
	profiles      *ProfileService
	notifications *NotificationService
}

// NewInterestService creates a new InterestService. notifications may be nil.
func NewInterestService(db *gorm.DB, appraisals *AppraisalService, profiles *ProfileService, notifications *NotificationService) *InterestService {
	return &InterestService{
		db:            db,
		appraisals:    appraisals,
		profiles:      profiles,
		notifications: notifications,
	}
}

// ExpressInterest records a consumer's interest in an appraised request.
// Repeating it is a no-op that returns the existing interest.
func (s *InterestService) ExpressInterest(ctx context.Context, userID string, requestID uuid.UUID) (*models.Interest, bool, error) {
	consumer, err := s.profiles.RequireRole(ctx, userID, models.ProfileRoleConsumer)
	if err != nil {
		return nil, false, err
	}

	view, err := s.appraisals.GetAppraisal(ctx, requestID)
	if err != nil {
		return nil, false, err
	}
	if view.Status != models.AppraisalStatusCompleted {
		return nil, false, invalid("request_id", "item has not been appraised yet")
	}
	if view.Request.UserID != nil && *view.Request.UserID == userID {
		return nil, false, invalid("request_id", "cannot express interest in your own item")
	}

	interest := &models.Interest{
		UserID:    userID,
		RequestID: requestID,
	}

	// Use FirstOrCreate to avoid duplicates
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND request_id = ?", userID, requestID).
		FirstOrCreate(interest)
	if res.Error != nil {
		logger.Error("InterestService: Failed to record interest: %v", res.Error)
		return nil, false, res.Error
	}
	created := res.RowsAffected > 0

	if created && s.notifications != nil {
		_ = s.notifications.NotifyNewInterest(ctx, &view.Request, consumer.DisplayName)
	}

	return interest, created, nil
}

// RemoveInterest deletes one of the caller's interests
func (s *InterestService) RemoveInterest(ctx context.Context, userID string, interestID uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", interestID, userID).
		Delete(&models.Interest{})

	if res.Error != nil {
		logger.Error("InterestService: Failed to remove interest: %v", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMine returns a consumer's interests with the appraised request, newest first
func (s *InterestService) ListMine(ctx context.Context, userID string) ([]models.Interest, error) {
	if _, err := s.profiles.RequireRole(ctx, userID, models.ProfileRoleConsumer); err != nil {
		return nil, err
	}

	var interests []models.Interest
	err := s.db.WithContext(ctx).
		Preload("Request").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&interests).Error
	if err != nil {
		return nil, err
	}
	return interests, nil
}

// ListReceived returns interests in requests owned by collectorID, with the
// interested consumer's display name and contact links.
func (s *InterestService) ListReceived(ctx context.Context, collectorID string) ([]models.InterestDetail, error) {
	if _, err := s.profiles.RequireRole(ctx, collectorID, models.ProfileRoleCollector); err != nil {
		return nil, err
	}

	var interests []models.Interest
	err := s.db.WithContext(ctx).
		Preload("Request").
		Joins("JOIN appraisal_requests ar ON ar.id = interests.request_id").
		Where("ar.user_id = ?", collectorID).
		Order("interests.created_at DESC").
		Find(&interests).Error
	if err != nil {
		return nil, fmt.Errorf("list received interests: %w", err)
	}

	userIDs := make([]string, 0, len(interests))
	for _, i := range interests {
		userIDs = append(userIDs, i.UserID)
	}
	profiles, err := s.profiles.GetProfiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	details := make([]models.InterestDetail, 0, len(interests))
	for _, i := range interests {
		d := models.InterestDetail{Interest: i, ConsumerLinks: []models.ContactLink{}}
		if p, ok := profiles[i.UserID]; ok {
			d.ConsumerName = p.DisplayName
			if len(p.ContactLinks) > 0 {
				d.ConsumerLinks = p.ContactLinks
			}
		}
		details = append(details, d)
	}
	return details, nil
}

// IsInterested checks whether the caller already flagged a request
func (s *InterestService) IsInterested(ctx context.Context, userID string, requestID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Interest{}).
		Where("user_id = ? AND request_id = ?", userID, requestID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check interest: %w", err)
	}
	return count > 0, nil
}
