/**
 * @description
 * Review Service for the collector appraisal queue.
 * Collectors list submitted items nobody has reviewed yet and attach a manual
 * appraisal (history, quality, estimated value, notes). Reviews live in their
 * own table; computed results are only ever written by the processor.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/shopspring/decimal
 * - backend/internal/models
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReviewService handles collector reviews
type ReviewService struct {
	db            *gorm.DB
	appraisals    *AppraisalService
	profiles      *ProfileService
	notifications *NotificationService
}

// NewReviewService creates a new ReviewService. notifications may be nil.
func NewReviewService(db *gorm.DB, appraisals *AppraisalService, profiles *ProfileService, notifications *NotificationService) *ReviewService {
	return &ReviewService{
		db:            db,
		appraisals:    appraisals,
		profiles:      profiles,
		notifications: notifications,
	}
}

// ReviewInput is a collector's manual appraisal
type ReviewInput struct {
	History        string          `json:"history"`
	Quality        string          `json:"quality"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	Currency       string          `json:"currency"`
	Notes          string          `json:"notes"`
}

// Validate checks the quality, value and currency
func (in ReviewInput) Validate() error {
	if strings.TrimSpace(in.Quality) == "" {
		return invalid("quality", "is required")
	}
	if in.EstimatedValue.IsNegative() {
		return invalid("estimated_value", "must not be negative")
	}
	if c := strings.TrimSpace(in.Currency); c != "" && len(c) != 3 {
		return invalid("currency", "must be a three-letter code")
	}
	return nil
}

// ListPending returns the review queue for a collector: requests that have
// not failed, are not the collector's own, and have no review yet. Oldest first.
func (s *ReviewService) ListPending(ctx context.Context, collectorID string, limit int) ([]models.AppraisalView, error) {
	if _, err := s.profiles.RequireRole(ctx, collectorID, models.ProfileRoleCollector); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var reqs []models.AppraisalRequest
	err := s.db.WithContext(ctx).
		Preload("Result").
		Where("status <> ?", models.AppraisalStatusFailed).
		Where("user_id IS NULL OR user_id <> ?", collectorID).
		Where("NOT EXISTS (SELECT 1 FROM collector_reviews cr WHERE cr.request_id = appraisal_requests.id)").
		Order("created_at ASC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("list review queue: %w", err)
	}
	return newAppraisalViews(reqs), nil
}

// SubmitReview stores the collector's review of a request. The reviewing
// collector may revise it; anyone else gets ErrAlreadyReviewed.
// The bool reports whether a new review was created.
func (s *ReviewService) SubmitReview(ctx context.Context, collectorID string, requestID uuid.UUID, in ReviewInput) (*models.CollectorReview, bool, error) {
	if _, err := s.profiles.RequireRole(ctx, collectorID, models.ProfileRoleCollector); err != nil {
		return nil, false, err
	}
	if err := in.Validate(); err != nil {
		return nil, false, err
	}

	req, err := s.appraisals.GetRequest(ctx, requestID)
	if err != nil {
		return nil, false, err
	}
	if req.UserID != nil && *req.UserID == collectorID {
		return nil, false, invalid("request_id", "cannot review your own item")
	}
	if req.Status == models.AppraisalStatusFailed {
		return nil, false, invalid("request_id", "appraisal of this item failed")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}
	review := models.CollectorReview{
		RequestID:      requestID,
		ReviewerID:     collectorID,
		History:        strings.TrimSpace(in.History),
		Quality:        strings.TrimSpace(in.Quality),
		EstimatedValue: in.EstimatedValue.Round(2),
		Currency:       currency,
		Notes:          strings.TrimSpace(in.Notes),
	}

	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CollectorReview
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("request_id = ?", requestID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			return tx.Create(&review).Error
		case err != nil:
			return err
		case existing.ReviewerID != collectorID:
			return ErrAlreadyReviewed
		}

		review.ID = existing.ID
		review.CreatedAt = existing.CreatedAt
		return tx.Save(&review).Error
	})
	if isUniqueViolation(err) {
		// Another collector won the race for the same item
		return nil, false, ErrAlreadyReviewed
	}
	if err != nil {
		if !errors.Is(err, ErrAlreadyReviewed) {
			logger.Error("ReviewService: Failed to store review for %s: %v", requestID, err)
		}
		return nil, false, err
	}

	if created && s.notifications != nil {
		_ = s.notifications.NotifyCollectorReview(ctx, req, &review)
	}
	return &review, created, nil
}

// GetReview returns the review attached to a request, or ErrNotFound
func (s *ReviewService) GetReview(ctx context.Context, requestID uuid.UUID) (*models.CollectorReview, error) {
	var review models.CollectorReview
	err := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&review).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load review for %s: %w", requestID, err)
	}
	return &review, nil
}
