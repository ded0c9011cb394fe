/**
 * @description
 * Appraisal Processor.
 * Invoked once per request-created event (at least once). Scores the request
 * and stores exactly one result; repeated invocations return the stored result.
 *
 * @dependencies
 * - gorm.io/gorm (clause.OnConflict)
 * - github.com/redis/go-redis/v9
 * - backend/internal/models
 *
 * @notes
 * - The unique index on appraisal_results.request_id is the idempotency guard.
 * - The processor never retries; redelivery is the caller's concern.
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/metrics"
	"github.com/curio-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppraisalProcessor turns requests into stored results
type AppraisalProcessor struct {
	db            *gorm.DB
	redis         *redis.Client
	scorer        *Scorer
	notifications *NotificationService
	cacheTTL      time.Duration
	log           logger.Component
}

// ProcessOutcome is the stored result and whether this invocation created it
type ProcessOutcome struct {
	Result  *models.AppraisalResult
	Created bool
}

// NewAppraisalProcessor creates a processor. rdb and notifications may be nil.
func NewAppraisalProcessor(db *gorm.DB, rdb *redis.Client, scorer *Scorer, notifications *NotificationService, cacheTTL time.Duration) *AppraisalProcessor {
	if scorer == nil {
		scorer = NewScorer(nil)
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultResultCacheTTL
	}
	return &AppraisalProcessor{
		db:            db,
		redis:         rdb,
		scorer:        scorer,
		notifications: notifications,
		cacheTTL:      cacheTTL,
		log:           logger.Named("AppraisalProcessor"),
	}
}

// ValidateForProcessing checks the fields scoring depends on
func ValidateForProcessing(req *models.AppraisalRequest) error {
	switch {
	case req == nil:
		return invalid("record", "is required")
	case req.ID == uuid.Nil:
		return invalid("id", "is required")
	case strings.TrimSpace(req.ItemCategory) == "":
		return invalid("item_category", "is required")
	case strings.TrimSpace(req.ItemCondition) == "":
		return invalid("item_condition", "is required")
	}
	return nil
}

// Process stores the result for req. Invoking it again for the same request
// returns the already-stored result with Created=false.
func (p *AppraisalProcessor) Process(ctx context.Context, req *models.AppraisalRequest) (*ProcessOutcome, error) {
	start := time.Now()
	defer func() {
		metrics.AppraisalProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	if err := ValidateForProcessing(req); err != nil {
		metrics.AppraisalResultsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	result := p.scorer.Score(req)

	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoNothing: true,
		}).
		Create(result)

	created := res.Error == nil && res.RowsAffected > 0
	if res.Error != nil && !isUniqueViolation(res.Error) {
		metrics.AppraisalResultsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("insert appraisal result for %s: %w", req.ID, res.Error)
	}

	if !created {
		existing, err := p.storedResult(ctx, req.ID)
		if err != nil {
			metrics.AppraisalResultsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.AppraisalResultsTotal.WithLabelValues("duplicate").Inc()
		p.log.Info("result for %s already stored, skipping", req.ID)
		p.markCompleted(ctx, req.ID)
		return &ProcessOutcome{Result: existing, Created: false}, nil
	}

	metrics.AppraisalResultsTotal.WithLabelValues("created").Inc()
	p.log.Info("stored result for %s (%s, %.0f %s)", req.ID, result.QualityAssessment, result.AppraisedValue, result.Currency)

	p.markCompleted(ctx, req.ID)
	p.announce(ctx, req, result)

	return &ProcessOutcome{Result: result, Created: true}, nil
}

func (p *AppraisalProcessor) storedResult(ctx context.Context, requestID uuid.UUID) (*models.AppraisalResult, error) {
	var existing models.AppraisalResult
	err := p.db.WithContext(ctx).Where("request_id = ?", requestID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("result for %s conflicted but is not readable: %w", requestID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("load stored result for %s: %w", requestID, err)
	}
	return &existing, nil
}

// markCompleted moves the status column forward. Views already treat a stored
// result as completed, so a failure here is only logged.
func (p *AppraisalProcessor) markCompleted(ctx context.Context, requestID uuid.UUID) {
	err := p.db.WithContext(ctx).
		Model(&models.AppraisalRequest{}).
		Where("id = ? AND status <> ?", requestID, models.AppraisalStatusCompleted).
		Updates(map[string]interface{}{
			"status":         models.AppraisalStatusCompleted,
			"failure_reason": nil,
		}).Error
	if err != nil {
		p.log.Error("failed to mark %s completed: %v", requestID, err)
	}
}

// announce caches, publishes and notifies. None of these fail the invocation.
func (p *AppraisalProcessor) announce(ctx context.Context, req *models.AppraisalRequest, result *models.AppraisalResult) {
	if err := setInCache(ctx, p.redis, resultCacheKey(req.ID), result, p.cacheTTL); err != nil {
		p.log.Error("failed to cache result for %s: %v", req.ID, err)
	}

	event := ResultEvent{RequestID: req.ID, Status: models.AppraisalStatusCompleted, Result: result}
	if err := PublishResultEvent(ctx, p.redis, event); err != nil {
		p.log.Error("failed to publish result for %s: %v", req.ID, err)
	}

	if p.notifications != nil {
		_ = p.notifications.NotifyAppraisalReady(ctx, req, result)
	}
}
