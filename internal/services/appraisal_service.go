/**
 * @description
 * Appraisal Service: the request and result stores.
 * Accepts submissions, enqueues them for processing and serves status,
 * result and joined views. Results are immutable, so they are cached in Redis.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/redis/go-redis/v9
 * - backend/internal/models
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
)

// DefaultResultCacheTTL applies when no TTL is configured
const DefaultResultCacheTTL = 30 * time.Minute

// AppraisalService handles request submission and result reads
type AppraisalService struct {
	db       *gorm.DB
	redis    *redis.Client
	queue    *TriggerQueue
	cacheTTL time.Duration
	log      logger.Component
}

// NewAppraisalService creates a new AppraisalService. queue may be nil, in which
// case submitted requests are only picked up by the requeue job.
func NewAppraisalService(db *gorm.DB, rdb *redis.Client, queue *TriggerQueue, cacheTTL time.Duration) *AppraisalService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultResultCacheTTL
	}
	return &AppraisalService{
		db:       db,
		redis:    rdb,
		queue:    queue,
		cacheTTL: cacheTTL,
		log:      logger.Named("AppraisalService"),
	}
}

// SubmitInput is the user-supplied part of an appraisal request
type SubmitInput struct {
	ItemName        string  `json:"item_name"`
	ItemCategory    string  `json:"item_category"`
	ItemDescription string  `json:"item_description"`
	ItemHistory     *string `json:"item_history"`
	ItemCondition   string  `json:"item_condition"`
	ImageURL        *string `json:"image_url"`
	AgreedTerms     bool    `json:"agreed_terms"`
}

// Validate checks required fields and the terms agreement
func (in SubmitInput) Validate() error {
	switch {
	case strings.TrimSpace(in.ItemName) == "":
		return invalid("item_name", "is required")
	case strings.TrimSpace(in.ItemCategory) == "":
		return invalid("item_category", "is required")
	case strings.TrimSpace(in.ItemDescription) == "":
		return invalid("item_description", "is required")
	case strings.TrimSpace(in.ItemCondition) == "":
		return invalid("item_condition", "is required")
	case !in.AgreedTerms:
		return invalid("agreed_terms", "terms must be accepted")
	}
	return nil
}

func resultCacheKey(requestID uuid.UUID) string {
	return fmt.Sprintf("appraisal:result:%s", requestID)
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// Submit validates and stores a new pending request, then enqueues it.
// An enqueue failure is logged; the row stays pending for the requeue job.
func (s *AppraisalService) Submit(ctx context.Context, userID *string, in SubmitInput) (*models.AppraisalRequest, error) {
	if err := in.Validate(); err != nil {
		metrics.AppraisalsRejectedTotal.Inc()
		return nil, err
	}

	req := &models.AppraisalRequest{
		ItemName:        strings.TrimSpace(in.ItemName),
		ItemCategory:    strings.TrimSpace(in.ItemCategory),
		ItemDescription: strings.TrimSpace(in.ItemDescription),
		ItemHistory:     emptyToNil(in.ItemHistory),
		ItemCondition:   strings.TrimSpace(in.ItemCondition),
		ImageURL:        emptyToNil(in.ImageURL),
		AgreedTerms:     in.AgreedTerms,
		UserID:          emptyToNil(userID),
		Status:          models.AppraisalStatusPending,
	}

	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, fmt.Errorf("insert appraisal request: %w", err)
	}
	metrics.AppraisalsSubmittedTotal.Inc()

	if s.queue != nil {
		if _, err := s.queue.Enqueue(ctx, req); err != nil {
			s.log.Error("request %s stored but not enqueued: %v", req.ID, err)
		}
	}

	return req, nil
}

// GetRequest returns a request by id
func (s *AppraisalService) GetRequest(ctx context.Context, id uuid.UUID) (*models.AppraisalRequest, error) {
	var req models.AppraisalRequest
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load appraisal request %s: %w", id, err)
	}
	return &req, nil
}

// GetResult returns the result for a request.
// Errors: ErrResultPending while processing is outstanding, ErrRequestNotFound
// for an unknown request, *AppraisalFailedError once the worker gave up.
func (s *AppraisalService) GetResult(ctx context.Context, requestID uuid.UUID) (*models.AppraisalResult, error) {
	key := resultCacheKey(requestID)
	cached, err := getFromCache[models.AppraisalResult](ctx, s.redis, key)
	if err != nil {
		s.log.Error("cache error: %v", err)
	}
	if cached != nil {
		metrics.ResultCacheHitsTotal.Inc()
		return cached, nil
	}

	var result models.AppraisalResult
	err = s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&result).Error
	if err == nil {
		if err := setInCache(ctx, s.redis, key, &result, s.cacheTTL); err != nil {
			s.log.Error("failed to cache result: %v", err)
		}
		return &result, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load appraisal result %s: %w", requestID, err)
	}

	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == models.AppraisalStatusFailed {
		return nil, &AppraisalFailedError{RequestID: req.ID, Reason: failureReason(req)}
	}
	return nil, ErrResultPending
}

func failureReason(req *models.AppraisalRequest) string {
	if req.FailureReason != nil && *req.FailureReason != "" {
		return *req.FailureReason
	}
	return "processing failed"
}

// GetAppraisal returns a request joined with its result, if any
func (s *AppraisalService) GetAppraisal(ctx context.Context, id uuid.UUID) (*models.AppraisalView, error) {
	var req models.AppraisalRequest
	err := s.db.WithContext(ctx).Preload("Result").Where("id = ?", id).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load appraisal %s: %w", id, err)
	}
	view := newAppraisalView(req)
	return &view, nil
}

// newAppraisalView is the one place a request row and its optional result are
// turned into a view. A stored result always wins over the status column,
// which may lag behind it.
func newAppraisalView(req models.AppraisalRequest) models.AppraisalView {
	result := req.Result
	req.Result = nil

	view := models.AppraisalView{Request: req}
	switch {
	case result != nil:
		view.Status = models.AppraisalStatusCompleted
		view.Result = result
	case req.Status == models.AppraisalStatusFailed:
		view.Status = models.AppraisalStatusFailed
	default:
		view.Status = models.AppraisalStatusPending
	}
	view.Request.Status = view.Status
	return view
}

func newAppraisalViews(reqs []models.AppraisalRequest) []models.AppraisalView {
	views := make([]models.AppraisalView, 0, len(reqs))
	for _, r := range reqs {
		views = append(views, newAppraisalView(r))
	}
	return views
}

// ListByUser returns the caller's requests, newest first
func (s *AppraisalService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.AppraisalView, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var reqs []models.AppraisalRequest
	err := s.db.WithContext(ctx).
		Preload("Result").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("list appraisals for %s: %w", userID, err)
	}
	return newAppraisalViews(reqs), nil
}

// BrowseParams filters the public listing of completed appraisals
type BrowseParams struct {
	Category string
	Limit    int
	Offset   int
}

// ListCompleted returns appraised requests, newest first
func (s *AppraisalService) ListCompleted(ctx context.Context, params BrowseParams) ([]models.AppraisalView, error) {
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 50
	}

	query := s.db.WithContext(ctx).
		Preload("Result").
		Where("EXISTS (SELECT 1 FROM appraisal_results r WHERE r.request_id = appraisal_requests.id)")
	if params.Category != "" {
		query = query.Where("item_category = ?", params.Category)
	}

	var reqs []models.AppraisalRequest
	err := query.
		Order("created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("list completed appraisals: %w", err)
	}
	return newAppraisalViews(reqs), nil
}

// MarkFailed records that processing of a pending request was abandoned.
// It reports false when the request was no longer pending.
func (s *AppraisalService) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.AppraisalRequest{}).
		Where("id = ? AND status = ?", id, models.AppraisalStatusPending).
		Updates(map[string]interface{}{
			"status":         models.AppraisalStatusFailed,
			"failure_reason": reason,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark appraisal %s failed: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	metrics.AppraisalsFailedTotal.Inc()
	event := ResultEvent{RequestID: id, Status: models.AppraisalStatusFailed, Error: reason}
	if err := PublishResultEvent(ctx, s.redis, event); err != nil {
		s.log.Error("failed to publish failure of %s: %v", id, err)
	}
	return true, nil
}

// ListStalePending returns pending requests without a result that are older than olderThan
func (s *AppraisalService) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.AppraisalRequest, error) {
	if limit <= 0 {
		limit = 500
	}
	cutoff := time.Now().Add(-olderThan)

	var reqs []models.AppraisalRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.AppraisalStatusPending, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM appraisal_results r WHERE r.request_id = appraisal_requests.id)").
		Order("created_at ASC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("list stale pending appraisals: %w", err)
	}
	return reqs, nil
}

// Requeue re-enqueues requests. Returns the number successfully enqueued.
func (s *AppraisalService) Requeue(ctx context.Context, reqs []models.AppraisalRequest) (int, error) {
	if s.queue == nil {
		return 0, errors.New("no trigger queue configured")
	}
	n := 0
	for i := range reqs {
		if _, err := s.queue.Enqueue(ctx, &reqs[i]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
