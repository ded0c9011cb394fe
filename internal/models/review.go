/**
 * @description
 * Collector review model.
 * Maps to the 'collector_reviews' table: a collector's manual appraisal of a
 * submitted item, kept apart from the computed appraisal result.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/shopspring/decimal
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CollectorReview is one collector's appraisal notes for a request.
// A request has at most one review.
type CollectorReview struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_collector_reviews_request" json:"request_id"`
	ReviewerID     string          `gorm:"column:reviewer_id;not null;index" json:"reviewer_id"`
	History        string          `gorm:"column:history" json:"history"`
	Quality        string          `gorm:"column:quality;not null" json:"quality"`
	EstimatedValue decimal.Decimal `gorm:"column:estimated_value;type:numeric(14,2);not null" json:"estimated_value"`
	Currency       string          `gorm:"column:currency;type:varchar(3);not null;default:'USD'" json:"currency"`
	Notes          string          `gorm:"column:notes" json:"notes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CollectorReview) TableName() string {
	return "collector_reviews"
}

func (r *CollectorReview) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
	return
}
