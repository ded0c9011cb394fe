/**
 * @description
 * Appraisal database models.
 * Maps to the 'appraisal_requests' and 'appraisal_results' tables in PostgreSQL.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 *
 * @notes
 * - A request is immutable after creation except for Status/FailureReason.
 * - appraisal_results.request_id is UNIQUE: at most one result per request.
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppraisalStatus is the lifecycle status of a request
type AppraisalStatus string

const (
	AppraisalStatusPending   AppraisalStatus = "pending"
	AppraisalStatusCompleted AppraisalStatus = "completed"
	AppraisalStatusFailed    AppraisalStatus = "failed"
)

// DefaultCurrency is used when a result does not specify one
const DefaultCurrency = "USD"

// AppraisalRequest is a submitted item description awaiting appraisal
type AppraisalRequest struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ItemName        string          `gorm:"column:item_name;not null" json:"item_name"`
	ItemCategory    string          `gorm:"column:item_category;not null;index" json:"item_category"`
	ItemDescription string          `gorm:"column:item_description;not null" json:"item_description"`
	ItemHistory     *string         `gorm:"column:item_history" json:"item_history"`
	ItemCondition   string          `gorm:"column:item_condition;not null" json:"item_condition"`
	ImageURL        *string         `gorm:"column:image_url" json:"image_url"`
	AgreedTerms     bool            `gorm:"column:agreed_terms;not null" json:"agreed_terms"`
	UserID          *string         `gorm:"column:user_id;index:idx_appraisal_requests_user" json:"user_id"`
	Status          AppraisalStatus `gorm:"column:status;type:varchar(16);not null;default:'pending';index" json:"status"`
	FailureReason   *string         `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`

	// Associations
	Result *AppraisalResult `gorm:"foreignKey:RequestID" json:"-"`
}

// TableName overrides the table name used by AppraisalRequest
func (AppraisalRequest) TableName() string {
	return "appraisal_requests"
}

// BeforeCreate ensures UUID is generated if not present
func (r *AppraisalRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

// AppraisalResult is the computed appraisal outcome for a request
type AppraisalResult struct {
	ID                   uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID            uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_appraisal_results_request" json:"request_id"`
	AppraisedValue       float64     `gorm:"column:appraised_value;type:numeric;not null" json:"appraised_value"`
	Currency             string      `gorm:"column:currency;type:varchar(3);not null;default:'USD'" json:"currency"`
	QualityAssessment    string      `gorm:"column:quality_assessment;not null" json:"quality_assessment"`
	QualityExplanation   string      `gorm:"column:quality_explanation;not null" json:"quality_explanation"`
	AppraisalMethodology string      `gorm:"column:appraisal_methodology;not null" json:"appraisal_methodology"`
	DataSources          StringArray `gorm:"column:data_sources;not null" json:"data_sources"`
	ExpertInsights       string      `gorm:"column:expert_insights;not null" json:"expert_insights"`
	SellBuyOptions       StringArray `gorm:"column:sell_buy_options;not null" json:"sell_buy_options"`
	CreatedAt            time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// TableName overrides the table name used by AppraisalResult
func (AppraisalResult) TableName() string {
	return "appraisal_results"
}

// BeforeCreate fills the id and the default currency
func (r *AppraisalResult) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
	return
}

// AppraisalView is a request joined with its (optional) result.
// Result is non-nil exactly when Status is AppraisalStatusCompleted.
type AppraisalView struct {
	Request AppraisalRequest `json:"request"`
	Status  AppraisalStatus  `json:"status"`
	Result  *AppraisalResult `json:"result,omitempty"`
}

// Display returns the request fields rendered next to a result
func (v AppraisalView) Display() AppraisalDisplay {
	d := AppraisalDisplay{
		ItemName:        v.Request.ItemName,
		ItemCategory:    v.Request.ItemCategory,
		ItemDescription: v.Request.ItemDescription,
	}
	if v.Request.ImageURL != nil {
		d.ImageURL = *v.Request.ImageURL
	}
	if v.Request.ItemHistory != nil {
		d.ItemHistory = *v.Request.ItemHistory
	}
	return d
}

// AppraisalDisplay carries the request's display fields
type AppraisalDisplay struct {
	ItemName        string `json:"item_name"`
	ItemCategory    string `json:"item_category"`
	ItemDescription string `json:"item_description"`
	ItemHistory     string `json:"item_history,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
}
