/**
 * @description
 * Marketplace activity models.
 * Maps to interests, transactions and notifications tables.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 * - github.com/shopspring/decimal
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Interest records a consumer's interest in an appraised item
type Interest struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;not null;uniqueIndex:idx_interests_user_request,priority:1" json:"user_id"`
	RequestID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_interests_user_request,priority:2" json:"request_id"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	Request *AppraisalRequest `gorm:"foreignKey:RequestID" json:"appraisal,omitempty"`
}

func (Interest) TableName() string {
	return "interests"
}

func (i *Interest) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return
}

// InterestDetail extends Interest with the interested consumer's profile,
// as shown to the collector who owns the item.
type InterestDetail struct {
	Interest
	ConsumerName  string        `json:"consumer_name"`
	ConsumerLinks []ContactLink `json:"consumer_contact_links"`
}

// TransactionStatus is the escrow state of a transaction
type TransactionStatus string

const (
	TransactionStatusPendingEscrow    TransactionStatus = "Pending Escrow"
	TransactionStatusPaymentConfirmed TransactionStatus = "Payment Confirmed"
	TransactionStatusShipped          TransactionStatus = "Shipped"
	TransactionStatusDelivered        TransactionStatus = "Delivered"
	TransactionStatusCompleted        TransactionStatus = "Completed"
	TransactionStatusCancelled        TransactionStatus = "Cancelled"
)

// transactionFlow is the forward-only escrow chain
var transactionFlow = []TransactionStatus{
	TransactionStatusPendingEscrow,
	TransactionStatusPaymentConfirmed,
	TransactionStatusShipped,
	TransactionStatusDelivered,
	TransactionStatusCompleted,
}

// Terminal reports whether no further transition is possible
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusCancelled
}

// CanTransitionTo reports whether next directly follows s in the escrow chain,
// or is a cancellation of a non-terminal transaction.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == TransactionStatusCancelled {
		return true
	}
	for i := 0; i < len(transactionFlow)-1; i++ {
		if transactionFlow[i] == s {
			return transactionFlow[i+1] == next
		}
	}
	return false
}

// Transaction is an escrow-style deal for an appraised item
type Transaction struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID       uuid.UUID         `gorm:"type:uuid;not null;index" json:"request_id"`
	BuyerID         string            `gorm:"column:buyer_id;not null;index:idx_transactions_buyer" json:"buyer_id"`
	SellerID        string            `gorm:"column:seller_id;not null;index:idx_transactions_seller" json:"seller_id"`
	ItemValue       decimal.Decimal   `gorm:"column:item_value;type:numeric(14,2);not null" json:"item_value"`
	Currency        string            `gorm:"column:currency;type:varchar(3);not null;default:'USD'" json:"currency"`
	Status          TransactionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	ShippingCarrier string            `gorm:"column:shipping_carrier" json:"shipping_carrier,omitempty"`
	TrackingNumber  string            `gorm:"column:tracking_number" json:"tracking_number,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Associations
	Request *AppraisalRequest `gorm:"foreignKey:RequestID" json:"appraisal,omitempty"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Currency == "" {
		t.Currency = DefaultCurrency
	}
	return
}

// NotificationType defines types of notifications
type NotificationType string

const (
	NotificationTypeAppraisalReady  NotificationType = "APPRAISAL_READY"
	NotificationTypeAppraisalFailed NotificationType = "APPRAISAL_FAILED"
	NotificationTypeNewInterest     NotificationType = "NEW_INTEREST"
	NotificationTypeTransaction     NotificationType = "TRANSACTION_UPDATE"
	NotificationTypeCollectorReview NotificationType = "COLLECTOR_REVIEW"
)

// Notification stores user-facing alerts
type Notification struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string           `gorm:"column:user_id;not null;index" json:"user_id"`
	Type      NotificationType `gorm:"size:32;not null" json:"type"`
	Title     string           `gorm:"size:255;not null" json:"title"`
	Message   string           `json:"message"`
	RequestID *uuid.UUID       `gorm:"type:uuid" json:"request_id,omitempty"`
	Read      bool             `gorm:"default:false" json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return
}
