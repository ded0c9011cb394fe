/**
 * @description
 * Transaction Service for escrow-style deals on appraised items.
 * A consumer opens a transaction against a completed appraisal; both parties
 * then advance it along the escrow chain.
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

// TransactionService handles transaction operations
type TransactionService struct {
	db            *gorm.DB
	appraisals    *AppraisalService
	notifications *NotificationService
}

// NewTransactionService creates a new TransactionService. notifications may be nil.
func NewTransactionService(db *gorm.DB, appraisals *AppraisalService, notifications *NotificationService) *TransactionService {
	return &TransactionService{
		db:            db,
		appraisals:    appraisals,
		notifications: notifications,
	}
}

// OpenTransactionInput opens a deal. ItemValue defaults to the appraised value.
type OpenTransactionInput struct {
	RequestID uuid.UUID        `json:"request_id"`
	ItemValue *decimal.Decimal `json:"item_value"`
}

// UpdateStatusInput advances a transaction
type UpdateStatusInput struct {
	Status          models.TransactionStatus `json:"status"`
	ShippingCarrier string                   `json:"shipping_carrier"`
	TrackingNumber  string                   `json:"tracking_number"`
}

// Open creates a Pending Escrow transaction with the caller as buyer
func (s *TransactionService) Open(ctx context.Context, buyerID string, in OpenTransactionInput) (*models.Transaction, error) {
	if in.RequestID == uuid.Nil {
		return nil, invalid("request_id", "is required")
	}

	view, err := s.appraisals.GetAppraisal(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if view.Status != models.AppraisalStatusCompleted || view.Result == nil {
		return nil, invalid("request_id", "item has not been appraised yet")
	}
	if view.Request.UserID == nil {
		return nil, invalid("request_id", "item has no owner to transact with")
	}
	sellerID := *view.Request.UserID
	if sellerID == buyerID {
		return nil, invalid("request_id", "cannot buy your own item")
	}

	value := decimal.NewFromFloat(view.Result.AppraisedValue)
	if in.ItemValue != nil {
		if in.ItemValue.IsNegative() || in.ItemValue.IsZero() {
			return nil, invalid("item_value", "must be positive")
		}
		value = *in.ItemValue
	}

	tx := &models.Transaction{
		RequestID: in.RequestID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		ItemValue: value.Round(2),
		Currency:  view.Result.Currency,
		Status:    models.TransactionStatusPendingEscrow,
	}
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		logger.Error("TransactionService: Failed to open transaction: %v", err)
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.notify(ctx, sellerID, tx)
	return tx, nil
}

// ListForUser returns transactions where the caller is buyer or seller
func (s *TransactionService) ListForUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Preload("Request").
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// Get returns a transaction visible to the caller
func (s *TransactionService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.WithContext(ctx).Preload("Request").Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if tx.BuyerID != userID && tx.SellerID != userID {
		return nil, ErrNotFound
	}
	return &tx, nil
}

// UpdateStatus moves a transaction one step along the escrow chain.
// Payment confirmation is the buyer's; shipping is the seller's; delivery and
// completion are the buyer's; either party may cancel.
func (s *TransactionService) UpdateStatus(ctx context.Context, userID string, id uuid.UUID, in UpdateStatusInput) (*models.Transaction, error) {
	var updated models.Transaction

	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var tx models.Transaction
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&tx).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if tx.BuyerID != userID && tx.SellerID != userID {
			return ErrNotFound
		}
		if !tx.Status.CanTransitionTo(in.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tx.Status, in.Status)
		}
		if !allowedActor(tx, userID, in.Status) {
			return ErrForbidden
		}

		updates := map[string]interface{}{"status": in.Status}
		if in.Status == models.TransactionStatusShipped {
			if strings.TrimSpace(in.TrackingNumber) == "" {
				return invalid("tracking_number", "is required when shipping")
			}
			updates["shipping_carrier"] = strings.TrimSpace(in.ShippingCarrier)
			updates["tracking_number"] = strings.TrimSpace(in.TrackingNumber)
		}

		if err := db.Model(&tx).Updates(updates).Error; err != nil {
			return err
		}
		updated = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated.Status = in.Status
	counterparty := updated.BuyerID
	if userID == updated.BuyerID {
		counterparty = updated.SellerID
	}
	s.notify(ctx, counterparty, &updated)

	return &updated, nil
}

func allowedActor(tx models.Transaction, userID string, next models.TransactionStatus) bool {
	switch next {
	case models.TransactionStatusCancelled:
		return true
	case models.TransactionStatusShipped:
		return userID == tx.SellerID
	default:
		return userID == tx.BuyerID
	}
}

func (s *TransactionService) notify(ctx context.Context, userID string, tx *models.Transaction) {
	if s.notifications == nil {
		return
	}
	_ = s.notifications.NotifyTransactionUpdate(ctx, userID, tx)
}
