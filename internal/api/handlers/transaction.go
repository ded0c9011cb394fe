/**
 * @description
 * Transaction API Handlers.
 * Opens escrow-style transactions on appraised items and advances their status.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"github.com/curio-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// TransactionHandler handles transaction endpoints
type TransactionHandler struct {
	transactionService *services.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(transactionService *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

// OpenTransaction starts a Pending Escrow transaction with the caller as buyer
// POST /api/v1/transactions
func (h *TransactionHandler) OpenTransaction(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	var in services.OpenTransactionInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	tx, err := h.transactionService.Open(c.UserContext(), userID, in)
	if err != nil {
		return respondError(c, err, "Failed to open transaction")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"transaction": tx})
}

// ListTransactions returns transactions where the caller is buyer or seller
// GET /api/v1/transactions
func (h *TransactionHandler) ListTransactions(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	txs, err := h.transactionService.ListForUser(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "Failed to fetch transactions")
	}
	return c.JSON(fiber.Map{"transactions": txs, "count": len(txs)})
}

// GetTransaction returns one transaction visible to the caller
// GET /api/v1/transactions/:id
func (h *TransactionHandler) GetTransaction(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}
	id, ok, err := parseIDParam(c, "id")
	if !ok {
		return err
	}

	tx, err := h.transactionService.Get(c.UserContext(), userID, id)
	if err != nil {
		return respondError(c, err, "Failed to fetch transaction")
	}
	return c.JSON(fiber.Map{"transaction": tx})
}

// UpdateStatus advances a transaction along the escrow chain
// PATCH /api/v1/transactions/:id/status
func (h *TransactionHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}
	id, ok, err := parseIDParam(c, "id")
	if !ok {
		return err
	}

	var in services.UpdateStatusInput
	if err := c.BodyParser(&in); err != nil || in.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status is required"})
	}

	tx, err := h.transactionService.UpdateStatus(c.UserContext(), userID, id, in)
	if err != nil {
		return respondError(c, err, "Failed to update transaction")
	}
	return c.JSON(fiber.Map{"transaction": tx})
}
