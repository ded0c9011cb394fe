/**
 * @description
 * Appraisal API Handlers.
 * Submission, status and result reads, browsing, and a one-shot SSE stream
 * that delivers a request's result as soon as it is stored.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/curio-market/backend/internal/api/middleware"
	"github.com/curio-market/backend/internal/models"
	"github.com/curio-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

const (
	streamKeepAlive   = 15 * time.Second
	streamMaxLifetime = 10 * time.Minute
)

// AppraisalHandler handles appraisal request endpoints
type AppraisalHandler struct {
	appraisals *services.AppraisalService
	interests  *services.InterestService
	reviews    *services.ReviewService
	hub        *services.ResultStreamHub

	keepAlive   time.Duration
	maxLifetime time.Duration
}

// NewAppraisalHandler creates a new AppraisalHandler. interests and reviews
// may be nil, which leaves those fields out of the appraisal view; a nil hub
// disables the stream endpoint.
func NewAppraisalHandler(appraisals *services.AppraisalService, interests *services.InterestService, reviews *services.ReviewService, hub *services.ResultStreamHub) *AppraisalHandler {
	return &AppraisalHandler{
		appraisals:  appraisals,
		interests:   interests,
		reviews:     reviews,
		hub:         hub,
		keepAlive:   streamKeepAlive,
		maxLifetime: streamMaxLifetime,
	}
}

// Submit stores a new appraisal request for the caller
// POST /api/v1/appraisals
func (h *AppraisalHandler) Submit(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	var in services.SubmitInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	req, err := h.appraisals.Submit(c.UserContext(), &userID, in)
	if err != nil {
		return respondError(c, err, "Failed to submit appraisal request")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"request": req})
}

// GetAppraisal returns a request joined with its result, the collector
// review if there is one, and for a signed-in caller whether they flagged it
// GET /api/v1/appraisals/:id
func (h *AppraisalHandler) GetAppraisal(c *fiber.Ctx) error {
	id, ok, err := parseIDParam(c, "id")
	if !ok {
		return err
	}
	ctx := c.UserContext()

	view, err := h.appraisals.GetAppraisal(ctx, id)
	if err != nil {
		return respondError(c, err, "Failed to fetch appraisal")
	}
	resp := fiber.Map{
		"request": view.Request,
		"status":  view.Status,
		"result":  view.Result,
		"display": view.Display(),
	}

	if h.reviews != nil {
		review, err := h.reviews.GetReview(ctx, id)
		switch {
		case err == nil:
			resp["review"] = review
		case !errors.Is(err, services.ErrNotFound):
			return respondError(c, err, "Failed to fetch appraisal")
		}
	}

	if userID, err := middleware.GetUserID(c); err == nil && h.interests != nil {
		interested, err := h.interests.IsInterested(ctx, userID, id)
		if err != nil {
			return respondError(c, err, "Failed to fetch appraisal")
		}
		resp["interested"] = interested
	}

	return c.JSON(resp)
}

// GetResult returns the result for a request, or its pending/failed state
// GET /api/v1/appraisals/:id/result
func (h *AppraisalHandler) GetResult(c *fiber.Ctx) error {
	id, ok, err := parseIDParam(c, "id")
	if !ok {
		return err
	}

	result, err := h.appraisals.GetResult(c.UserContext(), id)
	var failed *services.AppraisalFailedError
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"result": result})
	case errors.Is(err, services.ErrResultPending):
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": models.AppraisalStatusPending})
	case errors.As(err, &failed):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"status": models.AppraisalStatusFailed,
			"error":  failed.Reason,
		})
	default:
		return respondError(c, err, "Failed to fetch appraisal result")
	}
}

// ListMine returns the caller's requests, newest first
// GET /api/v1/appraisals/mine
func (h *AppraisalHandler) ListMine(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	views, err := h.appraisals.ListByUser(c.UserContext(), userID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, err, "Failed to fetch appraisals")
	}
	return c.JSON(views)
}

// Browse returns completed appraisals for consumers
// GET /api/v1/appraisals/browse
func (h *AppraisalHandler) Browse(c *fiber.Ctx) error {
	views, err := h.appraisals.ListCompleted(c.UserContext(), services.BrowseParams{
		Category: c.Query("category"),
		Limit:    c.QueryInt("limit", 50),
		Offset:   c.QueryInt("offset", 0),
	})
	if err != nil {
		return respondError(c, err, "Failed to browse appraisals")
	}
	return c.JSON(views)
}

// StreamResult sends one SSE event once the request reaches a terminal
// status, then closes the stream.
// GET /api/v1/appraisals/:id/stream
func (h *AppraisalHandler) StreamResult(c *fiber.Ctx) error {
	if h.hub == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Result streaming unavailable"})
	}
	id, ok, err := parseIDParam(c, "id")
	if !ok {
		return err
	}

	// Subscribe before reading the current state so a result stored in between is not missed
	events, unsubscribe := h.hub.Subscribe(id)

	view, err := h.appraisals.GetAppraisal(c.UserContext(), id)
	if err != nil {
		unsubscribe()
		return respondError(c, err, "Failed to fetch appraisal")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	requestCtx := c.Context()
	keepAlive, maxLifetime := h.keepAlive, h.maxLifetime

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		if view.Status != models.AppraisalStatusPending {
			writeResultEvent(w, services.ResultEvent{
				RequestID: view.Request.ID,
				Status:    view.Status,
				Result:    view.Result,
				Error:     failureText(view.Request),
			})
			return
		}

		// An initial comment flushes headers so clients see the stream open
		fmt.Fprint(w, ": waiting\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		deadline := time.NewTimer(maxLifetime)
		defer deadline.Stop()

		for {
			select {
			case <-requestCtx.Done():
				return
			case <-deadline.C:
				return
			case event := <-events:
				writeResultEvent(w, event)
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keepalive\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}

func writeResultEvent(w *bufio.Writer, event services.ResultEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Status, payload)
	_ = w.Flush()
}

func failureText(req models.AppraisalRequest) string {
	if req.Status != models.AppraisalStatusFailed || req.FailureReason == nil {
		return ""
	}
	return *req.FailureReason
}

