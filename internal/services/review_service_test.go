package services

import (
	"context"
	"errors"
	"testing"

	"github.com/curio-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newReviewFixture(t *testing.T) (*fixture, *ReviewService) {
	t.Helper()
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"ada", "grace"} {
		if _, err := f.profiles.UpsertProfile(ctx, id, ProfileInput{Role: models.ProfileRoleCollector, LookingFor: "watches"}); err != nil {
			t.Fatalf("collector profile %s: %v", id, err)
		}
	}
	if _, err := f.profiles.UpsertProfile(ctx, "buyer", ProfileInput{Role: models.ProfileRoleConsumer}); err != nil {
		t.Fatalf("consumer profile: %v", err)
	}
	return f, NewReviewService(f.db, f.appraisals, f.profiles, f.notifications)
}

func goodReview() ReviewInput {
	return ReviewInput{
		History:        "Made in Geneva around 1910",
		Quality:        "Very good",
		EstimatedValue: decimal.RequireFromString("420.555"),
		Currency:       "chf",
		Notes:          "Crystal replaced",
	}
}

func queueIDs(views []models.AppraisalView) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(views))
	for _, v := range views {
		out[v.Request.ID] = true
	}
	return out
}

func TestReviewQueue(t *testing.T) {
	f, reviews := newReviewFixture(t)
	ctx := context.Background()

	waiting := f.appraised(t, "owner")
	pending := f.submit(t, "")
	own := f.appraised(t, "ada")
	failed := f.submit(t, "owner")
	if _, err := f.appraisals.MarkFailed(ctx, failed.ID, "scorer down"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	reviewed := f.appraised(t, "owner")
	if _, _, err := reviews.SubmitReview(ctx, "grace", reviewed.ID, goodReview()); err != nil {
		t.Fatalf("seed review: %v", err)
	}

	queue, err := reviews.ListPending(ctx, "ada", 0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	ids := queueIDs(queue)
	if len(ids) != 2 || !ids[waiting.ID] || !ids[pending.ID] {
		t.Fatalf("queue = %v, want only the unreviewed items of others", ids)
	}
	if ids[own.ID] || ids[failed.ID] || ids[reviewed.ID] {
		t.Fatalf("queue contains own, failed or reviewed item: %v", ids)
	}
	if queue[0].Request.ID != waiting.ID {
		t.Fatalf("queue should be oldest first, got %s", queue[0].Request.ID)
	}

	for _, user := range []string{"buyer", "nobody"} {
		if _, err := reviews.ListPending(ctx, user, 10); !errors.Is(err, ErrForbidden) {
			t.Fatalf("list pending as %s: err = %v, want forbidden", user, err)
		}
	}
}

func TestSubmitReview(t *testing.T) {
	f, reviews := newReviewFixture(t)
	ctx := context.Background()
	item := f.appraised(t, "owner")

	review, created, err := reviews.SubmitReview(ctx, "ada", item.ID, goodReview())
	if err != nil || !created {
		t.Fatalf("submit: created=%v err=%v", created, err)
	}
	if review.Currency != "CHF" || !review.EstimatedValue.Equal(decimal.RequireFromString("420.56")) {
		t.Fatalf("review = %+v", review)
	}

	revised := goodReview()
	revised.Quality = "Excellent"
	again, created, err := reviews.SubmitReview(ctx, "ada", item.ID, revised)
	if err != nil || created || again.ID != review.ID {
		t.Fatalf("revise: created=%v id=%s err=%v", created, again.ID, err)
	}

	if _, _, err := reviews.SubmitReview(ctx, "grace", item.ID, goodReview()); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("second collector: err = %v, want already reviewed", err)
	}

	stored, err := reviews.GetReview(ctx, item.ID)
	if err != nil {
		t.Fatalf("get review: %v", err)
	}
	if stored.ReviewerID != "ada" || stored.Quality != "Excellent" {
		t.Fatalf("stored review = %+v", stored)
	}

	// The computed result is untouched
	if _, err := f.appraisals.GetResult(ctx, item.ID); err != nil {
		t.Fatalf("get result: %v", err)
	}

	notes, _ := f.notifications.GetNotifications(ctx, "owner", 10, 0)
	var reviewNotes int
	for _, n := range notes {
		if n.Type == models.NotificationTypeCollectorReview {
			reviewNotes++
		}
	}
	if reviewNotes != 1 {
		t.Fatalf("owner got %d review notifications, want 1", reviewNotes)
	}
}

func TestSubmitReviewRejections(t *testing.T) {
	f, reviews := newReviewFixture(t)
	ctx := context.Background()

	item := f.appraised(t, "owner")
	own := f.appraised(t, "ada")
	failed := f.submit(t, "owner")
	if _, err := f.appraisals.MarkFailed(ctx, failed.ID, "scorer down"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if _, _, err := reviews.SubmitReview(ctx, "buyer", item.ID, goodReview()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("consumer review: err = %v, want forbidden", err)
	}
	if _, _, err := reviews.SubmitReview(ctx, "ada", own.ID, goodReview()); !errors.Is(err, ErrValidation) {
		t.Fatalf("own item: err = %v, want validation", err)
	}
	if _, _, err := reviews.SubmitReview(ctx, "ada", failed.ID, goodReview()); !errors.Is(err, ErrValidation) {
		t.Fatalf("failed item: err = %v, want validation", err)
	}
	if _, _, err := reviews.SubmitReview(ctx, "ada", uuid.New(), goodReview()); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("unknown item: err = %v, want not found", err)
	}

	bad := goodReview()
	bad.Quality = " "
	if _, _, err := reviews.SubmitReview(ctx, "ada", item.ID, bad); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing quality: err = %v", err)
	}
	bad = goodReview()
	bad.EstimatedValue = decimal.NewFromInt(-1)
	if _, _, err := reviews.SubmitReview(ctx, "ada", item.ID, bad); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative value: err = %v", err)
	}

	if _, err := reviews.GetReview(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get review: err = %v, want not found", err)
	}
}
