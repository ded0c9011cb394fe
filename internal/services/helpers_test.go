package services

import (
	"context"
	"math/rand/v2"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/curio-market/backend/internal/models"
	"github.com/curio-market/backend/internal/testutil"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type fixture struct {
	db            *gorm.DB
	redis         *redis.Client
	mr            *miniredis.Miniredis
	queue         *TriggerQueue
	notifications *NotificationService
	appraisals    *AppraisalService
	processor     *AppraisalProcessor
	profiles      *ProfileService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	rdb, mr := testutil.Redis(t)

	f := &fixture{db: db, redis: rdb, mr: mr}
	f.queue = NewTriggerQueue(rdb)
	f.notifications = NewNotificationService(db)
	f.appraisals = NewAppraisalService(db, rdb, f.queue, 0)
	f.processor = NewAppraisalProcessor(db, rdb, NewScorer(rand.NewPCG(7, 11)), f.notifications, 0)
	f.profiles = NewProfileService(db, rdb)
	return f
}

func pocketWatch() SubmitInput {
	return SubmitInput{
		ItemName:        "Pocket Watch",
		ItemCategory:    "Antiques",
		ItemDescription: "Silver hunter case, running",
		ItemCondition:   "Good",
		AgreedTerms:     true,
	}
}

func (f *fixture) submit(t *testing.T, userID string) *models.AppraisalRequest {
	t.Helper()
	var owner *string
	if userID != "" {
		owner = &userID
	}
	req, err := f.appraisals.Submit(context.Background(), owner, pocketWatch())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return req
}

// appraised submits and processes a request owned by userID
func (f *fixture) appraised(t *testing.T, userID string) *models.AppraisalRequest {
	t.Helper()
	req := f.submit(t, userID)
	if _, err := f.processor.Process(context.Background(), req); err != nil {
		t.Fatalf("process: %v", err)
	}
	return req
}

func (f *fixture) resultCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.AppraisalResult{}).Count(&n).Error; err != nil {
		t.Fatalf("count results: %v", err)
	}
	return n
}
