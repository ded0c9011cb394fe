package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/curio-market/backend/internal/api/middleware"
	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/services"
	"github.com/curio-market/backend/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testTriggerSecret = "test-trigger-secret"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	gdb := testutil.OpenDB(t)
	rdb, _ := testutil.Redis(t)

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test"},
		Redis:  config.RedisConfig{ResultCacheTTL: time.Minute},
		Auth: config.AuthConfig{
			JWTSecret:     testJWTSecret,
			TriggerSecret: testTriggerSecret,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := services.NewResultStreamHub(ctx, rdb, services.ResultChannel)
	t.Cleanup(hub.Close)

	app := NewApp(cfg)
	SetupRoutes(app, Dependencies{
		DB:     gdb,
		Redis:  rdb,
		Config: cfg,
		Auth:   middleware.NewStaticAuthenticator(middleware.HMACKeyfunc(testJWTSecret), "HS256"),
		Hub:    hub,
		Scorer: services.NewScorer(rand.NewPCG(1, 2)),
	})
	return app
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type call struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
}

func do(t *testing.T, app *fiber.App, c call) (int, []byte) {
	t.Helper()

	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

func pocketWatchBody() map[string]any {
	return map[string]any{
		"item_name":        "Pocket Watch",
		"item_category":    "Antiques",
		"item_description": "Silver hunter case, running",
		"item_condition":   "Good",
		"agreed_terms":     true,
	}
}

type submitResponse struct {
	Request struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		UserID string `json:"user_id"`
	} `json:"request"`
}

type resultResponse struct {
	Result struct {
		RequestID         string  `json:"request_id"`
		AppraisedValue    float64 `json:"appraised_value"`
		Currency          string  `json:"currency"`
		QualityAssessment string  `json:"quality_assessment"`
	} `json:"result"`
}

type processPayload struct {
	Record json.RawMessage `json:"record"`
}

// submitAndProcess submits as userID and delivers the trigger webhook once
func submitAndProcess(t *testing.T, app *fiber.App, userID string) string {
	t.Helper()

	status, raw := do(t, app, call{method: http.MethodPost, path: "/api/v1/appraisals", body: pocketWatchBody(), token: tokenFor(t, userID)})
	if status != fiber.StatusCreated {
		t.Fatalf("submit: status %d body %s", status, raw)
	}
	id := decode[submitResponse](t, raw).Request.ID

	var envelope struct {
		Request json.RawMessage `json:"request"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("decode submit: %v", err)
	}

	status, raw = do(t, app, call{
		method:  http.MethodPost,
		path:    "/api/v1/hooks/process-appraisal",
		body:    processPayload{Record: envelope.Request},
		headers: map[string]string{middleware.TriggerSecretHeader: testTriggerSecret},
	})
	if status != fiber.StatusOK {
		t.Fatalf("process hook: status %d body %s", status, raw)
	}
	return id
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	status, raw := do(t, app, call{method: http.MethodGet, path: "/api/v1/health"})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", status, raw)
	}
	body := decode[map[string]string](t, raw)
	if body["status"] != "ok" || body["db"] != "connected" || body["redis"] != "connected" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)

	status, raw := do(t, app, call{method: http.MethodGet, path: "/metrics"})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(raw), "go_goroutines") {
		t.Fatalf("expected prometheus exposition, got %q", raw[:min(len(raw), 200)])
	}
}

func TestSubmitRequiresAuth(t *testing.T) {
	app := newTestApp(t)

	status, _ := do(t, app, call{method: http.MethodPost, path: "/api/v1/appraisals", body: pocketWatchBody()})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/v1/appraisals", body: pocketWatchBody(), token: "not-a-jwt"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", status)
	}
}

func TestSubmitValidation(t *testing.T) {
	app := newTestApp(t)

	body := pocketWatchBody()
	body["agreed_terms"] = false

	status, raw := do(t, app, call{method: http.MethodPost, path: "/api/v1/appraisals", body: body, token: tokenFor(t, "user-1")})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", status, raw)
	}
	if got := decode[map[string]string](t, raw)["field"]; got != "agreed_terms" {
		t.Fatalf("expected field agreed_terms, got %q", got)
	}
}

func TestSubmitThenProcessLifecycle(t *testing.T) {
	app := newTestApp(t)
	token := tokenFor(t, "user-1")

	status, raw := do(t, app, call{method: http.MethodPost, path: "/api/v1/appraisals", body: pocketWatchBody(), token: token})
	if status != fiber.StatusCreated {
		t.Fatalf("submit: status %d body %s", status, raw)
	}
	submitted := decode[submitResponse](t, raw)
	if submitted.Request.Status != "pending" || submitted.Request.UserID != "user-1" {
		t.Fatalf("unexpected submitted request: %+v", submitted.Request)
	}
	id := submitted.Request.ID

	// Before processing the result is pending
	status, raw = do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/" + id + "/result"})
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202 before processing, got %d (%s)", status, raw)
	}

	var envelope struct {
		Request json.RawMessage `json:"request"`
	}
	_, submitRaw := do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/" + id})
	if err := json.Unmarshal(submitRaw, &envelope); err != nil {
		t.Fatalf("decode appraisal: %v", err)
	}

	hook := call{
		method:  http.MethodPost,
		path:    "/api/v1/hooks/process-appraisal",
		body:    processPayload{Record: envelope.Request},
		headers: map[string]string{middleware.TriggerSecretHeader: testTriggerSecret},
	}

	status, raw = do(t, app, hook)
	if status != fiber.StatusOK {
		t.Fatalf("process: status %d body %s", status, raw)
	}
	if msg := decode[map[string]any](t, raw)["message"]; msg != "Appraisal processed successfully" {
		t.Fatalf("unexpected message %v", msg)
	}

	// Redelivery is acknowledged without a second result
	status, raw = do(t, app, hook)
	if status != fiber.StatusOK {
		t.Fatalf("redelivery: status %d body %s", status, raw)
	}
	if msg := decode[map[string]any](t, raw)["message"]; msg != "Appraisal already processed" {
		t.Fatalf("unexpected redelivery message %v", msg)
	}

	status, raw = do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/" + id + "/result"})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 after processing, got %d (%s)", status, raw)
	}
	result := decode[resultResponse](t, raw)
	if result.Result.RequestID != id {
		t.Fatalf("result for wrong request: %s", result.Result.RequestID)
	}
	if result.Result.AppraisedValue < services.MinAppraisedValue || result.Result.AppraisedValue > services.MaxAppraisedValue {
		t.Fatalf("value out of range: %v", result.Result.AppraisedValue)
	}
	if result.Result.Currency != "USD" || result.Result.QualityAssessment != "Good Condition" {
		t.Fatalf("unexpected result: %+v", result.Result)
	}

	status, raw = do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/" + id})
	if status != fiber.StatusOK {
		t.Fatalf("get appraisal: %d", status)
	}
	view := decode[map[string]any](t, raw)
	if view["status"] != "completed" {
		t.Fatalf("expected completed view, got %v", view["status"])
	}
	if display, _ := view["display"].(map[string]any); display["item_name"] != "Pocket Watch" {
		t.Fatalf("unexpected display: %v", view["display"])
	}
}

func TestProcessHookRequiresSecret(t *testing.T) {
	app := newTestApp(t)

	status, _ := do(t, app, call{
		method: http.MethodPost,
		path:   "/api/v1/hooks/process-appraisal",
		body:   map[string]any{"record": map[string]any{"id": "00000000-0000-0000-0000-000000000001"}},
	})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", status)
	}

	status, _ = do(t, app, call{
		method:  http.MethodPost,
		path:    "/api/v1/hooks/process-appraisal",
		body:    map[string]any{},
		headers: map[string]string{middleware.TriggerSecretHeader: testTriggerSecret},
	})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for missing record, got %d", status)
	}
}

func TestResultLookupErrors(t *testing.T) {
	app := newTestApp(t)

	status, _ := do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/not-a-uuid/result"})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", status)
	}

	status, _ = do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/8f14e45f-ceea-4e7a-9d2b-6f1c2b6a0d11/result"})
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", status)
	}
}

func TestBrowseAndMine(t *testing.T) {
	app := newTestApp(t)

	done := submitAndProcess(t, app, "collector-1")
	status, _ := do(t, app, call{method: http.MethodPost, path: "/api/v1/appraisals", body: pocketWatchBody(), token: tokenFor(t, "collector-1")})
	if status != fiber.StatusCreated {
		t.Fatalf("second submit: %d", status)
	}

	status, raw := do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/browse?category=Antiques"})
	if status != fiber.StatusOK {
		t.Fatalf("browse: %d", status)
	}
	browsed := decode[[]map[string]any](t, raw)
	if len(browsed) != 1 {
		t.Fatalf("expected only the completed appraisal, got %d", len(browsed))
	}
	if req, _ := browsed[0]["request"].(map[string]any); req["id"] != done {
		t.Fatalf("browse returned wrong item: %v", browsed[0]["request"])
	}

	status, raw = do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/mine", token: tokenFor(t, "collector-1")})
	if status != fiber.StatusOK {
		t.Fatalf("mine: %d", status)
	}
	if mine := decode[[]map[string]any](t, raw); len(mine) != 2 {
		t.Fatalf("expected 2 own requests, got %d", len(mine))
	}

	status, _ = do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/mine"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous mine, got %d", status)
	}
}

func TestMarketplaceRoutes(t *testing.T) {
	app := newTestApp(t)
	seller := tokenFor(t, "collector-1")
	buyer := tokenFor(t, "consumer-1")

	status, raw := do(t, app, call{method: http.MethodGet, path: "/api/v1/profile/me", token: buyer})
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 before profile exists, got %d (%s)", status, raw)
	}
	status, raw = do(t, app, call{
		method: http.MethodPost, path: "/api/v1/profile", token: buyer,
		body: map[string]any{"display_name": "Ada", "role": "consumer"},
	})
	if status != fiber.StatusOK {
		t.Fatalf("upsert profile: %d (%s)", status, raw)
	}

	status, raw = do(t, app, call{
		method: http.MethodPost, path: "/api/v1/profile", token: seller,
		body: map[string]any{"display_name": "Grace", "role": "collector", "looking_for": "watches"},
	})
	if status != fiber.StatusOK {
		t.Fatalf("upsert seller profile: %d (%s)", status, raw)
	}

	itemID := submitAndProcess(t, app, "collector-1")

	// Interests are for consumers; received interests are for collectors
	status, _ = do(t, app, call{method: http.MethodGet, path: "/api/v1/interests/received", token: buyer})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for consumer listing received interests, got %d", status)
	}
	status, _ = do(t, app, call{method: http.MethodGet, path: "/api/v1/interests", token: seller})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for collector listing own interests, got %d", status)
	}

	// Owners cannot flag their own items
	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/v1/interests", token: seller, body: map[string]any{"request_id": itemID}})
	if status == fiber.StatusCreated || status == fiber.StatusOK {
		t.Fatalf("expected owner interest to be rejected, got %d", status)
	}

	status, raw = do(t, app, call{method: http.MethodPost, path: "/api/v1/interests", token: buyer, body: map[string]any{"request_id": itemID}})
	if status != fiber.StatusCreated {
		t.Fatalf("express interest: %d (%s)", status, raw)
	}
	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/v1/interests", token: buyer, body: map[string]any{"request_id": itemID}})
	if status != fiber.StatusOK {
		t.Fatalf("repeat interest should be 200, got %d", status)
	}

	status, raw = do(t, app, call{method: http.MethodGet, path: "/api/v1/interests/received", token: seller})
	if status != fiber.StatusOK {
		t.Fatalf("received: %d", status)
	}
	if n := decode[map[string]any](t, raw)["count"]; n != float64(1) {
		t.Fatalf("expected 1 received interest, got %v", n)
	}

	status, raw = do(t, app, call{method: http.MethodPost, path: "/api/v1/transactions", token: buyer, body: map[string]any{"request_id": itemID}})
	if status != fiber.StatusCreated {
		t.Fatalf("open transaction: %d (%s)", status, raw)
	}
	var opened struct {
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &opened); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	txPath := "/api/v1/transactions/" + opened.Transaction.ID

	// Skipping ahead is a conflict
	status, _ = do(t, app, call{method: http.MethodPatch, path: txPath + "/status", token: buyer, body: map[string]any{"status": "Completed"}})
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409 for skipped transition, got %d", status)
	}

	status, raw = do(t, app, call{method: http.MethodPatch, path: txPath + "/status", token: buyer, body: map[string]any{"status": "Payment Confirmed"}})
	if status != fiber.StatusOK {
		t.Fatalf("confirm payment: %d (%s)", status, raw)
	}

	// Only the seller ships
	status, _ = do(t, app, call{method: http.MethodPatch, path: txPath + "/status", token: buyer, body: map[string]any{"status": "Shipped", "tracking_number": "1Z999"}})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for buyer shipping, got %d", status)
	}
	status, raw = do(t, app, call{method: http.MethodPatch, path: txPath + "/status", token: seller, body: map[string]any{"status": "Shipped", "shipping_carrier": "UPS", "tracking_number": "1Z999"}})
	if status != fiber.StatusOK {
		t.Fatalf("ship: %d (%s)", status, raw)
	}

	status, _ = do(t, app, call{method: http.MethodGet, path: txPath, token: tokenFor(t, "stranger")})
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for non-party, got %d", status)
	}

	status, raw = do(t, app, call{method: http.MethodGet, path: "/api/v1/notifications", token: seller})
	if status != fiber.StatusOK {
		t.Fatalf("notifications: %d", status)
	}
	if unread := decode[map[string]any](t, raw)["unread_count"]; unread == float64(0) {
		t.Fatalf("seller should have unread notifications")
	}
	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/v1/notifications/read-all", token: seller})
	if status != fiber.StatusOK {
		t.Fatalf("read-all: %d", status)
	}
	_, raw = do(t, app, call{method: http.MethodGet, path: "/api/v1/notifications", token: seller})
	if unread := decode[map[string]any](t, raw)["unread_count"]; unread != float64(0) {
		t.Fatalf("expected no unread notifications, got %v", unread)
	}
}

func TestReviewRoutes(t *testing.T) {
	app := newTestApp(t)
	ada := tokenFor(t, "collector-ada")
	grace := tokenFor(t, "collector-grace")
	buyer := tokenFor(t, "consumer-1")

	for _, p := range []struct {
		token string
		role  string
	}{{ada, "collector"}, {grace, "collector"}, {buyer, "consumer"}} {
		status, raw := do(t, app, call{method: http.MethodPost, path: "/api/v1/profile", token: p.token, body: map[string]any{"role": p.role}})
		if status != fiber.StatusOK {
			t.Fatalf("upsert %s profile: %d (%s)", p.role, status, raw)
		}
	}

	itemID := submitAndProcess(t, app, "owner-1")

	status, _ := do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/pending", token: buyer})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for consumer queue, got %d", status)
	}
	status, raw := do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/pending", token: ada})
	if status != fiber.StatusOK {
		t.Fatalf("queue: %d (%s)", status, raw)
	}
	if n := decode[map[string]any](t, raw)["count"]; n != float64(1) {
		t.Fatalf("expected 1 queued item, got %v", n)
	}

	reviewPath := "/api/v1/appraisals/" + itemID + "/review"
	review := map[string]any{
		"history":         "Swiss, about 1910",
		"quality":         "Very good",
		"estimated_value": "420.00",
		"notes":           "Crystal replaced",
	}
	status, raw = do(t, app, call{method: http.MethodPost, path: reviewPath, token: ada, body: review})
	if status != fiber.StatusCreated {
		t.Fatalf("submit review: %d (%s)", status, raw)
	}
	review["quality"] = "Excellent"
	status, raw = do(t, app, call{method: http.MethodPost, path: reviewPath, token: ada, body: review})
	if status != fiber.StatusOK {
		t.Fatalf("revise review: %d (%s)", status, raw)
	}
	status, _ = do(t, app, call{method: http.MethodPost, path: reviewPath, token: grace, body: review})
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409 for second reviewer, got %d", status)
	}
	status, _ = do(t, app, call{method: http.MethodPost, path: reviewPath, token: ada, body: map[string]any{"estimated_value": "10"}})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for review without quality, got %d", status)
	}

	_, raw = do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/pending", token: ada})
	if n := decode[map[string]any](t, raw)["count"]; n != float64(0) {
		t.Fatalf("reviewed item should leave the queue, count = %v", n)
	}

	type reviewDetail struct {
		Review struct {
			ReviewerID string `json:"reviewer_id"`
			Quality    string `json:"quality"`
		} `json:"review"`
	}
	status, raw = do(t, app, call{method: http.MethodGet, path: "/api/v1/appraisals/" + itemID})
	if status != fiber.StatusOK {
		t.Fatalf("get appraisal: %d", status)
	}
	detail := decode[reviewDetail](t, raw)
	if detail.Review.ReviewerID != "collector-ada" || detail.Review.Quality != "Excellent" {
		t.Fatalf("appraisal detail review = %+v", detail.Review)
	}
}

func TestAppraisalDetailInterestFlag(t *testing.T) {
	app := newTestApp(t)
	buyer := tokenFor(t, "consumer-1")

	status, raw := do(t, app, call{method: http.MethodPost, path: "/api/v1/profile", token: buyer, body: map[string]any{"role": "consumer", "shipping_address": "PO Box 9"}})
	if status != fiber.StatusOK {
		t.Fatalf("upsert profile: %d (%s)", status, raw)
	}
	itemID := submitAndProcess(t, app, "owner-1")
	path := "/api/v1/appraisals/" + itemID

	_, raw = do(t, app, call{method: http.MethodGet, path: path})
	if _, ok := decode[map[string]any](t, raw)["interested"]; ok {
		t.Fatalf("anonymous detail should not carry an interest flag: %s", raw)
	}

	_, raw = do(t, app, call{method: http.MethodGet, path: path, token: buyer})
	if v := decode[map[string]any](t, raw)["interested"]; v != false {
		t.Fatalf("interested = %v, want false", v)
	}

	status, raw = do(t, app, call{method: http.MethodPost, path: "/api/v1/interests", token: buyer, body: map[string]any{"request_id": itemID}})
	if status != fiber.StatusCreated {
		t.Fatalf("express interest: %d (%s)", status, raw)
	}
	_, raw = do(t, app, call{method: http.MethodGet, path: path, token: buyer})
	if v := decode[map[string]any](t, raw)["interested"]; v != true {
		t.Fatalf("interested = %v, want true", v)
	}

	status, _ = do(t, app, call{method: http.MethodGet, path: path, token: "not-a-jwt"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", status)
	}
}
