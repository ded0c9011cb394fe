package app

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/curio-market/backend/internal/api/middleware"
	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil/promlint"
)

func TestAssembleServesAndCloses(t *testing.T) {
	gdb := testutil.OpenDB(t)
	rdb, _ := testutil.Redis(t)

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test", Port: "0"},
		Redis:  config.RedisConfig{ResultCacheTTL: time.Minute},
	}
	a := Assemble(context.Background(), cfg, gdb, rdb, middleware.NewStaticAuthenticator(middleware.HMACKeyfunc("secret"), "HS256"))

	resp, err := a.Fiber.Test(httptest.NewRequest("GET", "/api/v1/health", nil), -1)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = a.Fiber.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	problems, err := promlint.New(resp.Body).Lint()
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("lint metrics: %v", err)
	}
	for _, p := range problems {
		if strings.Contains(p.Metric, "appraisal") || strings.HasPrefix(p.Metric, "trigger_") {
			t.Errorf("metric %s: %s", p.Metric, p.Text)
		}
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rdb.Ping(context.Background()).Err(); err == nil {
		t.Fatal("redis client should be closed after Close")
	}
}
