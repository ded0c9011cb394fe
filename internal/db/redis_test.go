package db_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/db"
)

func TestRedisOptionsDefaults(t *testing.T) {
	opt, err := db.RedisOptions("redis://localhost:6379/0")
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opt.PoolSize != 20 || opt.MinIdleConns != 2 || opt.MaxRetries != 2 {
		t.Fatalf("unexpected pool defaults: size=%d idle=%d retries=%d", opt.PoolSize, opt.MinIdleConns, opt.MaxRetries)
	}
	if opt.WriteTimeout != 5*time.Second || opt.MaxRetryBackoff != 2*time.Second {
		t.Fatalf("unexpected timeouts: write=%v backoff=%v", opt.WriteTimeout, opt.MaxRetryBackoff)
	}
	if opt.ReadTimeout != 0 {
		t.Fatalf("read timeout must stay unset for blocking stream reads, got %v", opt.ReadTimeout)
	}
}

func TestRedisOptionsKeepsURLSettings(t *testing.T) {
	opt, err := db.RedisOptions("redis://localhost:6379/3?pool_size=5")
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opt.DB != 3 || opt.PoolSize != 5 {
		t.Fatalf("url settings overwritten: db=%d pool=%d", opt.DB, opt.PoolSize)
	}

	if _, err := db.RedisOptions("not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{Redis: config.RedisConfig{URL: "redis://" + mr.Addr()}}

	client, err := db.ConnectRedis(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = client.Close()

	mr.Close()
	if _, err := db.ConnectRedis(context.Background(), cfg); err == nil {
		t.Fatal("expected ping failure against a stopped server")
	}
}
