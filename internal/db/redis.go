/**
 * @description
 * Redis connection manager using go-redis.
 * Backs the appraisal trigger stream, the result cache and result pub/sub.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 */

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/logger"
	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 5 * time.Second

// RedisOptions parses a redis URL and fills in pool and timeout defaults
// for anything the URL leaves unset.
func RedisOptions(url string) (*redis.Options, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	// ReadTimeout is left alone: XREADGROUP BLOCK extends it per call.
	setDuration(&opt.WriteTimeout, 5*time.Second)
	setDuration(&opt.DialTimeout, 5*time.Second)
	setDuration(&opt.PoolTimeout, 5*time.Second)
	setDuration(&opt.MinRetryBackoff, 200*time.Millisecond)
	setDuration(&opt.MaxRetryBackoff, 2*time.Second)
	setInt(&opt.MaxRetries, 2)
	setInt(&opt.PoolSize, 20)
	setInt(&opt.MinIdleConns, 2)

	return opt, nil
}

// ConnectRedis opens a client and pings it; the client is closed again if
// the ping fails.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opt, err := RedisOptions(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opt.Addr, err)
	}

	logger.Info("✅ Connected to Redis (db %d)", opt.DB)
	return client, nil
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

func setInt(n *int, def int) {
	if *n == 0 {
		*n = def
	}
}
