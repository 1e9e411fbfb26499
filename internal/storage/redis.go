package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "marketcal/internal/cache"
	"marketcal/pkg/marketdata"
)

// RedisMirror publishes the latest ticker and connectivity status for each
// symbol to redis so other services can read prices without going through
// the feed. Best-effort: the store logs mirror failures and moves on.
type RedisMirror struct {
	rds       *redis.Redis
	tickerTTL time.Duration
	statusTTL time.Duration
}

// NewRedisMirror connects using the given conf.
func NewRedisMirror(conf redis.RedisConf, ttl cachekeys.TTLSet) (*RedisMirror, error) {
	rds, err := redis.NewRedis(conf)
	if err != nil {
		return nil, fmt.Errorf("storage: connect redis: %w", err)
	}
	return NewRedisMirrorWithClient(rds, ttl), nil
}

// NewRedisMirrorWithClient wraps an existing client, for tests.
func NewRedisMirrorWithClient(rds *redis.Redis, ttl cachekeys.TTLSet) *RedisMirror {
	return &RedisMirror{
		rds:       rds,
		tickerTTL: cachekeys.TickerTTL(ttl),
		statusTTL: cachekeys.StatusTTL(ttl),
	}
}

// MirrorTicker writes the ticker under the latest-price key and, when the
// tick carries provenance, under the per-source key as well.
func (m *RedisMirror) MirrorTicker(ctx context.Context, ticker *marketdata.Ticker) error {
	if ticker == nil {
		return nil
	}
	payload, err := json.Marshal(ticker)
	if err != nil {
		return fmt.Errorf("storage: marshal ticker %s: %w", ticker.Symbol, err)
	}
	if err := m.setex(ctx, cachekeys.TickerLatestKey(ticker.Symbol), string(payload), m.tickerTTL); err != nil {
		return err
	}
	if ticker.Source == "" {
		return nil
	}
	return m.setex(ctx, cachekeys.TickerBySourceKey(ticker.Source, ticker.Symbol), string(payload), m.tickerTTL)
}

// PublishStatus records the scheduler's connectivity state for the symbol.
func (m *RedisMirror) PublishStatus(ctx context.Context, symbol, status string) error {
	return m.setex(ctx, cachekeys.StatusKey(symbol), status, m.statusTTL)
}

func (m *RedisMirror) setex(ctx context.Context, key, value string, ttl time.Duration) error {
	seconds := int(ttl / time.Second)
	if seconds <= 0 {
		return m.rds.SetCtx(ctx, key, value)
	}
	return m.rds.SetexCtx(ctx, key, value, seconds)
}
