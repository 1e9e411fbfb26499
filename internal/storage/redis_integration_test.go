//go:build integration
// +build integration

package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "marketcal/internal/cache"
	"marketcal/internal/config"
	"marketcal/pkg/marketdata"
)

func requireRedis(t *testing.T) *redis.Redis {
	t.Helper()
	addr := os.Getenv("MARKETCAL_REDIS_ADDR")
	if addr == "" {
		t.Skip("MARKETCAL_REDIS_ADDR not set")
	}
	rds, err := redis.NewRedis(redis.RedisConf{Host: addr, Type: "node"})
	require.NoError(t, err)
	return rds
}

func TestRedisMirrorRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	m := NewRedisMirrorWithClient(requireRedis(t), cachekeys.NewTTLSet(config.CacheTTL{Short: 30, Medium: 60, Long: 300}))

	tick := &marketdata.Ticker{
		Symbol:    "BTCUSDT",
		Price:     43250.5,
		Timestamp: time.Now().UnixMilli(),
		Source:    marketdata.SourceBinance,
	}
	require.NoError(t, m.MirrorTicker(ctx, tick))

	for _, key := range []string{
		cachekeys.TickerLatestKey("BTCUSDT"),
		cachekeys.TickerBySourceKey(marketdata.SourceBinance, "BTCUSDT"),
	} {
		raw, err := m.rds.GetCtx(ctx, key)
		require.NoError(t, err)
		var got marketdata.Ticker
		require.NoError(t, json.Unmarshal([]byte(raw), &got))
		require.Equal(t, tick.Price, got.Price)
		require.Equal(t, tick.Source, got.Source)
	}

	require.NoError(t, m.PublishStatus(ctx, "BTCUSDT", "polling"))
	status, err := m.rds.GetCtx(ctx, cachekeys.StatusKey("BTCUSDT"))
	require.NoError(t, err)
	require.Equal(t, "polling", status)
}
