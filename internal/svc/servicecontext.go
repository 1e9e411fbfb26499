package svc

import (
	"context"
	"log"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "marketcal/internal/cache"
	"marketcal/internal/config"
	"marketcal/internal/storage"
	"marketcal/pkg/confkit"
	"marketcal/pkg/feed"
	"marketcal/pkg/marketdata"
	"marketcal/pkg/marketdata/fetch"
	"marketcal/pkg/marketdata/store"
	"marketcal/pkg/marketdata/stream"

	// Import for side-effects: registers the provider adapters.
	_ "marketcal/pkg/marketdata/providers/binance"
	_ "marketcal/pkg/marketdata/providers/coincap"
	_ "marketcal/pkg/marketdata/providers/coingecko"
	_ "marketcal/pkg/marketdata/providers/cryptocompare"
)

type ServiceContext struct {
	Config config.Config
	TTL    cachekeys.TTLSet

	MarketConfig *marketdata.Config
	Fetcher      *fetch.Fetcher
	Providers    map[string]marketdata.Provider
	Client       *marketdata.MultiSourceClient
	Store        *store.Store
	Feed         *feed.Feed
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config: c,
		TTL:    cachekeys.NewTTLSet(c.TTL),
	}

	marketCfg := c.Market.Value
	if marketCfg == nil {
		marketCfg = defaultMarketConfig()
	}
	svc.MarketConfig = marketCfg

	svc.Fetcher = fetch.New(
		fetch.WithTimeout(marketCfg.Timeout),
		fetch.WithCache(fetch.NewCache(marketCfg.CacheDuration)),
		fetch.WithLimiter(fetch.NewLimiter(marketCfg.RateLimit.Count, marketCfg.RateLimit.Window)),
	)

	providers, err := marketCfg.BuildProviders(svc.Fetcher)
	if err != nil {
		log.Fatalf("failed to build market providers: %v", err)
	}
	svc.Providers = providers
	svc.Client = marketdata.NewMultiSourceClientFromConfig(marketCfg, providers)

	storeOpts := []store.Option{}
	var mirrors storage.MultiMirror
	var redisMirror *storage.RedisMirror
	switch c.Storage.Backend {
	case "file":
		// Anchor a relative snapshot path at the config directory, so the
		// file lands beside etc/ regardless of the working directory.
		storeOpts = append(storeOpts, store.WithBlobStore(storage.NewFileStore(confkit.ResolvePath(c.BaseDir(), c.Storage.Path))))
	case "postgres":
		conn := sqlx.NewSqlConn("postgres", c.Postgres.DSN)
		storeOpts = append(storeOpts, store.WithBlobStore(storage.NewPostgresStoreWithConn(conn, c.Storage.AppKey)))
		mirrors = append(mirrors, storage.NewTickRecorder(conn))
	}
	if c.MirrorEnabled() {
		mirror, err := storage.NewRedisMirror(c.Redis, svc.TTL)
		if err != nil {
			log.Fatalf("failed to connect redis mirror: %v", err)
		}
		redisMirror = mirror
		mirrors = append(mirrors, mirror)
	}
	if len(mirrors) > 0 {
		storeOpts = append(storeOpts, store.WithTickerMirror(mirrors))
	}
	svc.Store = store.New(storeOpts...)

	feedOpts := []feed.Option{
		feed.WithRequestCache(svc.Fetcher.Cache()),
		feed.WithSchedulerOptions(stream.WithInterval(marketCfg.RefreshInterval, marketCfg.RefreshInterval/3)),
	}
	if marketCfg.StreamSimulation {
		feedOpts = append(feedOpts, feed.WithSimulatedPush())
	}
	if redisMirror != nil {
		feedOpts = append(feedOpts, feed.WithSchedulerOptions(stream.WithStatusFunc(func(symbol string, status stream.Status) {
			if err := redisMirror.PublishStatus(context.Background(), symbol, string(status)); err != nil {
				logx.Errorf("svc: publish status for %s: %v", symbol, err)
			}
		})))
	}
	svc.Feed = feed.New(svc.Client, svc.Store, feedOpts...)
	return svc
}

// defaultMarketConfig covers deployments without an etc/market.yaml: all
// registered adapters against their public endpoints, binance first.
func defaultMarketConfig() *marketdata.Config {
	return &marketdata.Config{
		APIEnabled:      true,
		Timeout:         marketdata.DefaultTimeout,
		CacheDuration:   marketdata.DefaultCacheDuration,
		RefreshInterval: marketdata.DefaultRefreshInterval,
		RateLimit: marketdata.RateLimitConfig{
			Count:  marketdata.DefaultRateLimit,
			Window: marketdata.DefaultRateWindow,
		},
		Providers: map[string]*marketdata.ProviderConfig{
			"binance":       {Type: "binance"},
			"coingecko":     {Type: "coingecko"},
			"coincap":       {Type: "coincap"},
			"cryptocompare": {Type: "cryptocompare"},
		},
		Priority: marketdata.PriorityConfig{
			Price:   []string{"binance", "coingecko", "coincap", "cryptocompare"},
			History: []string{"binance", "cryptocompare", "coingecko", "coincap"},
			Book:    []string{"binance", "coingecko", "coincap", "cryptocompare"},
		},
	}
}
