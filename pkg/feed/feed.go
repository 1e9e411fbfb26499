// Package feed is the consumer-facing facade over the acquisition layer: it
// loads a symbol's month of data through the multi-source client, degrades
// to stale or synthesized data when every upstream fails, and keeps the
// latest tick fresh through the stream scheduler.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"marketcal/pkg/marketdata"
	"marketcal/pkg/marketdata/store"
	"marketcal/pkg/marketdata/stream"
	"marketcal/pkg/marketdata/synth"
)

// historyLookbackCap bounds how far back a live history request reaches;
// older months come from the synthesizer.
const historyLookbackCap = 90

// CacheClearer empties the request cache so a refetch hits upstream.
type CacheClearer interface {
	Clear()
}

// Feed coordinates acquisition, fallback, storage and realtime refresh for
// one consumer session at a time.
type Feed struct {
	client *marketdata.MultiSourceClient
	synth  *synth.Synthesizer
	store  *store.Store
	sched  *stream.Scheduler
	cache  CacheClearer
	now    func() time.Time

	schedOpts []stream.SchedulerOption
	simulate  bool
}

// Option configures a Feed.
type Option func(*Feed)

// WithSynthesizer overrides the fallback synthesizer, for seeded tests.
func WithSynthesizer(s *synth.Synthesizer) Option {
	return func(f *Feed) {
		if s != nil {
			f.synth = s
		}
	}
}

// WithRequestCache wires the fetch cache so Refetch can flush it.
func WithRequestCache(cache CacheClearer) Option {
	return func(f *Feed) { f.cache = cache }
}

// WithSchedulerOptions passes options through to the realtime scheduler.
func WithSchedulerOptions(opts ...stream.SchedulerOption) Option {
	return func(f *Feed) { f.schedOpts = append(f.schedOpts, opts...) }
}

// WithSimulatedPush runs refreshes through the websocket simulator: the
// first tick for a symbol pulls live data, later ticks perturb the stored
// price like a streaming feed would.
func WithSimulatedPush() Option {
	return func(f *Feed) { f.simulate = true }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		if now != nil {
			f.now = now
		}
	}
}

// New builds a Feed over the given client and store.
func New(client *marketdata.MultiSourceClient, st *store.Store, opts ...Option) *Feed {
	f := &Feed{
		client: client,
		synth:  synth.New(),
		store:  st,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	refresh := f.refreshTick
	if f.simulate {
		refresh = stream.NewSimulator(f.refreshTick, f.store.Ticker).Tick
		f.schedOpts = append(f.schedOpts, stream.WithPushChannel())
	}
	f.sched = stream.NewScheduler(refresh, f.applyTick, f.schedOpts...)
	return f
}

// Store exposes the underlying market data store.
func (f *Feed) Store() *store.Store { return f.store }

// Load performs the full acquisition for a symbol and month: history,
// current price and order book, with the stale-then-synthesize fallback
// chain, then (re)starts the realtime refresh loop for the symbol. A Load
// for a new symbol supersedes the previous one; in-flight refresh results
// for the old symbol are discarded.
func (f *Feed) Load(ctx context.Context, symbol string, month time.Time) error {
	if month.IsZero() {
		month = f.now()
	}
	if err := f.loadSeries(ctx, symbol, month); err != nil {
		return err
	}
	if err := f.loadTicker(ctx, symbol); err != nil {
		return err
	}
	if err := f.loadBook(ctx, symbol); err != nil {
		return err
	}
	// The refresh loop outlives the request that triggered the load; only
	// Stop or a superseding Load ends it.
	f.sched.Start(context.WithoutCancel(ctx), symbol)
	return nil
}

// Refetch flushes the request cache and reloads the symbol from upstream.
// The scheduler epoch advances inside Load, so any in-flight refresh result
// from before the refetch is discarded.
func (f *Feed) Refetch(ctx context.Context, symbol string, month time.Time) error {
	if f.cache != nil {
		f.cache.Clear()
	}
	return f.Load(ctx, symbol, month)
}

// Close stops the realtime refresh loop.
func (f *Feed) Close() {
	f.sched.Stop()
}

// Subscribe registers a listener for store mutations and returns its cancel
// func.
func (f *Feed) Subscribe(listener store.Listener) func() {
	return f.store.Subscribe(listener)
}

// Snapshot is a point-in-time read of everything held for a symbol.
type Snapshot struct {
	Symbol        string                `json:"symbol"`
	Series        marketdata.Series     `json:"series"`
	Ticker        *marketdata.Ticker    `json:"ticker"`
	OrderBook     *marketdata.OrderBook `json:"orderBook"`
	LastUpdated   int64                 `json:"lastUpdated"`
	UsingFallback bool                  `json:"usingFallbackData"`
	Status        string                `json:"status"`
}

// Snapshot returns the current state for the symbol.
func (f *Feed) Snapshot(symbol string) Snapshot {
	return Snapshot{
		Symbol:        symbol,
		Series:        f.store.Series(symbol),
		Ticker:        f.store.Ticker(symbol),
		OrderBook:     f.store.OrderBook(symbol),
		LastUpdated:   f.store.LastUpdated(symbol),
		UsingFallback: f.store.UsingFallback(symbol),
		Status:        f.Status(symbol),
	}
}

// Status reports the connectivity state for the symbol: connected, polling,
// degraded, demo, connecting or idle.
func (f *Feed) Status(symbol string) string {
	if f.sched.Symbol() != symbol {
		if f.store.UsingFallback(symbol) {
			return "demo"
		}
		return "idle"
	}
	switch f.sched.Status() {
	case stream.StatusLive:
		return "connected"
	case stream.StatusPolling:
		return "polling"
	case stream.StatusDegraded:
		return "degraded"
	case stream.StatusDemo:
		return "demo"
	case stream.StatusConnecting:
		return "connecting"
	default:
		return "idle"
	}
}

// loadSeries fetches the month's daily series, falling back to the stored
// series and then the synthesizer when every provider fails.
func (f *Feed) loadSeries(ctx context.Context, symbol string, month time.Time) error {
	lookback := lookbackDays(month, f.now())
	var series marketdata.Series
	if lookback > 0 {
		fetched, err := f.client.GetHistoricalData(ctx, symbol, lookback)
		switch {
		case err == nil:
			series = filterToMonth(fetched, month)
		case errors.Is(err, marketdata.ErrRateLimited):
			// Throttled everywhere: keep whatever we have and let the
			// caller back off instead of synthesizing.
			return err
		case f.fallbackEligible(err):
			logx.WithContext(ctx).Errorf("feed: history for %s unavailable, degrading: %v", symbol, err)
		default:
			return err
		}
	}
	if len(series) == 0 {
		if stale := f.store.Series(symbol); len(stale) > 0 && sameMonth(stale, month) {
			return nil
		}
		series = f.synth.Series(symbol, month)
	}
	f.store.PutSeries(ctx, symbol, series)
	return nil
}

func (f *Feed) loadTicker(ctx context.Context, symbol string) error {
	tick, err := f.client.GetCurrentPrice(ctx, symbol)
	switch {
	case err == nil:
	case errors.Is(err, marketdata.ErrRateLimited):
		return err
	case f.fallbackEligible(err):
		logx.WithContext(ctx).Errorf("feed: price for %s unavailable, degrading: %v", symbol, err)
		tick = f.synth.Ticker(symbol, f.store.Ticker(symbol))
	default:
		return err
	}
	f.store.PutTicker(ctx, tick)
	return nil
}

func (f *Feed) loadBook(ctx context.Context, symbol string) error {
	book, err := f.client.GetOrderBook(ctx, symbol)
	switch {
	case err == nil:
	case errors.Is(err, marketdata.ErrRateLimited):
		return err
	case f.fallbackEligible(err):
		logx.WithContext(ctx).Errorf("feed: order book for %s unavailable, degrading: %v", symbol, err)
		book = f.synth.OrderBook(symbol, f.referencePrice(symbol))
	default:
		return err
	}
	f.store.PutOrderBook(ctx, book)
	return nil
}

// fallbackEligible reports whether the error means "no live data possible",
// the condition under which demo data may stand in.
func (f *Feed) fallbackEligible(err error) bool {
	return errors.Is(err, marketdata.ErrAPIDisabled) || marketdata.IsExhausted(err)
}

// refreshTick is the scheduler's pull source: live price first, synthesized
// continuation when upstream is gone.
func (f *Feed) refreshTick(ctx context.Context, symbol string) (*marketdata.Ticker, error) {
	tick, err := f.client.GetCurrentPrice(ctx, symbol)
	if err == nil {
		return tick, nil
	}
	if f.fallbackEligible(err) {
		return f.synth.Ticker(symbol, f.store.Ticker(symbol)), nil
	}
	return nil, err
}

// applyTick folds a refresh result into the stored series and ticker.
func (f *Feed) applyTick(ctx context.Context, symbol string, tick *marketdata.Ticker) {
	f.store.MergeLatest(ctx, symbol, tick)
}

func (f *Feed) referencePrice(symbol string) float64 {
	if tick := f.store.Ticker(symbol); tick != nil {
		return tick.Price
	}
	if last := f.store.Series(symbol).Last(); last != nil {
		return last.Price
	}
	return 0
}

// lookbackDays returns how many daily samples to request so the fetched
// window covers the month, or 0 when the month is too old to reach live.
func lookbackDays(month, now time.Time) int {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	if start.After(now) {
		return 0
	}
	days := int(now.Sub(start).Hours()/24) + 1
	if days > historyLookbackCap {
		return 0
	}
	if days < 2 {
		days = 2
	}
	return days
}

// filterToMonth keeps only the samples dated inside the requested month.
func filterToMonth(series marketdata.Series, month time.Time) marketdata.Series {
	out := make(marketdata.Series, 0, len(series))
	for _, sample := range series {
		if sample.Date.Year() == month.Year() && sample.Date.Month() == month.Month() {
			out = append(out, sample)
		}
	}
	return out
}

// sameMonth reports whether the stored series already covers the month.
func sameMonth(series marketdata.Series, month time.Time) bool {
	last := series.Last()
	return last != nil && last.Date.Year() == month.Year() && last.Date.Month() == month.Month()
}
