// Package store holds the per-symbol market state consumed by the UI layer:
// series, tickers and order books, with change notification and best-effort
// durable persistence.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"marketcal/pkg/marketdata"
)

// BlobStore persists the whole store as one serialized blob under a fixed
// application key. Load returns (nil, nil) when nothing has been saved yet.
type BlobStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
}

// TickerMirror optionally fans the latest ticker out to a shared cache
// (Redis in production). Failures are logged, never propagated.
type TickerMirror interface {
	MirrorTicker(ctx context.Context, ticker *marketdata.Ticker) error
}

// Listener observes store mutations for one symbol.
type Listener func(symbol string)

// Store is the single owner of per-symbol market state. All mutation entry
// points are invoked by the multi-source client, the scheduler or the feed;
// readers get copies.
type Store struct {
	mu        sync.RWMutex
	series    map[string]marketdata.Series
	tickers   map[string]*marketdata.Ticker
	books     map[string]*marketdata.OrderBook
	updatedAt map[string]int64
	fallback  map[string]bool

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextListen int

	blob   BlobStore
	mirror TickerMirror
}

// Option configures a Store.
type Option func(*Store)

// WithBlobStore wires durable persistence; the store hydrates from it at
// construction and writes back after every mutation.
func WithBlobStore(blob BlobStore) Option {
	return func(s *Store) { s.blob = blob }
}

// WithTickerMirror wires the shared latest-price mirror.
func WithTickerMirror(mirror TickerMirror) Option {
	return func(s *Store) { s.mirror = mirror }
}

// New constructs a store and hydrates persisted state if available. Corrupt
// or missing state is treated as empty, never fatal.
func New(opts ...Option) *Store {
	s := &Store{
		series:    make(map[string]marketdata.Series),
		tickers:   make(map[string]*marketdata.Ticker),
		books:     make(map[string]*marketdata.OrderBook),
		updatedAt: make(map[string]int64),
		fallback:  make(map[string]bool),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hydrate()
	return s
}

// Subscribe registers a mutation listener and returns its cancel func.
func (s *Store) Subscribe(listener Listener) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = listener
	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(symbol string) {
	s.listenerMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenerMu.Unlock()
	for _, l := range listeners {
		l(symbol)
	}
}

// Series returns a copy of the symbol's series.
func (s *Store) Series(symbol string) marketdata.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.series[symbol]
	if len(src) == 0 {
		return nil
	}
	out := make(marketdata.Series, len(src))
	copy(out, src)
	return out
}

// Ticker returns a copy of the symbol's latest ticker, or nil.
func (s *Store) Ticker(symbol string) *marketdata.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickers[symbol]
	if !ok {
		return nil
	}
	copied := *t
	return &copied
}

// OrderBook returns a copy of the symbol's latest depth snapshot, or nil.
func (s *Store) OrderBook(symbol string) *marketdata.OrderBook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[symbol]
	if !ok {
		return nil
	}
	copied := *b
	copied.Bids = append([]marketdata.BookLevel(nil), b.Bids...)
	copied.Asks = append([]marketdata.BookLevel(nil), b.Asks...)
	return &copied
}

// LastUpdated returns the epoch millis of the symbol's last mutation.
func (s *Store) LastUpdated(symbol string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt[symbol]
}

// UsingFallback reports whether the symbol's current state is demo data.
func (s *Store) UsingFallback(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback[symbol]
}

// PutSeries replaces the symbol's series wholesale.
func (s *Store) PutSeries(ctx context.Context, symbol string, series marketdata.Series) {
	s.mu.Lock()
	s.series[symbol] = series
	s.updatedAt[symbol] = time.Now().UnixMilli()
	if last := series.Last(); last != nil {
		s.fallback[symbol] = marketdata.IsSynthetic(last.Source)
	}
	s.mu.Unlock()
	s.afterMutation(ctx, symbol)
}

// PutTicker installs a fresh snapshot. Older-timestamped arrivals lose: a
// provenance tag is only ever replaced by a strictly fresher acquisition.
// High/low widen across the previous snapshot instead of being replaced.
func (s *Store) PutTicker(ctx context.Context, ticker *marketdata.Ticker) {
	if ticker == nil {
		return
	}
	s.mu.Lock()
	prev := s.tickers[ticker.Symbol]
	if prev != nil && ticker.Timestamp < prev.Timestamp {
		s.mu.Unlock()
		logx.WithContext(ctx).Infof("store: dropping stale ticker for %s (%s)", ticker.Symbol, ticker.Source)
		return
	}
	copied := *ticker
	copied.Widen(prev)
	s.tickers[ticker.Symbol] = &copied
	s.updatedAt[ticker.Symbol] = time.Now().UnixMilli()
	s.fallback[ticker.Symbol] = marketdata.IsSynthetic(ticker.Source)
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.MirrorTicker(ctx, &copied); err != nil {
			logx.WithContext(ctx).Errorf("store: mirror ticker %s: %v", ticker.Symbol, err)
		}
	}
	s.afterMutation(ctx, ticker.Symbol)
}

// PutOrderBook replaces the symbol's depth snapshot.
func (s *Store) PutOrderBook(ctx context.Context, book *marketdata.OrderBook) {
	if book == nil {
		return
	}
	s.mu.Lock()
	s.books[book.Symbol] = book
	s.updatedAt[book.Symbol] = time.Now().UnixMilli()
	s.mu.Unlock()
	s.afterMutation(ctx, book.Symbol)
}

// MergeLatest folds a fresh tick into the series' most recent sample
// (price replaced, high/low widened, change recomputed) and refreshes the
// ticker snapshot. Older samples stay immutable.
func (s *Store) MergeLatest(ctx context.Context, symbol string, tick *marketdata.Ticker) {
	if tick == nil {
		return
	}
	s.mu.Lock()
	series := s.series[symbol]
	series.Merge(tick)
	prev := s.tickers[symbol]
	copied := *tick
	copied.Widen(prev)
	s.tickers[symbol] = &copied
	s.updatedAt[symbol] = time.Now().UnixMilli()
	s.fallback[symbol] = marketdata.IsSynthetic(tick.Source)
	s.mu.Unlock()
	s.afterMutation(ctx, symbol)
}

func (s *Store) afterMutation(ctx context.Context, symbol string) {
	s.persist(ctx)
	s.notify(symbol)
}
