package store

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"

	"marketcal/pkg/marketdata"
)

// snapshot is the durable form of the whole store: one msgpack blob written
// on every mutation and re-read at startup.
type snapshot struct {
	Series    map[string]marketdata.Series     `msgpack:"series"`
	Tickers   map[string]*marketdata.Ticker    `msgpack:"tickers"`
	Books     map[string]*marketdata.OrderBook `msgpack:"books"`
	UpdatedAt map[string]int64                 `msgpack:"updatedAt"`
	Fallback  map[string]bool                  `msgpack:"fallback"`
}

func (s *Store) hydrate() {
	if s.blob == nil {
		return
	}
	ctx := context.Background()
	raw, err := s.blob.Load(ctx)
	if err != nil {
		logx.Errorf("store: load persisted state: %v", err)
		return
	}
	if len(raw) == 0 {
		return
	}
	var snap snapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		// Corrupt blob: start empty rather than fail.
		logx.Errorf("store: decode persisted state: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Series != nil {
		s.series = snap.Series
	}
	if snap.Tickers != nil {
		s.tickers = snap.Tickers
	}
	if snap.Books != nil {
		s.books = snap.Books
	}
	if snap.UpdatedAt != nil {
		s.updatedAt = snap.UpdatedAt
	}
	if snap.Fallback != nil {
		s.fallback = snap.Fallback
	}
}

// persist writes the full state back. Best-effort: failures are logged and
// never surfaced to callers.
func (s *Store) persist(ctx context.Context) {
	if s.blob == nil {
		return
	}
	s.mu.RLock()
	snap := snapshot{
		Series:    s.series,
		Tickers:   s.tickers,
		Books:     s.books,
		UpdatedAt: s.updatedAt,
		Fallback:  s.fallback,
	}
	raw, err := msgpack.Marshal(&snap)
	s.mu.RUnlock()
	if err != nil {
		logx.WithContext(ctx).Errorf("store: encode state: %v", err)
		return
	}
	if err := s.blob.Save(ctx, raw); err != nil {
		logx.WithContext(ctx).Errorf("store: save state: %v", err)
	}
}
