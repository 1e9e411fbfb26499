package storage

import (
	"context"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"marketcal/internal/model"
	"marketcal/pkg/marketdata"
	"marketcal/pkg/marketdata/store"
)

// TickRecorder appends every accepted ticker to the price_ticks table. It
// plugs into the store as a TickerMirror; the append-only log feeds offline
// analysis without touching the snapshot path.
type TickRecorder struct {
	ticks model.PriceTicksModel
}

// NewTickRecorder builds a recorder over an open connection.
func NewTickRecorder(conn sqlx.SqlConn) *TickRecorder {
	return &TickRecorder{ticks: model.NewPriceTicksModel(conn)}
}

// MirrorTicker appends one tick row.
func (r *TickRecorder) MirrorTicker(ctx context.Context, ticker *marketdata.Ticker) error {
	return r.ticks.Insert(ctx, &model.PriceTick{
		Symbol:      ticker.Symbol,
		Price:       ticker.Price,
		PriceChange: ticker.PriceChange,
		Volume:      ticker.Volume,
		High:        ticker.High,
		Low:         ticker.Low,
		Source:      ticker.Source,
		Demo:        ticker.Demo,
		TsMs:        ticker.Timestamp,
	})
}

// MultiMirror fans a ticker out to several mirrors, returning the first
// error after all have been attempted.
type MultiMirror []store.TickerMirror

func (m MultiMirror) MirrorTicker(ctx context.Context, ticker *marketdata.Ticker) error {
	var first error
	for _, mirror := range m {
		if err := mirror.MirrorTicker(ctx, ticker); err != nil && first == nil {
			first = err
		}
	}
	return first
}
