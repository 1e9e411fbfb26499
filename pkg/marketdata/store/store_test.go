package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketcal/pkg/marketdata"
)

type memBlob struct {
	raw     []byte
	saves   int
	loadErr error
	saveErr error
}

func (m *memBlob) Load(context.Context) ([]byte, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.raw, nil
}

func (m *memBlob) Save(_ context.Context, blob []byte) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.raw = append([]byte(nil), blob...)
	return nil
}

type recordingMirror struct {
	tickers []*marketdata.Ticker
	err     error
}

func (m *recordingMirror) MirrorTicker(_ context.Context, t *marketdata.Ticker) error {
	m.tickers = append(m.tickers, t)
	return m.err
}

func TestStoreTickerReturnsCopy(t *testing.T) {
	s := New()
	s.PutTicker(context.Background(), &marketdata.Ticker{
		Symbol: "BTCUSDT", Price: 43250, Timestamp: 1000, Source: marketdata.SourceBinance,
	})

	got := s.Ticker("BTCUSDT")
	require.NotNil(t, got)
	got.Price = 1

	require.Equal(t, 43250.0, s.Ticker("BTCUSDT").Price)
	require.Nil(t, s.Ticker("ETHUSDT"))
	require.False(t, s.UsingFallback("BTCUSDT"))
	require.NotZero(t, s.LastUpdated("BTCUSDT"))
}

func TestStoreDropsStaleTicker(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutTicker(ctx, &marketdata.Ticker{Symbol: "BTCUSDT", Price: 100, Timestamp: 2000, Source: marketdata.SourceBinance})
	s.PutTicker(ctx, &marketdata.Ticker{Symbol: "BTCUSDT", Price: 90, Timestamp: 1000, Source: marketdata.SourceCoinGecko})

	got := s.Ticker("BTCUSDT")
	require.Equal(t, 100.0, got.Price)
	require.Equal(t, marketdata.SourceBinance, got.Source)
}

func TestStoreWidensTickerBounds(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutTicker(ctx, &marketdata.Ticker{Symbol: "ETHUSDT", Price: 100, High: 110, Low: 90, Timestamp: 1000, Source: marketdata.SourceBinance})
	s.PutTicker(ctx, &marketdata.Ticker{Symbol: "ETHUSDT", Price: 102, High: 105, Low: 95, Timestamp: 2000, Source: marketdata.SourceBinance})

	got := s.Ticker("ETHUSDT")
	require.Equal(t, 110.0, got.High)
	require.Equal(t, 90.0, got.Low)
}

func TestStoreSubscribe(t *testing.T) {
	s := New()
	var seen []string
	cancel := s.Subscribe(func(symbol string) { seen = append(seen, symbol) })

	s.PutTicker(context.Background(), &marketdata.Ticker{Symbol: "BTCUSDT", Price: 1, Timestamp: 1, Source: marketdata.SourceBinance})
	require.Equal(t, []string{"BTCUSDT"}, seen)

	cancel()
	s.PutTicker(context.Background(), &marketdata.Ticker{Symbol: "BTCUSDT", Price: 2, Timestamp: 2, Source: marketdata.SourceBinance})
	require.Len(t, seen, 1)
}

func TestStoreUsingFallbackTracksProvenance(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.PutTicker(ctx, &marketdata.Ticker{Symbol: "SOLUSDT", Price: 1, Timestamp: 1, Source: marketdata.SourceFallbackDemo})
	require.True(t, s.UsingFallback("SOLUSDT"))

	s.PutTicker(ctx, &marketdata.Ticker{Symbol: "SOLUSDT", Price: 2, Timestamp: 2, Source: marketdata.SourceBinance})
	require.False(t, s.UsingFallback("SOLUSDT"))

	s.PutSeries(ctx, "SOLUSDT", marketdata.Series{
		{Date: day(2026, 8, 1), Price: 1, Open: 1, High: 1, Low: 1, Source: marketdata.SourceFallbackDemo},
	})
	require.True(t, s.UsingFallback("SOLUSDT"))
}

func TestStoreMergeLatest(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutSeries(ctx, "BTCUSDT", marketdata.Series{
		{Date: day(2026, 8, 28), Price: 100, Open: 98, High: 101, Low: 97, Source: marketdata.SourceBinance},
		{Date: day(2026, 8, 29), Price: 102, Open: 100, High: 103, Low: 99, Source: marketdata.SourceBinance},
	})

	s.MergeLatest(ctx, "BTCUSDT", &marketdata.Ticker{
		Symbol: "BTCUSDT", Price: 105, Timestamp: time.Now().UnixMilli(), Source: marketdata.SourceBinance,
	})

	series := s.Series("BTCUSDT")
	require.Len(t, series, 2)
	last := series.Last()
	require.Equal(t, 105.0, last.Price)
	require.Equal(t, 105.0, last.High)
	require.Equal(t, 100.0, series[0].Price)

	require.Equal(t, 105.0, s.Ticker("BTCUSDT").Price)
}

func TestStorePersistRoundTrip(t *testing.T) {
	blob := &memBlob{}
	ctx := context.Background()

	first := New(WithBlobStore(blob))
	first.PutSeries(ctx, "ETHUSDT", marketdata.Series{
		{Date: day(2026, 8, 1), Price: 2380, Open: 2350, High: 2400, Low: 2340, Source: marketdata.SourceBinance},
	})
	first.PutTicker(ctx, &marketdata.Ticker{Symbol: "ETHUSDT", Price: 2380.5, Timestamp: 1000, Source: marketdata.SourceBinance})
	require.GreaterOrEqual(t, blob.saves, 2)

	second := New(WithBlobStore(blob))
	require.Len(t, second.Series("ETHUSDT"), 1)
	require.Equal(t, 2380.5, second.Ticker("ETHUSDT").Price)
	require.False(t, second.UsingFallback("ETHUSDT"))
}

func TestStoreCorruptBlobStartsEmpty(t *testing.T) {
	blob := &memBlob{raw: []byte("not msgpack at all")}
	s := New(WithBlobStore(blob))
	require.Nil(t, s.Series("BTCUSDT"))
	require.Nil(t, s.Ticker("BTCUSDT"))
}

func TestStoreBlobErrorsAreNonFatal(t *testing.T) {
	blob := &memBlob{loadErr: errors.New("disk gone"), saveErr: errors.New("disk gone")}
	s := New(WithBlobStore(blob))

	s.PutTicker(context.Background(), &marketdata.Ticker{Symbol: "BTCUSDT", Price: 1, Timestamp: 1, Source: marketdata.SourceBinance})
	require.Equal(t, 1.0, s.Ticker("BTCUSDT").Price)
	require.Equal(t, 1, blob.saves)
}

func TestStoreMirrorFailureIsNonFatal(t *testing.T) {
	mirror := &recordingMirror{err: errors.New("redis down")}
	s := New(WithTickerMirror(mirror))

	s.PutTicker(context.Background(), &marketdata.Ticker{Symbol: "BTCUSDT", Price: 7, Timestamp: 1, Source: marketdata.SourceBinance})
	require.Equal(t, 7.0, s.Ticker("BTCUSDT").Price)
	require.Len(t, mirror.tickers, 1)
	require.Equal(t, 7.0, mirror.tickers[0].Price)
}

func TestStoreOrderBookReturnsCopy(t *testing.T) {
	s := New()
	s.PutOrderBook(context.Background(), &marketdata.OrderBook{
		Symbol: "BTCUSDT",
		Bids:   []marketdata.BookLevel{{Price: 99, Quantity: 1, Total: 1}},
		Asks:   []marketdata.BookLevel{{Price: 101, Quantity: 2, Total: 2}},
		Source: marketdata.SourceBinance,
	})

	got := s.OrderBook("BTCUSDT")
	require.NotNil(t, got)
	got.Bids[0].Price = 1

	require.Equal(t, 99.0, s.OrderBook("BTCUSDT").Bids[0].Price)
	require.Nil(t, s.OrderBook("ETHUSDT"))
}

func TestStoreExportSeries(t *testing.T) {
	s := New()
	s.PutSeries(context.Background(), "BTCUSDT", marketdata.Series{
		{
			Date: day(2026, 8, 29), Price: 43250.5, Open: 43000, High: 43500, Low: 42800,
			Volume: 1234567, PriceChange: 0.0125, Volatility: 0.0163, Source: marketdata.SourceBinance,
		},
	})

	rows := s.ExportSeries("BTCUSDT")
	require.Len(t, rows, 2)
	require.Equal(t, ExportHeader, rows[0])
	require.Equal(t, []string{"2026-08-29", "43250.50", "43000.00", "43500.00", "42800.00", "1234567", "1.25", "1.63"}, rows[1])

	require.Equal(t, [][]string{ExportHeader}, s.ExportSeries("UNKNOWN"))
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}
