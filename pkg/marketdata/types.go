package marketdata

import (
	"math"
	"strings"
	"time"
)

// Provenance tags attached to every sample and snapshot. The UI renders
// trust indicators from these, so they travel with the data end-to-end.
const (
	SourceBinance       = "binance"
	SourceCoinGecko     = "coingecko"
	SourceCoinCap       = "coincap"
	SourceCryptoCompare = "cryptocompare"
	SourceWSSimulation  = "websocket-simulation"
	SourceFallbackDemo  = "fallback-demo"
)

// SimulatedSource returns the provenance tag for a book or tick derived by a
// provider that lacks genuine data for the operation (e.g. "coingecko-simulated").
func SimulatedSource(provider string) string {
	return provider + "-simulated"
}

// IsSynthetic reports whether a provenance tag marks non-authoritative data.
func IsSynthetic(source string) bool {
	return source == SourceFallbackDemo ||
		source == SourceWSSimulation ||
		strings.HasSuffix(source, "-simulated")
}

// Sample is one time-bucketed OHLCV record. The most recent sample of a
// series is refreshed in place by the realtime scheduler; older samples are
// immutable once appended.
type Sample struct {
	Date        time.Time `json:"date" msgpack:"date"`
	Price       float64   `json:"price" msgpack:"price"` // close
	Open        float64   `json:"open" msgpack:"open"`
	High        float64   `json:"high" msgpack:"high"`
	Low         float64   `json:"low" msgpack:"low"`
	Volume      float64   `json:"volume" msgpack:"volume"`
	PriceChange float64   `json:"priceChange" msgpack:"priceChange"` // fractional vs previous close
	Volatility  float64   `json:"volatility" msgpack:"volatility"`
	Source      string    `json:"source" msgpack:"source"`
}

// Series is an ascending-by-date, unique-date sequence of samples for one symbol.
type Series []Sample

// Ticker is the current-price view for a symbol. It replaces the previous
// snapshot wholesale on refresh; only high/low widen across updates.
type Ticker struct {
	Symbol             string  `json:"symbol" msgpack:"symbol"`
	Price              float64 `json:"price" msgpack:"price"`
	PriceChange        float64 `json:"priceChange" msgpack:"priceChange"`
	PriceChangePercent float64 `json:"priceChangePercent" msgpack:"priceChangePercent"`
	Volume             float64 `json:"volume" msgpack:"volume"`
	High               float64 `json:"high" msgpack:"high"`
	Low                float64 `json:"low" msgpack:"low"`
	Timestamp          int64   `json:"timestamp" msgpack:"timestamp"` // epoch millis
	Source             string  `json:"source" msgpack:"source"`
	Demo               bool    `json:"demo,omitempty" msgpack:"demo"`
}

// BookLevel is one price level of an order book side. Total is the running
// cumulative quantity from the best price outward.
type BookLevel struct {
	Price    float64 `json:"price" msgpack:"price"`
	Quantity float64 `json:"quantity" msgpack:"quantity"`
	Total    float64 `json:"total" msgpack:"total"`
}

// OrderBook is a depth snapshot. Bids descend from the best bid, asks ascend
// from the best ask; totals are non-decreasing on both sides.
type OrderBook struct {
	Symbol       string      `json:"symbol" msgpack:"symbol"`
	Bids         []BookLevel `json:"bids" msgpack:"bids"`
	Asks         []BookLevel `json:"asks" msgpack:"asks"`
	LastUpdateID int64       `json:"lastUpdateId" msgpack:"lastUpdateId"`
	Timestamp    int64       `json:"timestamp" msgpack:"timestamp"`
	Source       string      `json:"source" msgpack:"source"`
	Demo         bool        `json:"demo,omitempty" msgpack:"demo"`
}

// NormalizeOHLC widens High/Low so that low <= {open, price} <= high holds.
// Providers that omit high/low synthesize them from the close and the daily
// change; this keeps the invariant regardless of what they produced.
func (s *Sample) NormalizeOHLC() {
	if s.Open <= 0 {
		s.Open = s.Price
	}
	upper := math.Max(s.Open, s.Price)
	lower := math.Min(s.Open, s.Price)
	if s.High < upper {
		s.High = upper
	}
	if s.Low <= 0 || s.Low > lower {
		s.Low = lower
	}
	if s.Volume < 0 {
		s.Volume = 0
	}
}

// DeriveBounds fills missing high/low from the close using the documented
// approximation high = price*(1+|change|), low = price*(1-|change|).
func (s *Sample) DeriveBounds() {
	delta := math.Abs(s.PriceChange)
	if s.High <= 0 {
		s.High = s.Price * (1 + delta)
	}
	if s.Low <= 0 {
		s.Low = s.Price * (1 - delta)
	}
	s.NormalizeOHLC()
}

// UTCDay truncates t to its UTC calendar day.
func UTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Recalculate walks the series and recomputes each sample's fractional
// PriceChange relative to the previous close, defaulting Volatility to
// |PriceChange| where the provider supplied none.
func (sr Series) Recalculate() {
	for i := range sr {
		if i == 0 {
			continue
		}
		prev := sr[i-1].Price
		if prev == 0 {
			continue
		}
		sr[i].PriceChange = (sr[i].Price - prev) / prev
		if sr[i].Volatility == 0 {
			sr[i].Volatility = math.Abs(sr[i].PriceChange)
		}
	}
}

// Last returns the most recent sample, or nil for an empty series.
func (sr Series) Last() *Sample {
	if len(sr) == 0 {
		return nil
	}
	return &sr[len(sr)-1]
}

// Merge folds a fresh tick into the latest sample: price replaced, high/low
// widened, change recomputed against the previous stored close.
func (sr Series) Merge(tick *Ticker) {
	last := sr.Last()
	if last == nil || tick == nil {
		return
	}
	prevClose := last.Open
	if len(sr) >= 2 {
		prevClose = sr[len(sr)-2].Price
	}
	last.Price = tick.Price
	if tick.High > last.High {
		last.High = tick.High
	}
	if tick.Low > 0 && tick.Low < last.Low {
		last.Low = tick.Low
	}
	if tick.Price > last.High {
		last.High = tick.Price
	}
	if tick.Price < last.Low {
		last.Low = tick.Price
	}
	if tick.Volume > 0 {
		last.Volume = tick.Volume
	}
	if prevClose > 0 {
		last.PriceChange = (tick.Price - prevClose) / prevClose
		last.Volatility = math.Abs(last.PriceChange)
	}
	last.Source = tick.Source
}

// Widen merges a fresh ticker into an existing one. Everything is replaced
// wholesale except high/low, which only widen.
func (t *Ticker) Widen(prev *Ticker) {
	if prev == nil {
		return
	}
	if prev.High > t.High {
		t.High = prev.High
	}
	if prev.Low > 0 && (t.Low == 0 || prev.Low < t.Low) {
		t.Low = prev.Low
	}
}

// CumulativeTotals recomputes running totals for one book side in place.
func CumulativeTotals(levels []BookLevel) {
	total := 0.0
	for i := range levels {
		total += levels[i].Quantity
		levels[i].Total = total
	}
}

// Validate checks the order book shape invariants: strictly decreasing bid
// prices, strictly increasing ask prices, non-decreasing totals.
func (b *OrderBook) Validate() bool {
	for i := 1; i < len(b.Bids); i++ {
		if b.Bids[i].Price >= b.Bids[i-1].Price || b.Bids[i].Total < b.Bids[i-1].Total {
			return false
		}
	}
	for i := 1; i < len(b.Asks); i++ {
		if b.Asks[i].Price <= b.Asks[i-1].Price || b.Asks[i].Total < b.Asks[i-1].Total {
			return false
		}
	}
	return true
}
