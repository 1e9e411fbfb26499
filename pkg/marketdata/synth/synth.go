// Package synth generates plausible market data when every upstream provider
// has failed and no cache entry exists. Output satisfies the same shape
// invariants as real data but is always tagged fallback-demo so consumers can
// render a demo indicator — that tagging is a contract, not a cosmetic.
package synth

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"marketcal/pkg/marketdata"
)

// baseAnchor holds the random walk anchor per symbol.
type baseAnchor struct {
	price  float64
	volume float64
}

var baseAnchors = map[string]baseAnchor{
	"BTCUSDT": {price: 43250, volume: 28500000000},
	"ETHUSDT": {price: 2380, volume: 15200000000},
	"ADAUSDT": {price: 0.52, volume: 850000000},
	"SOLUSDT": {price: 98.5, volume: 2100000000},
	"DOTUSDT": {price: 7.2, volume: 420000000},
}

const (
	trendClamp     = 0.05
	defaultSpread  = 0.001
	bookDepth      = 20
	weekendDamping = 0.7
)

// Synthesizer produces fallback series, tickers and order books from a
// seeded pseudo-random source. Deterministic aside from that source.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a synthesizer with a time-derived seed.
func New() *Synthesizer {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded builds a synthesizer whose walk is reproducible for a given seed.
func NewSeeded(seed int64) *Synthesizer {
	return &Synthesizer{rng: rand.New(rand.NewSource(seed))}
}

func anchorFor(symbol string) baseAnchor {
	if a, ok := baseAnchors[symbol]; ok {
		return a
	}
	return baseAnchors["BTCUSDT"]
}

func volatilityFactor(symbol string) float64 {
	switch symbol {
	case "BTCUSDT":
		return 0.03
	case "ETHUSDT":
		return 0.04
	default:
		return 0.06
	}
}

// Series generates one sample per calendar day of the given month: a random
// walk around the symbol's anchor price with a slowly drifting trend term
// clamped to ±0.05 and weekend-damped volume.
func (s *Synthesizer) Series(symbol string, month time.Time) marketdata.Series {
	s.mu.Lock()
	defer s.mu.Unlock()

	anchor := anchorFor(symbol)
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	series := make(marketdata.Series, 0, 31)
	price := anchor.price
	trend := (s.rng.Float64() - 0.5) * 0.02
	factor := volatilityFactor(symbol)

	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		dailyChange := (s.rng.Float64()-0.5)*factor + trend*0.1
		dailyChange = clamp(dailyChange, -trendClamp, trendClamp)
		next := price * (1 + dailyChange)
		dayVol := math.Abs(dailyChange)

		open := price
		close := next
		high := math.Max(open, close) * (1 + s.rng.Float64()*dayVol)
		low := math.Min(open, close) * (1 - s.rng.Float64()*dayVol)

		volume := anchor.volume * (0.5 + s.rng.Float64())
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			volume *= weekendDamping
		}

		sample := marketdata.Sample{
			Date:        day,
			Price:       close,
			Open:        open,
			High:        high,
			Low:         low,
			Volume:      volume,
			PriceChange: dailyChange,
			Volatility:  dayVol,
			Source:      marketdata.SourceFallbackDemo,
		}
		sample.NormalizeOHLC()
		series = append(series, sample)

		price = next
		trend = clamp(trend+(s.rng.Float64()-0.5)*0.005, -trendClamp, trendClamp)
	}
	return series
}

// Ticker emits a fallback snapshot, stepping from the previous one when
// present so consecutive demo ticks stay continuous.
func (s *Synthesizer) Ticker(symbol string, previous *marketdata.Ticker) *marketdata.Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()

	anchor := anchorFor(symbol)
	base := anchor.price
	volume := anchor.volume
	if previous != nil && previous.Price > 0 {
		base = previous.Price
		if previous.Volume > 0 {
			volume = previous.Volume
		}
	}

	change := clamp((s.rng.Float64()-0.5)*volatilityFactor(symbol), -trendClamp, trendClamp)
	price := base * (1 + change)
	ticker := &marketdata.Ticker{
		Symbol:             symbol,
		Price:              price,
		PriceChange:        price - base,
		PriceChangePercent: change * 100,
		Volume:             volume * (0.95 + s.rng.Float64()*0.1),
		High:               price * (1 + math.Abs(change)),
		Low:                price * (1 - math.Abs(change)),
		Timestamp:          time.Now().UnixMilli(),
		Source:             marketdata.SourceFallbackDemo,
		Demo:               true,
	}
	ticker.Widen(previous)
	return ticker
}

// OrderBook builds a spread ladder around a reference price with strictly
// ordered levels and cumulative totals.
func (s *Synthesizer) OrderBook(symbol string, referencePrice float64) *marketdata.OrderBook {
	s.mu.Lock()
	defer s.mu.Unlock()
	book := buildLadder(symbol, referencePrice, s.rng, marketdata.SourceFallbackDemo)
	book.Demo = true
	return book
}

// DerivedBook serves provider adapters that lack genuine depth data: same
// ladder, but tagged with the provider's "-simulated" provenance.
func DerivedBook(symbol string, referencePrice float64, source string) *marketdata.OrderBook {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	book := buildLadder(symbol, referencePrice, defaultRNG, source)
	book.Demo = true
	return book
}

var (
	defaultMu  sync.Mutex
	defaultRNG = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func buildLadder(symbol string, referencePrice float64, rng *rand.Rand, source string) *marketdata.OrderBook {
	if referencePrice <= 0 {
		referencePrice = anchorFor(symbol).price
	}
	spread := referencePrice * defaultSpread

	book := &marketdata.OrderBook{
		Symbol:       symbol,
		LastUpdateID: time.Now().UnixMilli(),
		Timestamp:    time.Now().UnixMilli(),
		Source:       source,
	}
	for i := 0; i < bookDepth; i++ {
		step := spread * float64(i) * 0.1
		quantity := 5 + rng.Float64()*10
		book.Bids = append(book.Bids, marketdata.BookLevel{
			Price:    math.Max(referencePrice-spread/2-step, 0.01),
			Quantity: quantity,
		})
		book.Asks = append(book.Asks, marketdata.BookLevel{
			Price:    referencePrice + spread/2 + step,
			Quantity: 5 + rng.Float64()*10,
		})
	}
	marketdata.CumulativeTotals(book.Bids)
	marketdata.CumulativeTotals(book.Asks)
	return book
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
