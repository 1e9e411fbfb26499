package stream

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"marketcal/pkg/marketdata"
)

// maxStepRatio bounds each simulated step to ±0.2% of the last price.
const maxStepRatio = 0.002

// LastTickerFunc returns the most recent stored ticker for the symbol, or
// nil when none exists yet.
type LastTickerFunc func(symbol string) *marketdata.Ticker

// Simulator emulates a streaming feed on top of a pull source: the first
// tick for a symbol comes from the underlying seed func, subsequent ticks
// perturb the most recent stored price by a small random step. It plugs
// into a Scheduler as its RefreshFunc.
type Simulator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	seed RefreshFunc
	last LastTickerFunc
}

// NewSimulator builds a simulator. seed fetches the initial real tick; last
// reads back the stored state that perturbation steps off.
func NewSimulator(seed RefreshFunc, last LastTickerFunc) *Simulator {
	return &Simulator{
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		seed: seed,
		last: last,
	}
}

// NewSeededSimulator is NewSimulator with a fixed random source, for tests.
func NewSeededSimulator(seed RefreshFunc, last LastTickerFunc, src rand.Source) *Simulator {
	s := NewSimulator(seed, last)
	s.rng = rand.New(src)
	return s
}

// Tick produces the next simulated tick for the symbol.
func (s *Simulator) Tick(ctx context.Context, symbol string) (*marketdata.Ticker, error) {
	prev := s.last(symbol)
	if prev == nil || prev.Price <= 0 {
		tick, err := s.seed(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return tick, nil
	}

	s.mu.Lock()
	step := (s.rng.Float64()*2 - 1) * maxStepRatio
	s.mu.Unlock()

	price := prev.Price * (1 + step)
	change := price - (prev.Price - prev.PriceChange)
	changePct := 0.0
	if base := price - change; base != 0 {
		changePct = change / base * 100
	}

	tick := &marketdata.Ticker{
		Symbol:             symbol,
		Price:              price,
		PriceChange:        change,
		PriceChangePercent: changePct,
		Volume:             prev.Volume,
		High:               prev.High,
		Low:                prev.Low,
		Timestamp:          time.Now().UnixMilli(),
		Source:             marketdata.SourceWSSimulation,
		Demo:               prev.Demo,
	}
	tick.Widen(prev)
	return tick, nil
}
