package stream

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"marketcal/pkg/marketdata"
)

func TestSimulatorSeedsFirstTick(t *testing.T) {
	seedTick := &marketdata.Ticker{Symbol: "BTCUSDT", Price: 43250, Source: marketdata.SourceBinance}
	seed := func(_ context.Context, _ string) (*marketdata.Ticker, error) { return seedTick, nil }
	sim := NewSeededSimulator(seed, func(string) *marketdata.Ticker { return nil }, rand.NewSource(1))

	tick, err := sim.Tick(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Same(t, seedTick, tick)
}

func TestSimulatorSeedErrorPropagates(t *testing.T) {
	seed := func(_ context.Context, _ string) (*marketdata.Ticker, error) { return nil, errors.New("down") }
	sim := NewSeededSimulator(seed, func(string) *marketdata.Ticker { return nil }, rand.NewSource(1))

	_, err := sim.Tick(context.Background(), "BTCUSDT")
	require.Error(t, err)
}

func TestSimulatorPerturbsStoredTicker(t *testing.T) {
	prev := &marketdata.Ticker{
		Symbol: "ETHUSDT",
		Price:  2380,
		High:   2400,
		Low:    2350,
		Volume: 1.5e10,
		Source: marketdata.SourceBinance,
	}
	seed := func(_ context.Context, _ string) (*marketdata.Ticker, error) {
		t.Fatal("seed must not run when a stored ticker exists")
		return nil, nil
	}
	sim := NewSeededSimulator(seed, func(string) *marketdata.Ticker { return prev }, rand.NewSource(7))

	tick, err := sim.Tick(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	require.Equal(t, marketdata.SourceWSSimulation, tick.Source)
	require.True(t, marketdata.IsSynthetic(tick.Source))
	require.LessOrEqual(t, math.Abs(tick.Price-2380)/2380, 0.002)
	require.GreaterOrEqual(t, tick.High, 2400.0)
	require.LessOrEqual(t, tick.Low, 2350.0)
	require.InDelta(t, 1.5e10, tick.Volume, 1)
}

func TestSimulatorKeepsDemoFlag(t *testing.T) {
	prev := &marketdata.Ticker{Symbol: "BTCUSDT", Price: 100, Demo: true, Source: marketdata.SourceFallbackDemo}
	sim := NewSeededSimulator(nil, func(string) *marketdata.Ticker { return prev }, rand.NewSource(3))

	tick, err := sim.Tick(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, tick.Demo)
}
