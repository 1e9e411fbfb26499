package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"marketcal/pkg/marketdata"
	"marketcal/pkg/marketdata/fetch"
)

func newMockProvider(t *testing.T) *Provider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/price", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		require.Equal(t, "demo-key", r.Header.Get("X-Cg-Demo-Api-Key"))
		fmt.Fprint(w, `{
			"ethereum": {
				"usd": 2380.0,
				"usd_24h_change": -2.0,
				"usd_24h_vol": 15200000000,
				"last_updated_at": 1705320000
			}
		}`)
	})
	mux.HandleFunc("/coins/ethereum/market_chart", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "daily", r.URL.Query().Get("interval"))
		fmt.Fprint(w, `{
			"prices": [[1705276800000, 2300.0], [1705363200000, 2350.0], [1705449600000, 2380.0]],
			"total_volumes": [[1705276800000, 1.0e10], [1705363200000, 1.1e10], [1705449600000, 1.2e10]]
		}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return New(fetch.New(), WithBaseURL(server.URL), WithAPIKey("demo-key"))
}

func TestCurrentPrice(t *testing.T) {
	provider := newMockProvider(t)

	tick, err := provider.CurrentPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	require.InDelta(t, 2380.0, tick.Price, 1e-9)
	require.InDelta(t, -2.0, tick.PriceChangePercent, 1e-9)
	require.InDelta(t, 2380.0*-2.0/100, tick.PriceChange, 1e-6)
	// High/low derived from the change magnitude.
	require.InDelta(t, 2380.0*1.02, tick.High, 1e-6)
	require.InDelta(t, 2380.0*0.98, tick.Low, 1e-6)
	require.Equal(t, int64(1705320000000), tick.Timestamp)
	require.Equal(t, marketdata.SourceCoinGecko, tick.Source)
}

func TestHistory(t *testing.T) {
	provider := newMockProvider(t)

	series, err := provider.History(context.Background(), "ETHUSDT", 3)
	require.NoError(t, err)
	require.Len(t, series, 3)

	second := series[1]
	require.InDelta(t, 2350.0, second.Price, 1e-9)
	require.InDelta(t, 2300.0, second.Open, 1e-9) // open = previous close
	require.InDelta(t, (2350.0-2300.0)/2300.0, second.PriceChange, 1e-9)
	require.InDelta(t, second.Volatility, abs(second.PriceChange), 1e-9)
	require.InDelta(t, 1.1e10, second.Volume, 1)
	for _, sample := range series {
		require.True(t, sample.Low <= sample.Open && sample.Open <= sample.High)
		require.True(t, sample.Low <= sample.Price && sample.Price <= sample.High)
	}
}

func TestOrderBookIsDerived(t *testing.T) {
	provider := newMockProvider(t)

	book, err := provider.OrderBook(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	require.Equal(t, "coingecko-simulated", book.Source)
	require.True(t, book.Demo)
	require.True(t, book.Validate())
	require.NotEmpty(t, book.Bids)
	require.NotEmpty(t, book.Asks)
	require.Greater(t, book.Asks[0].Price, book.Bids[0].Price)
}

func TestMissingCoinReportsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	provider := New(fetch.New(), WithBaseURL(server.URL))
	_, err := provider.CurrentPrice(context.Background(), "ETHUSDT")
	var perr *marketdata.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, marketdata.SourceCoinGecko, perr.Provider)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
