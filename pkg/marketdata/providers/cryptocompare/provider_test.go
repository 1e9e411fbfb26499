package cryptocompare

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
	mux.HandleFunc("/pricemultifull", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "BTC", r.URL.Query().Get("fsyms"))
		require.Equal(t, "Apikey cc-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"RAW": {"BTC": {"USD": {
			"PRICE": 43250.0,
			"CHANGE24HOUR": 520.5,
			"CHANGEPCT24HOUR": 1.22,
			"VOLUME24HOURTO": 28500000000,
			"HIGH24HOUR": 43800.0,
			"LOW24HOUR": 42600.0,
			"OPEN24HOUR": 42729.5,
			"LASTUPDATE": 1705320000
		}}}}`)
	})
	mux.HandleFunc("/v2/histoday", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Data": {"Data": [
			{"time": 1705276800, "close": 42700.0, "open": 42000.0, "high": 43000.0, "low": 41800.0, "volumeto": 2.5e10},
			{"time": 1705363200, "close": 43250.0, "open": 42700.0, "high": 43800.0, "low": 42600.0, "volumeto": 2.85e10}
		]}}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return New(fetch.New(), WithBaseURL(server.URL), WithAPIKey("cc-key"))
}

func TestCurrentPrice(t *testing.T) {
	provider := newMockProvider(t)

	tick, err := provider.CurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.InDelta(t, 43250.0, tick.Price, 1e-9)
	require.InDelta(t, 520.5, tick.PriceChange, 1e-9)
	require.InDelta(t, 43800.0, tick.High, 1e-9)
	require.InDelta(t, 42600.0, tick.Low, 1e-9)
	require.Equal(t, int64(1705320000000), tick.Timestamp)
	require.Equal(t, marketdata.SourceCryptoCompare, tick.Source)
}

func TestHistorySpreadVolatility(t *testing.T) {
	provider := newMockProvider(t)

	series, err := provider.History(context.Background(), "BTCUSDT", 2)
	require.NoError(t, err)
	require.Len(t, series, 2)

	last := series[1]
	require.InDelta(t, (43250.0-42700.0)/42700.0, last.PriceChange, 1e-9)
	// Genuine OHLC arrives, so volatility is the spread ratio.
	require.InDelta(t, (43800.0-42600.0)/43250.0, last.Volatility, 1e-9)
	for _, sample := range series {
		require.True(t, sample.Low <= sample.Open && sample.Open <= sample.High)
		require.True(t, sample.Low <= sample.Price && sample.Price <= sample.High)
	}
}

func TestOrderBookIsDerived(t *testing.T) {
	provider := newMockProvider(t)

	book, err := provider.OrderBook(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, "cryptocompare-simulated", book.Source)
	require.True(t, book.Demo)
	require.True(t, book.Validate())
}

func TestMissingQuoteReportsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"RAW": {}}`)
	}))
	defer server.Close()

	provider := New(fetch.New(), WithBaseURL(server.URL))
	_, err := provider.CurrentPrice(context.Background(), "BTCUSDT")
	var perr *marketdata.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, marketdata.SourceCryptoCompare, perr.Provider)
}
