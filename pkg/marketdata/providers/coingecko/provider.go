// Package coingecko adapts the CoinGecko v3 REST API. CoinGecko has no depth
// endpoint on the free tier, so order books are derived from the current
// price and tagged "coingecko-simulated".
package coingecko

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"marketcal/pkg/marketdata"
	"marketcal/pkg/marketdata/synth"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// symbolIndex maps canonical pairs to CoinGecko coin IDs.
var symbolIndex = map[string]string{
	"BTCUSDT": "bitcoin",
	"ETHUSDT": "ethereum",
	"ADAUSDT": "cardano",
	"SOLUSDT": "solana",
	"DOTUSDT": "polkadot",
}

type simplePrice struct {
	USD           float64 `json:"usd"`
	USD24hChange  float64 `json:"usd_24h_change"`
	USD24hVol     float64 `json:"usd_24h_vol"`
	LastUpdatedAt int64   `json:"last_updated_at"`
}

type marketChart struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// Provider reads market data from CoinGecko.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	client  marketdata.JSONFetcher
}

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL overrides the API root.
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		if base != "" {
			p.baseURL = base
		}
	}
}

// WithAPIKey attaches the demo API key header to every request.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// New builds a CoinGecko provider on top of the shared fetcher.
func New(client marketdata.JSONFetcher, opts ...Option) *Provider {
	p := &Provider{
		name:    marketdata.SourceCoinGecko,
		baseURL: defaultBaseURL,
		client:  client,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	marketdata.RegisterProvider("coingecko", func(name string, cfg *marketdata.ProviderConfig, client marketdata.JSONFetcher) (marketdata.Provider, error) {
		return New(client, WithBaseURL(cfg.BaseURL), WithAPIKey(cfg.APIKey)), nil
	})
}

// Name implements marketdata.Provider.
func (p *Provider) Name() string { return p.name }

func (p *Provider) header() http.Header {
	if p.apiKey == "" {
		return nil
	}
	return http.Header{"X-Cg-Demo-Api-Key": []string{p.apiKey}}
}

func (p *Provider) coinID(symbol string) string {
	if id, ok := symbolIndex[symbol]; ok {
		return id
	}
	return "bitcoin"
}

func (p *Provider) fail(err error) error {
	return &marketdata.ProviderError{Provider: p.name, Err: err}
}

// CurrentPrice implements marketdata.Provider. CoinGecko omits high/low, so
// both are derived from the 24h change magnitude.
func (p *Provider) CurrentPrice(ctx context.Context, symbol string) (*marketdata.Ticker, error) {
	coinID := p.coinID(symbol)
	endpoint := fmt.Sprintf(
		"%s/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true&include_24hr_vol=true&include_last_updated_at=true",
		p.baseURL, url.QueryEscape(coinID))

	var resp map[string]simplePrice
	if err := p.client.GetJSON(ctx, endpoint, p.header(), &resp); err != nil {
		return nil, p.fail(err)
	}
	coin, ok := resp[coinID]
	if !ok {
		return nil, p.fail(fmt.Errorf("coingecko: no data for %s", coinID))
	}

	changeFrac := math.Abs(coin.USD24hChange) / 100
	timestamp := time.Now().UnixMilli()
	if coin.LastUpdatedAt > 0 {
		timestamp = coin.LastUpdatedAt * 1000
	}
	return &marketdata.Ticker{
		Symbol:             symbol,
		Price:              coin.USD,
		PriceChange:        coin.USD24hChange * coin.USD / 100,
		PriceChangePercent: coin.USD24hChange,
		Volume:             coin.USD24hVol,
		High:               coin.USD * (1 + changeFrac),
		Low:                coin.USD * (1 - changeFrac),
		Timestamp:          timestamp,
		Source:             p.name,
	}, nil
}

// History implements marketdata.Provider via the market_chart endpoint.
// Open is the previous close; high/low are synthesized so the OHLC ordering
// invariant holds.
func (p *Provider) History(ctx context.Context, symbol string, lookbackDays int) (marketdata.Series, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	coinID := p.coinID(symbol)
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d&interval=daily",
		p.baseURL, url.PathEscape(coinID), lookbackDays)

	var chart marketChart
	if err := p.client.GetJSON(ctx, endpoint, p.header(), &chart); err != nil {
		return nil, p.fail(err)
	}
	if len(chart.Prices) == 0 {
		return nil, p.fail(fmt.Errorf("coingecko: no historical data for %s", coinID))
	}

	series := make(marketdata.Series, 0, len(chart.Prices))
	for i, point := range chart.Prices {
		price := point[1]
		prev := price
		if i > 0 {
			prev = chart.Prices[i-1][1]
		}
		change := 0.0
		if prev != 0 {
			change = (price - prev) / prev
		}
		volume := 0.0
		if i < len(chart.TotalVolumes) {
			volume = chart.TotalVolumes[i][1]
		}
		sample := marketdata.Sample{
			Date:        marketdata.UTCDay(time.UnixMilli(int64(point[0]))),
			Price:       price,
			Open:        prev,
			High:        price * (1 + math.Abs(change)*0.5),
			Low:         price * (1 - math.Abs(change)*0.5),
			Volume:      volume,
			PriceChange: change,
			Volatility:  math.Abs(change),
			Source:      p.name,
		}
		sample.NormalizeOHLC()
		series = append(series, sample)
	}
	return series, nil
}

// OrderBook implements marketdata.Provider by deriving a labeled synthetic
// ladder from the current price; failing outright would starve the UI of a
// book entirely.
func (p *Provider) OrderBook(ctx context.Context, symbol string) (*marketdata.OrderBook, error) {
	ticker, err := p.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return synth.DerivedBook(symbol, ticker.Price, marketdata.SimulatedSource(p.name)), nil
}
