// Package coincap adapts the CoinCap v2 REST API. CoinCap quotes numbers as
// strings and has neither historical volume nor depth data; the gaps are
// filled with documented approximations.
package coincap

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"time"

	"marketcal/pkg/marketdata"
	"marketcal/pkg/marketdata/synth"
)

const defaultBaseURL = "https://api.coincap.io/v2"

var symbolIndex = map[string]string{
	"BTCUSDT": "bitcoin",
	"ETHUSDT": "ethereum",
	"ADAUSDT": "cardano",
	"SOLUSDT": "solana",
	"DOTUSDT": "polkadot",
}

type assetResponse struct {
	Data assetData `json:"data"`
}

type assetData struct {
	PriceUSD         string `json:"priceUsd"`
	ChangePercent24H string `json:"changePercent24Hr"`
	VolumeUSD24H     string `json:"volumeUsd24Hr"`
	MarketCapUSD     string `json:"marketCapUsd"`
}

type historyResponse struct {
	Data []historyPoint `json:"data"`
}

type historyPoint struct {
	PriceUSD string `json:"priceUsd"`
	Time     int64  `json:"time"`
}

// Provider reads market data from CoinCap.
type Provider struct {
	name    string
	baseURL string
	client  marketdata.JSONFetcher

	mu  sync.Mutex
	rng *rand.Rand
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

// New builds a CoinCap provider on top of the shared fetcher.
func New(client marketdata.JSONFetcher, opts ...Option) *Provider {
	p := &Provider{
		name:    marketdata.SourceCoinCap,
		baseURL: defaultBaseURL,
		client:  client,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	marketdata.RegisterProvider("coincap", func(name string, cfg *marketdata.ProviderConfig, client marketdata.JSONFetcher) (marketdata.Provider, error) {
		return New(client, WithBaseURL(cfg.BaseURL)), nil
	})
}

// Name implements marketdata.Provider.
func (p *Provider) Name() string { return p.name }

func (p *Provider) assetID(symbol string) string {
	if id, ok := symbolIndex[symbol]; ok {
		return id
	}
	return "bitcoin"
}

func (p *Provider) fail(err error) error {
	return &marketdata.ProviderError{Provider: p.name, Err: err}
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// CurrentPrice implements marketdata.Provider via the assets endpoint.
func (p *Provider) CurrentPrice(ctx context.Context, symbol string) (*marketdata.Ticker, error) {
	endpoint := fmt.Sprintf("%s/assets/%s", p.baseURL, url.PathEscape(p.assetID(symbol)))
	var resp assetResponse
	if err := p.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, p.fail(err)
	}
	price := parseFloat(resp.Data.PriceUSD)
	if price <= 0 {
		return nil, p.fail(fmt.Errorf("coincap: no data for %s", p.assetID(symbol)))
	}
	changePct := parseFloat(resp.Data.ChangePercent24H)
	changeFrac := math.Abs(changePct) / 100
	return &marketdata.Ticker{
		Symbol:             symbol,
		Price:              price,
		PriceChange:        changePct * price / 100,
		PriceChangePercent: changePct,
		Volume:             parseFloat(resp.Data.VolumeUSD24H),
		High:               price * (1 + changeFrac),
		Low:                price * (1 - changeFrac),
		Timestamp:          time.Now().UnixMilli(),
		Source:             p.name,
	}, nil
}

// History implements marketdata.Provider via the daily history endpoint.
// CoinCap supplies no historical volume, so a random placeholder stands in.
func (p *Provider) History(ctx context.Context, symbol string, lookbackDays int) (marketdata.Series, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	end := time.Now().UnixMilli()
	start := end - int64(lookbackDays)*24*60*60*1000
	endpoint := fmt.Sprintf("%s/assets/%s/history?interval=d1&start=%d&end=%d",
		p.baseURL, url.PathEscape(p.assetID(symbol)), start, end)

	var resp historyResponse
	if err := p.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, p.fail(err)
	}
	if len(resp.Data) == 0 {
		return nil, p.fail(fmt.Errorf("coincap: no historical data for %s", p.assetID(symbol)))
	}

	series := make(marketdata.Series, 0, len(resp.Data))
	for i, point := range resp.Data {
		price := parseFloat(point.PriceUSD)
		prev := price
		if i > 0 {
			prev = parseFloat(resp.Data[i-1].PriceUSD)
		}
		change := 0.0
		if prev != 0 {
			change = (price - prev) / prev
		}
		sample := marketdata.Sample{
			Date:        marketdata.UTCDay(time.UnixMilli(point.Time)),
			Price:       price,
			Open:        prev,
			High:        price * (1 + math.Abs(change)*0.5),
			Low:         price * (1 - math.Abs(change)*0.5),
			Volume:      p.placeholderVolume(),
			PriceChange: change,
			Volatility:  math.Abs(change),
			Source:      p.name,
		}
		sample.NormalizeOHLC()
		series = append(series, sample)
	}
	return series, nil
}

func (p *Provider) placeholderVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() * 1e9
}

// OrderBook implements marketdata.Provider with a derived, labeled ladder;
// CoinCap exposes no depth data.
func (p *Provider) OrderBook(ctx context.Context, symbol string) (*marketdata.OrderBook, error) {
	ticker, err := p.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return synth.DerivedBook(symbol, ticker.Price, marketdata.SimulatedSource(p.name)), nil
}
