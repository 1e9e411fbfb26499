// Package cryptocompare adapts the CryptoCompare min-api. It is the only
// free upstream that returns genuine daily OHLC, so its volatility is the
// high/low spread ratio — an explicit override of the canonical
// |priceChange| definition.
package cryptocompare

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

const defaultBaseURL = "https://min-api.cryptocompare.com/data"

// symbolIndex maps canonical pairs to CryptoCompare base-coin symbols.
var symbolIndex = map[string]string{
	"BTCUSDT": "BTC",
	"ETHUSDT": "ETH",
	"ADAUSDT": "ADA",
	"SOLUSDT": "SOL",
	"DOTUSDT": "DOT",
}

type priceMultiFull struct {
	Raw map[string]map[string]rawQuote `json:"RAW"`
}

type rawQuote struct {
	Price           float64 `json:"PRICE"`
	Change24Hour    float64 `json:"CHANGE24HOUR"`
	ChangePct24Hour float64 `json:"CHANGEPCT24HOUR"`
	Volume24HourTo  float64 `json:"VOLUME24HOURTO"`
	High24Hour      float64 `json:"HIGH24HOUR"`
	Low24Hour       float64 `json:"LOW24HOUR"`
	Open24Hour      float64 `json:"OPEN24HOUR"`
	LastUpdate      int64   `json:"LASTUPDATE"`
}

type histoDayResponse struct {
	Data histoDayData `json:"Data"`
}

type histoDayData struct {
	Data []histoDayPoint `json:"Data"`
}

type histoDayPoint struct {
	Time     int64   `json:"time"`
	Close    float64 `json:"close"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	VolumeTo float64 `json:"volumeto"`
}

// Provider reads market data from CryptoCompare.
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

// WithAPIKey attaches the Apikey authorization header.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// New builds a CryptoCompare provider on top of the shared fetcher.
func New(client marketdata.JSONFetcher, opts ...Option) *Provider {
	p := &Provider{
		name:    marketdata.SourceCryptoCompare,
		baseURL: defaultBaseURL,
		client:  client,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	marketdata.RegisterProvider("cryptocompare", func(name string, cfg *marketdata.ProviderConfig, client marketdata.JSONFetcher) (marketdata.Provider, error) {
		return New(client, WithBaseURL(cfg.BaseURL), WithAPIKey(cfg.APIKey)), nil
	})
}

// Name implements marketdata.Provider.
func (p *Provider) Name() string { return p.name }

func (p *Provider) header() http.Header {
	if p.apiKey == "" {
		return nil
	}
	return http.Header{"Authorization": []string{"Apikey " + p.apiKey}}
}

func (p *Provider) coin(symbol string) string {
	if id, ok := symbolIndex[symbol]; ok {
		return id
	}
	return "BTC"
}

func (p *Provider) fail(err error) error {
	return &marketdata.ProviderError{Provider: p.name, Err: err}
}

// CurrentPrice implements marketdata.Provider via pricemultifull.
func (p *Provider) CurrentPrice(ctx context.Context, symbol string) (*marketdata.Ticker, error) {
	coin := p.coin(symbol)
	endpoint := fmt.Sprintf("%s/pricemultifull?fsyms=%s&tsyms=USD", p.baseURL, url.QueryEscape(coin))
	var resp priceMultiFull
	if err := p.client.GetJSON(ctx, endpoint, p.header(), &resp); err != nil {
		return nil, p.fail(err)
	}
	quote, ok := resp.Raw[coin]["USD"]
	if !ok || quote.Price <= 0 {
		return nil, p.fail(fmt.Errorf("cryptocompare: no data for %s", coin))
	}
	timestamp := time.Now().UnixMilli()
	if quote.LastUpdate > 0 {
		timestamp = quote.LastUpdate * 1000
	}
	return &marketdata.Ticker{
		Symbol:             symbol,
		Price:              quote.Price,
		PriceChange:        quote.Change24Hour,
		PriceChangePercent: quote.ChangePct24Hour,
		Volume:             quote.Volume24HourTo,
		High:               quote.High24Hour,
		Low:                quote.Low24Hour,
		Timestamp:          timestamp,
		Source:             p.name,
	}, nil
}

// History implements marketdata.Provider via histoday; genuine OHLC arrives
// on the wire.
func (p *Provider) History(ctx context.Context, symbol string, lookbackDays int) (marketdata.Series, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	endpoint := fmt.Sprintf("%s/v2/histoday?fsym=%s&tsym=USD&limit=%d",
		p.baseURL, url.QueryEscape(p.coin(symbol)), lookbackDays)
	var resp histoDayResponse
	if err := p.client.GetJSON(ctx, endpoint, p.header(), &resp); err != nil {
		return nil, p.fail(err)
	}
	if len(resp.Data.Data) == 0 {
		return nil, p.fail(fmt.Errorf("cryptocompare: no historical data for %s", p.coin(symbol)))
	}

	series := make(marketdata.Series, 0, len(resp.Data.Data))
	for _, point := range resp.Data.Data {
		change := 0.0
		if point.Open != 0 {
			change = (point.Close - point.Open) / point.Open
		}
		volatility := math.Abs(change)
		if point.Close != 0 && point.High >= point.Low {
			volatility = (point.High - point.Low) / point.Close
		}
		sample := marketdata.Sample{
			Date:        marketdata.UTCDay(time.Unix(point.Time, 0)),
			Price:       point.Close,
			Open:        point.Open,
			High:        point.High,
			Low:         point.Low,
			Volume:      point.VolumeTo,
			PriceChange: change,
			Volatility:  volatility,
			Source:      p.name,
		}
		sample.NormalizeOHLC()
		series = append(series, sample)
	}
	return series, nil
}

// OrderBook implements marketdata.Provider with a derived, labeled ladder;
// CryptoCompare's free tier has no depth endpoint.
func (p *Provider) OrderBook(ctx context.Context, symbol string) (*marketdata.OrderBook, error) {
	ticker, err := p.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return synth.DerivedBook(symbol, ticker.Price, marketdata.SimulatedSource(p.name)), nil
}
