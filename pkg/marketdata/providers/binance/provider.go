package binance

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"marketcal/pkg/marketdata"
)

const (
	defaultBaseURL = "https://api.binance.com/api/v3"
	depthLimit     = 20
)

// symbolIndex maps canonical trading pairs to Binance symbols. Binance is
// the one upstream whose identifiers match the canonical scheme.
var symbolIndex = map[string]string{
	"BTCUSDT": "BTCUSDT",
	"ETHUSDT": "ETHUSDT",
	"ADAUSDT": "ADAUSDT",
	"SOLUSDT": "SOLUSDT",
	"DOTUSDT": "DOTUSDT",
}

// Provider reads spot market data from the Binance REST API.
type Provider struct {
	name    string
	baseURL string
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

// New builds a Binance provider on top of the shared fetcher.
func New(client marketdata.JSONFetcher, opts ...Option) *Provider {
	p := &Provider{
		name:    marketdata.SourceBinance,
		baseURL: defaultBaseURL,
		client:  client,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	marketdata.RegisterProvider("binance", func(name string, cfg *marketdata.ProviderConfig, client marketdata.JSONFetcher) (marketdata.Provider, error) {
		return New(client, WithBaseURL(cfg.BaseURL)), nil
	})
}

// Name implements marketdata.Provider.
func (p *Provider) Name() string { return p.name }

func (p *Provider) mapped(symbol string) string {
	if id, ok := symbolIndex[symbol]; ok {
		return id
	}
	return "BTCUSDT"
}

func (p *Provider) fail(err error) error {
	return &marketdata.ProviderError{Provider: p.name, Err: err}
}

// CurrentPrice implements marketdata.Provider via the 24hr ticker endpoint.
func (p *Provider) CurrentPrice(ctx context.Context, symbol string) (*marketdata.Ticker, error) {
	endpoint := fmt.Sprintf("%s/ticker/24hr?symbol=%s", p.baseURL, url.QueryEscape(p.mapped(symbol)))
	var resp ticker24h
	if err := p.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, p.fail(err)
	}
	return &marketdata.Ticker{
		Symbol:             symbol,
		Price:              parseFloat(resp.LastPrice),
		PriceChange:        parseFloat(resp.PriceChange),
		PriceChangePercent: parseFloat(resp.PriceChangePercent),
		Volume:             parseFloat(resp.Volume),
		High:               parseFloat(resp.HighPrice),
		Low:                parseFloat(resp.LowPrice),
		Timestamp:          time.Now().UnixMilli(),
		Source:             p.name,
	}, nil
}

// History implements marketdata.Provider via daily klines. Binance supplies
// genuine OHLC, so volatility uses the high/low spread ratio rather than the
// canonical |priceChange| — an explicit provider override.
func (p *Provider) History(ctx context.Context, symbol string, lookbackDays int) (marketdata.Series, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	endpoint := fmt.Sprintf("%s/klines?symbol=%s&interval=1d&limit=%d",
		p.baseURL, url.QueryEscape(p.mapped(symbol)), lookbackDays)
	var klines []kline
	if err := p.client.GetJSON(ctx, endpoint, nil, &klines); err != nil {
		return nil, p.fail(err)
	}
	if len(klines) == 0 {
		return nil, p.fail(fmt.Errorf("binance: empty kline response for %s", symbol))
	}

	series := make(marketdata.Series, 0, len(klines))
	for _, k := range klines {
		change := 0.0
		if k.Open != 0 {
			change = (k.Close - k.Open) / k.Open
		}
		volatility := math.Abs(change)
		if k.Close != 0 {
			volatility = (k.High - k.Low) / k.Close
		}
		sample := marketdata.Sample{
			Date:        marketdata.UTCDay(time.UnixMilli(k.OpenTime)),
			Price:       k.Close,
			Open:        k.Open,
			High:        k.High,
			Low:         k.Low,
			Volume:      k.Volume,
			PriceChange: change,
			Volatility:  volatility,
			Source:      p.name,
		}
		sample.NormalizeOHLC()
		series = append(series, sample)
	}
	return series, nil
}

// OrderBook implements marketdata.Provider via the depth endpoint; totals
// accumulate from best bid/ask outward.
func (p *Provider) OrderBook(ctx context.Context, symbol string) (*marketdata.OrderBook, error) {
	endpoint := fmt.Sprintf("%s/depth?symbol=%s&limit=%s",
		p.baseURL, url.QueryEscape(p.mapped(symbol)), strconv.Itoa(depthLimit))
	var resp depth
	if err := p.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, p.fail(err)
	}

	book := &marketdata.OrderBook{
		Symbol:       symbol,
		LastUpdateID: resp.LastUpdateID,
		Timestamp:    time.Now().UnixMilli(),
		Source:       p.name,
	}
	for _, raw := range resp.Bids {
		price, quantity, err := parseLevel(raw)
		if err != nil {
			return nil, p.fail(err)
		}
		book.Bids = append(book.Bids, marketdata.BookLevel{Price: price, Quantity: quantity})
	}
	for _, raw := range resp.Asks {
		price, quantity, err := parseLevel(raw)
		if err != nil {
			return nil, p.fail(err)
		}
		book.Asks = append(book.Asks, marketdata.BookLevel{Price: price, Quantity: quantity})
	}
	marketdata.CumulativeTotals(book.Bids)
	marketdata.CumulativeTotals(book.Asks)
	return book, nil
}
