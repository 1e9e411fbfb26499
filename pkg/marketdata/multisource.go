package marketdata

import (
	"context"
	"errors"

	"github.com/zeromicro/go-zero/core/logx"
)

// MultiSourceClient orchestrates provider adapters in priority order. Each
// operation tries adapters front to back and returns the first success;
// adapter failures are logged and absorbed. On exhaustion it raises
// *AllProvidersFailed — deciding between stale cache and synthesis is the
// caller's job, never this client's.
type MultiSourceClient struct {
	apiEnabled bool
	price      []Provider
	history    []Provider
	book       []Provider
}

// MultiSourceOption customises the client.
type MultiSourceOption func(*MultiSourceClient)

// WithPriceProviders sets the current-price priority list.
func WithPriceProviders(providers ...Provider) MultiSourceOption {
	return func(c *MultiSourceClient) { c.price = providers }
}

// WithHistoryProviders sets the historical-series priority list.
func WithHistoryProviders(providers ...Provider) MultiSourceOption {
	return func(c *MultiSourceClient) { c.history = providers }
}

// WithBookProviders sets the order-book priority list.
func WithBookProviders(providers ...Provider) MultiSourceOption {
	return func(c *MultiSourceClient) { c.book = providers }
}

// WithAPIEnabled toggles the global real-API feature flag.
func WithAPIEnabled(enabled bool) MultiSourceOption {
	return func(c *MultiSourceClient) { c.apiEnabled = enabled }
}

// NewMultiSourceClient builds a client. With no per-operation override, all
// three operations share the same ordered provider list.
func NewMultiSourceClient(providers []Provider, opts ...MultiSourceOption) *MultiSourceClient {
	c := &MultiSourceClient{
		apiEnabled: true,
		price:      providers,
		history:    providers,
		book:       providers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewMultiSourceClientFromConfig wires priority lists from configuration.
func NewMultiSourceClientFromConfig(cfg *Config, providers map[string]Provider) *MultiSourceClient {
	all := make([]Provider, 0, len(providers))
	for _, name := range sortedNames(providers) {
		all = append(all, providers[name])
	}
	pick := func(order []string) []Provider {
		if len(order) == 0 {
			return all
		}
		return Ordered(providers, order)
	}
	return NewMultiSourceClient(all,
		WithAPIEnabled(cfg.APIEnabled),
		WithPriceProviders(pick(cfg.Priority.Price)...),
		WithHistoryProviders(pick(cfg.Priority.History)...),
		WithBookProviders(pick(cfg.Priority.Book)...),
	)
}

func sortedNames(providers map[string]Provider) []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

// GetCurrentPrice returns the first successful ticker in priority order.
func (c *MultiSourceClient) GetCurrentPrice(ctx context.Context, symbol string) (*Ticker, error) {
	var result *Ticker
	err := c.iterate(ctx, "current price", c.price, func(ctx context.Context, p Provider) error {
		ticker, err := p.CurrentPrice(ctx, symbol)
		if err != nil {
			return err
		}
		result = ticker
		return nil
	})
	return result, err
}

// GetHistoricalData returns the first successful daily series in priority order.
func (c *MultiSourceClient) GetHistoricalData(ctx context.Context, symbol string, lookbackDays int) (Series, error) {
	var result Series
	err := c.iterate(ctx, "historical data", c.history, func(ctx context.Context, p Provider) error {
		series, err := p.History(ctx, symbol, lookbackDays)
		if err != nil {
			return err
		}
		result = series
		return nil
	})
	return result, err
}

// GetOrderBook returns the first successful depth snapshot in priority order.
func (c *MultiSourceClient) GetOrderBook(ctx context.Context, symbol string) (*OrderBook, error) {
	var result *OrderBook
	err := c.iterate(ctx, "order book", c.book, func(ctx context.Context, p Provider) error {
		book, err := p.OrderBook(ctx, symbol)
		if err != nil {
			return err
		}
		result = book
		return nil
	})
	return result, err
}

func (c *MultiSourceClient) iterate(ctx context.Context, op string, providers []Provider, call func(context.Context, Provider) error) error {
	if !c.apiEnabled {
		return ErrAPIDisabled
	}
	failures := make([]error, 0, len(providers))
	rateLimitedOnly := len(providers) > 0
	for _, provider := range providers {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := call(ctx, provider)
		if err == nil {
			logx.WithContext(ctx).Infof("marketdata: %s via %s", op, provider.Name())
			return nil
		}
		if !errors.Is(err, ErrRateLimited) {
			rateLimitedOnly = false
		}
		logx.WithContext(ctx).Errorf("marketdata: %s via %s failed: %v", op, provider.Name(), err)
		var perr *ProviderError
		if !errors.As(err, &perr) {
			err = &ProviderError{Provider: provider.Name(), Err: err}
		}
		failures = append(failures, err)
	}
	if rateLimitedOnly {
		// Every adapter was throttled locally; this is back-off territory,
		// not a data outage, so don't trigger the fallback chain.
		return ErrRateLimited
	}
	return &AllProvidersFailed{Op: op, Errors: failures}
}
