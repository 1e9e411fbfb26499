package marketdata

import "context"

// Provider describes one upstream market data source. Each adapter owns its
// symbol mapping, base URL and response normalization; failures propagate as
// *ProviderError. Adapters without genuine order-book data derive a
// synthetic-but-labeled book from the current price instead of failing.
type Provider interface {
	// Name returns the provenance tag attached to this provider's data.
	Name() string
	// CurrentPrice returns the latest ticker snapshot for a canonical symbol.
	CurrentPrice(ctx context.Context, symbol string) (*Ticker, error)
	// History returns a daily series covering the trailing lookback window.
	History(ctx context.Context, symbol string, lookbackDays int) (Series, error)
	// OrderBook returns a depth snapshot for the symbol.
	OrderBook(ctx context.Context, symbol string) (*OrderBook, error)
}
