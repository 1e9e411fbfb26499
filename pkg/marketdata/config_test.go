package marketdata

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type nopFetcher struct{}

func (nopFetcher) GetJSON(context.Context, string, http.Header, any) error { return nil }

type fakeProvider struct{ name string }

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CurrentPrice(context.Context, string) (*Ticker, error) { return nil, nil }

func (f *fakeProvider) History(context.Context, string, int) (Series, error) { return nil, nil }

func (f *fakeProvider) OrderBook(context.Context, string) (*OrderBook, error) { return nil, nil }

func registerFakeProvider(t *testing.T, typeName string) {
	t.Helper()
	RegisterProvider(typeName, func(name string, _ *ProviderConfig, _ JSONFetcher) (Provider, error) {
		return &fakeProvider{name: name}, nil
	})
}

func TestLoadConfigDefaults(t *testing.T) {
	registerFakeProvider(t, "fake")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
api_enabled: true
providers:
  primary:
    type: fake
`))
	require.NoError(t, err)
	require.True(t, cfg.APIEnabled)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultCacheDuration, cfg.CacheDuration)
	require.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)
	require.Equal(t, DefaultRateLimit, cfg.RateLimit.Count)
	require.Equal(t, DefaultRateWindow, cfg.RateLimit.Window)
}

func TestLoadConfigParsesDurations(t *testing.T) {
	registerFakeProvider(t, "fake")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
timeout: 3s
cache_duration: 90s
refresh_interval: 12s
rate_limit:
  count: 5
  window: 30s
providers:
  primary:
    type: fake
    timeout: 2s
`))
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.Timeout)
	require.Equal(t, 90*time.Second, cfg.CacheDuration)
	require.Equal(t, 12*time.Second, cfg.RefreshInterval)
	require.Equal(t, 5, cfg.RateLimit.Count)
	require.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	require.Equal(t, 2*time.Second, cfg.Providers["primary"].Timeout)
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	registerFakeProvider(t, "fake")
	t.Setenv("TEST_MARKET_KEY", "secret-key")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
providers:
  primary:
    type: fake
    api_key: ${TEST_MARKET_KEY}
`))
	require.NoError(t, err)
	require.Equal(t, "secret-key", cfg.Providers["primary"].APIKey)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	registerFakeProvider(t, "fake")

	tests := []struct {
		name string
		yaml string
	}{
		{"no providers", `api_enabled: true`},
		{"missing type", "providers:\n  primary: {}\n"},
		{"unknown type", "providers:\n  primary:\n    type: nope\n"},
		{"bad duration", "timeout: fast\nproviders:\n  primary:\n    type: fake\n"},
		{"unknown priority entry", "providers:\n  primary:\n    type: fake\npriority:\n  price: [ghost]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestBuildProvidersAndOrdered(t *testing.T) {
	registerFakeProvider(t, "fake")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
providers:
  first:
    type: fake
  second:
    type: fake
priority:
  price: [second, first]
`))
	require.NoError(t, err)

	providers, err := cfg.BuildProviders(nopFetcher{})
	require.NoError(t, err)
	require.Len(t, providers, 2)

	ordered := Ordered(providers, cfg.Priority.Price)
	require.Len(t, ordered, 2)
	require.Equal(t, "second", ordered[0].Name())
	require.Equal(t, "first", ordered[1].Name())

	// Names absent from the built map are skipped, not errors.
	ordered = Ordered(providers, []string{"second", "ghost"})
	require.Len(t, ordered, 1)
}
