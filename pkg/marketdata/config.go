package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"marketcal/pkg/confkit"
)

// Default tuning knobs, overridable from YAML/env.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultCacheDuration   = 5 * time.Minute
	DefaultRateLimit       = 30
	DefaultRateWindow      = time.Minute
	DefaultRefreshInterval = 30 * time.Second
)

// JSONFetcher is the single choke point through which all adapter requests
// flow. The concrete implementation (pkg/marketdata/fetch) applies caching,
// rate limiting and the bounded timeout.
type JSONFetcher interface {
	GetJSON(ctx context.Context, url string, header http.Header, out any) error
}

// Config describes the market data acquisition layer: global switches, the
// set of upstream providers, and the per-operation priority orderings.
type Config struct {
	APIEnabled bool `yaml:"api_enabled"`

	// StreamSimulation routes realtime refreshes through the websocket
	// simulator instead of polling upstream every cycle.
	StreamSimulation bool `yaml:"stream_simulation"`

	TimeoutRaw         string        `yaml:"timeout"`
	Timeout            time.Duration `yaml:"-"`
	CacheDurationRaw   string        `yaml:"cache_duration"`
	CacheDuration      time.Duration `yaml:"-"`
	RefreshIntervalRaw string        `yaml:"refresh_interval"`
	RefreshInterval    time.Duration `yaml:"-"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Providers map[string]*ProviderConfig `yaml:"providers"`
	Priority  PriorityConfig             `yaml:"priority"`
}

// RateLimitConfig bounds request admission per endpoint.
type RateLimitConfig struct {
	Count     int           `yaml:"count"`
	WindowRaw string        `yaml:"window"`
	Window    time.Duration `yaml:"-"`
}

// PriorityConfig orders providers per operation. Earlier entries win even if
// a later one might be fresher; stability over optimality.
type PriorityConfig struct {
	Price   []string `yaml:"price"`
	History []string `yaml:"history"`
	Book    []string `yaml:"book"`
}

// ProviderConfig configures a single upstream adapter.
type ProviderConfig struct {
	Type string `yaml:"type"`

	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// ProviderBuilder constructs a Provider from configuration. The shared
// fetcher is injected so every adapter goes through the same cache and
// rate-limit gates.
type ProviderBuilder func(name string, cfg *ProviderConfig, client JSONFetcher) (Provider, error)

var (
	providerRegistry   = make(map[string]ProviderBuilder)
	providerRegistryMu sync.RWMutex
)

// RegisterProvider registers an adapter constructor under a type name.
func RegisterProvider(typeName string, builder ProviderBuilder) {
	providerRegistryMu.Lock()
	defer providerRegistryMu.Unlock()
	providerRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupProviderBuilder(typeName string) (ProviderBuilder, bool) {
	providerRegistryMu.RLock()
	defer providerRegistryMu.RUnlock()
	builder, ok := providerRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads market configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal market config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	var err error
	if c.Timeout, err = parseDurationField("timeout", c.TimeoutRaw, DefaultTimeout); err != nil {
		return err
	}
	if c.CacheDuration, err = parseDurationField("cache_duration", c.CacheDurationRaw, DefaultCacheDuration); err != nil {
		return err
	}
	if c.RefreshInterval, err = parseDurationField("refresh_interval", c.RefreshIntervalRaw, DefaultRefreshInterval); err != nil {
		return err
	}
	if c.RateLimit.Count <= 0 {
		c.RateLimit.Count = DefaultRateLimit
	}
	if c.RateLimit.Window, err = parseDurationField("rate_limit.window", c.RateLimit.WindowRaw, DefaultRateWindow); err != nil {
		return err
	}
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		if provider.Timeout, err = parseDurationField(name+".timeout", provider.TimeoutRaw, 0); err != nil {
			return err
		}
	}
	return nil
}

func parseDurationField(name, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(os.ExpandEnv(raw))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("market config: invalid %s %q: %w", name, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("market config: %s must be positive, got %s", name, d)
	}
	return d, nil
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	p.APIKey = strings.TrimSpace(os.ExpandEnv(p.APIKey))
	p.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.TimeoutRaw))
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("market config: providers cannot be empty")
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("market config: provider name cannot be empty")
		}
		if provider == nil {
			return fmt.Errorf("market config: provider %s is nil", name)
		}
		if strings.TrimSpace(provider.Type) == "" {
			return fmt.Errorf("market config: provider %s must specify type", name)
		}
		if _, ok := lookupProviderBuilder(provider.Type); !ok {
			return fmt.Errorf("market config: provider %s has unsupported type %q", name, provider.Type)
		}
	}
	for _, list := range [][]string{c.Priority.Price, c.Priority.History, c.Priority.Book} {
		for _, name := range list {
			if _, ok := c.Providers[name]; !ok {
				return fmt.Errorf("market config: priority entry %q not defined under providers", name)
			}
		}
	}
	return nil
}

// BuildProviders instantiates all configured adapters against the shared fetcher.
func (c *Config) BuildProviders(client JSONFetcher) (map[string]Provider, error) {
	result := make(map[string]Provider, len(c.Providers))
	for name, providerCfg := range c.Providers {
		builder, ok := lookupProviderBuilder(providerCfg.Type)
		if !ok {
			return nil, fmt.Errorf("market provider %s: unsupported type %q", name, providerCfg.Type)
		}
		provider, err := builder(name, providerCfg, client)
		if err != nil {
			return nil, fmt.Errorf("market provider %s: %w", name, err)
		}
		result[name] = provider
	}
	return result, nil
}

// Ordered resolves a priority list against built providers, preserving order
// and skipping names that did not build.
func Ordered(providers map[string]Provider, order []string) []Provider {
	out := make([]Provider, 0, len(order))
	for _, name := range order {
		if p, ok := providers[name]; ok {
			out = append(out, p)
		}
	}
	return out
}
