package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"marketcal/pkg/marketdata"
)

const defaultTimeout = 10 * time.Second

// Fetcher is the single choke point for upstream GET requests. Every call
// consults the cache before sending, the rate limiter before dialing, and
// writes the cache only after a successful decode.
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	cache      *Cache
	limiter    *Limiter
	injector   FailureInjector
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		if hc != nil {
			f.httpClient = hc
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithCache enables response caching.
func WithCache(cache *Cache) Option {
	return func(f *Fetcher) { f.cache = cache }
}

// WithLimiter enables sliding-window admission control.
func WithLimiter(limiter *Limiter) Option {
	return func(f *Fetcher) { f.limiter = limiter }
}

// WithFailureInjector wires an artificial failure strategy (demo/tests only).
func WithFailureInjector(injector FailureInjector) Option {
	return func(f *Fetcher) { f.injector = injector }
}

// New constructs a Fetcher. Without WithCache/WithLimiter the corresponding
// gate is simply skipped.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: defaultTimeout},
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Cache exposes the fetcher's cache for debug/clear surfaces; may be nil.
func (f *Fetcher) Cache() *Cache { return f.cache }

// Limiter exposes the fetcher's admission gate; may be nil.
func (f *Fetcher) Limiter() *Limiter { return f.limiter }

// GetJSON performs a timeout-bounded GET and decodes the JSON body into out.
// Non-2xx statuses yield *marketdata.StatusError; undecodable bodies yield
// marketdata.ErrMalformedResponse; throttled requests yield
// marketdata.ErrRateLimited without touching the network.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	key := normalizeKey(rawURL)

	if f.cache != nil {
		if payload, source, ok := f.cache.Get(key); ok {
			logx.WithContext(ctx).Debugf("fetch: cache hit %s (%s)", key, source)
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
			}
			return nil
		}
	}

	if f.limiter != nil && !f.limiter.Allow(key) {
		return fmt.Errorf("%w: %s", marketdata.ErrRateLimited, key)
	}

	if f.injector != nil {
		if err := f.injector.Fail(rawURL); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for name, values := range header {
		for _, value := range values {
			req.Header.Set(name, value)
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fetch: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &marketdata.StatusError{Status: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
		}
	}

	if f.cache != nil {
		f.cache.Set(key, body, hostOf(rawURL))
	}
	return nil
}

// normalizeKey is the request identity: the URL with its query in canonical
// encoded order. Keys must never collapse to symbol alone — two requests for
// different endpoints stay distinct.
func normalizeKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.RawQuery = parsed.Query().Encode()
	return parsed.String()
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Host
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
