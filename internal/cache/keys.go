package cache

import (
	"strings"
	"time"

	"marketcal/internal/config"
)

// Namespace is the Redis key prefix for the market feed.
const Namespace = "marketcal"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Ticker & Series Keys ---------------------------------------------------

// TickerLatestKey mirrors the most recent ticker for a symbol.
func TickerLatestKey(symbol string) string {
	return formatKey("ticker", "latest", strings.ToUpper(symbol))
}

// TickerBySourceKey scopes a mirrored ticker by its originating provider.
func TickerBySourceKey(source, symbol string) string {
	return formatKey("ticker", "latest", source, strings.ToUpper(symbol))
}

// StatusKey holds the published connectivity status for a symbol.
func StatusKey(symbol string) string {
	return formatKey("status", strings.ToUpper(symbol))
}

// --- TTL Helpers ------------------------------------------------------------

// TickerTTL returns the short-lived TTL for mirrored tickers.
func TickerTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// StatusTTL returns the TTL for published status payloads.
func StatusTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}
