package marketdata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAPIDisabled is returned when the real-API feature flag is off. It is not
// retried; callers surface a static banner state instead.
var ErrAPIDisabled = errors.New("marketdata: real API is disabled")

// ErrRateLimited reports a sliding-window admission denial for an endpoint.
// Callers should back off; it is not a provider failure for fallback purposes.
var ErrRateLimited = errors.New("marketdata: rate limit exceeded")

// ErrMalformedResponse reports a 2xx body that failed to decode as JSON.
var ErrMalformedResponse = errors.New("marketdata: malformed response")

// StatusError reports a non-2xx upstream HTTP status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("marketdata: http status %d", e.Status)
	}
	return fmt.Sprintf("marketdata: http status %d: %s", e.Status, e.Body)
}

// ProviderError wraps a single adapter's failure with its provider name.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AllProvidersFailed is raised when every adapter in the priority list failed.
// The caller decides between stale cache and synthesis; the client never
// synthesizes on its own.
type AllProvidersFailed struct {
	Op     string
	Errors []error
}

func (e *AllProvidersFailed) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("marketdata: all providers failed for %s: [%s]", e.Op, strings.Join(parts, "; "))
}

// IsExhausted reports whether err represents total provider exhaustion.
func IsExhausted(err error) bool {
	var all *AllProvidersFailed
	return errors.As(err, &all)
}
