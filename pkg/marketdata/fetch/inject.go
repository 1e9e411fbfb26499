package fetch

import (
	"fmt"
	"math/rand"
	"sync"
)

// FailureInjector decides whether a request should fail artificially. It
// exists for demo and test builds only; production fetchers run without one.
type FailureInjector interface {
	// Fail returns a non-nil error when the request to url should be dropped.
	Fail(url string) error
}

// RandomInjector fails a fixed fraction of requests using a seeded source,
// so demo runs are reproducible.
type RandomInjector struct {
	mu   sync.Mutex
	rng  *rand.Rand
	rate float64
}

// NewRandomInjector fails requests with the given probability in [0,1].
func NewRandomInjector(rate float64, seed int64) *RandomInjector {
	return &RandomInjector{rng: rand.New(rand.NewSource(seed)), rate: rate}
}

// Fail implements FailureInjector.
func (r *RandomInjector) Fail(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng.Float64() < r.rate {
		return fmt.Errorf("injected failure for %s", url)
	}
	return nil
}
