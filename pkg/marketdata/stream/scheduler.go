// Package stream keeps the most recent data point of a symbol fresh: a
// jittered, self-re-arming refresh loop plus a simulated push channel for
// upstreams without streaming APIs.
package stream

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"marketcal/pkg/marketdata"
)

// Status is the scheduler's connectivity state machine:
// Idle → Connecting → {Live, Polling, Degraded} → Idle.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusLive       Status = "live"    // succeeding via the simulated push channel
	StatusPolling    Status = "polling" // succeeding via pull refresh
	StatusDegraded   Status = "degraded"
	StatusDemo       Status = "demo" // running entirely on fallback data
)

const (
	defaultBaseInterval = 5 * time.Second
	defaultJitter       = 10 * time.Second
)

// RefreshFunc produces a fresh tick for the symbol. It runs off the
// scheduler goroutine and must honor ctx cancellation.
type RefreshFunc func(ctx context.Context, symbol string) (*marketdata.Ticker, error)

// ApplyFunc folds a successful tick into stored state.
type ApplyFunc func(ctx context.Context, symbol string, tick *marketdata.Ticker)

// Scheduler re-arms a single timer with a fresh jittered delay each cycle —
// never a fixed interval, so concurrent sessions don't herd. Ticks are
// serialized: the next one is not scheduled until the previous result has
// been applied or discarded. An epoch token captured at tick start and
// re-checked at apply time guarantees results from a superseded run never
// touch state.
type Scheduler struct {
	// runMu serializes the apply phase against Start and Stop: a result is
	// either fully applied before they return, or discarded by the epoch
	// bump. It is always acquired before mu.
	runMu sync.Mutex

	mu      sync.Mutex
	base    time.Duration
	jitter  time.Duration
	rng     *rand.Rand
	refresh RefreshFunc
	apply   ApplyFunc
	live    bool // simulated push channel: report Live instead of Polling

	epoch    int64
	timer    *time.Timer
	cancel   context.CancelFunc
	symbol   string
	status   Status
	onStatus func(symbol string, status Status)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the base delay and the jitter span added per cycle.
func WithInterval(base, jitter time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if base > 0 {
			s.base = base
		}
		if jitter >= 0 {
			s.jitter = jitter
		}
	}
}

// WithStatusFunc observes state transitions.
func WithStatusFunc(fn func(symbol string, status Status)) SchedulerOption {
	return func(s *Scheduler) { s.onStatus = fn }
}

// WithPushChannel marks the refresh source as push-like, so successful
// cycles report Live rather than Polling.
func WithPushChannel() SchedulerOption {
	return func(s *Scheduler) { s.live = true }
}

// WithRand injects the jitter source, for deterministic tests.
func WithRand(rng *rand.Rand) SchedulerOption {
	return func(s *Scheduler) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// NewScheduler builds a scheduler around the given refresh and apply funcs.
func NewScheduler(refresh RefreshFunc, apply ApplyFunc, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		base:    defaultBaseInterval,
		jitter:  defaultJitter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		refresh: refresh,
		apply:   apply,
		status:  StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current connectivity state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Symbol returns the symbol the scheduler currently serves.
func (s *Scheduler) Symbol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbol
}

// Start begins refreshing the symbol. A second Start supersedes the first:
// the epoch advances, so any in-flight result for the old symbol is
// discarded at apply time.
func (s *Scheduler) Start(ctx context.Context, symbol string) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.mu.Lock()
	s.stopLocked()
	s.epoch++
	epoch := s.epoch
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.symbol = symbol
	s.setStatusLocked(StatusConnecting)
	s.armLocked(runCtx, epoch, symbol)
	s.mu.Unlock()
}

// Stop halts the loop: no further ticks fire and in-flight results are
// discarded. An apply already underway finishes before Stop returns; after
// that, nothing mutates state. Idle is both initial and terminal.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.mu.Lock()
	s.stopLocked()
	s.setStatusLocked(StatusIdle)
	s.mu.Unlock()
}

func (s *Scheduler) stopLocked() {
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// armLocked schedules exactly one tick after a fresh jittered delay.
func (s *Scheduler) armLocked(ctx context.Context, epoch int64, symbol string) {
	delay := s.base
	if s.jitter > 0 {
		delay += time.Duration(s.rng.Int63n(int64(s.jitter)))
	}
	s.timer = time.AfterFunc(delay, func() {
		s.tick(ctx, epoch, symbol)
	})
}

func (s *Scheduler) tick(ctx context.Context, epoch int64, symbol string) {
	if ctx.Err() != nil {
		return
	}
	tick, err := s.refresh(ctx, symbol)

	// Everything past the refresh runs under runMu: a Stop or Start cannot
	// land between the epoch check and the apply, and the next tick is not
	// armed until this result has been applied or discarded.
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if epoch != s.epoch {
		// Superseded while in flight; the result belongs to a previous
		// context and must not reach the store.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.setStatusLocked(StatusDegraded)
		s.armLocked(ctx, epoch, symbol)
		s.mu.Unlock()
		logx.WithContext(ctx).Errorf("stream: refresh %s failed: %v", symbol, err)
		return
	}
	switch {
	case tick != nil && tick.Demo:
		s.setStatusLocked(StatusDemo)
	case s.live:
		s.setStatusLocked(StatusLive)
	default:
		s.setStatusLocked(StatusPolling)
	}
	s.mu.Unlock()

	if tick != nil && s.apply != nil {
		s.apply(ctx, symbol, tick)
	}

	s.mu.Lock()
	if epoch == s.epoch {
		s.armLocked(ctx, epoch, symbol)
	}
	s.mu.Unlock()
}

func (s *Scheduler) setStatusLocked(status Status) {
	if s.status == status {
		return
	}
	s.status = status
	if s.onStatus != nil {
		symbol := s.symbol
		fn := s.onStatus
		go fn(symbol, status)
	}
}
