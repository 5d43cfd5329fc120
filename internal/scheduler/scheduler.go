// Package scheduler drives the price-monitor loop: every check
// interval it lists active triggers, fetches a deduplicated set of
// quotes, and hands any trigger whose condition is met off to the
// dispatcher. The loop sleeps in one-second slices rather than one
// long timer so cancelling the context passed to Run stops it within a
// second instead of waiting out a whole interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/trigger-engine/internal/domain"
	"github.com/aristath/trigger-engine/internal/quote"
)

// Registry is the active-trigger source the scheduler polls.
type Registry interface {
	ListActive() ([]*domain.Trigger, error)
}

// Dispatcher executes a trigger whose condition has just been observed met.
type Dispatcher interface {
	Execute(ctx context.Context, t *domain.Trigger, observedPrice float64) error
}

// Config tunes the scheduler's cadence and fan-out.
type Config struct {
	CheckInterval    time.Duration
	MaxQuoteWorkers  int
	QuoteFetchBudget time.Duration
	CondEpsilon      float64
}

// Stats is a point-in-time snapshot of scheduler activity, exposed
// through the ops surface.
type Stats struct {
	Checks    uint64
	Errors    uint64
	LastCheck time.Time
}

// Scheduler is the price-monitor loop.
type Scheduler struct {
	cfg        Config
	registry   Registry
	quoteCache *quote.Cache
	quoteSrc   quote.Source
	dispatcher Dispatcher
	log        zerolog.Logger

	statsMu sync.Mutex
	stats   Stats

	forceCh chan struct{}
}

// New builds a Scheduler.
func New(cfg Config, registry Registry, quoteCache *quote.Cache, quoteSrc quote.Source, dispatcher Dispatcher, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		registry:   registry,
		quoteCache: quoteCache,
		quoteSrc:   quoteSrc,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "scheduler").Logger(),
		forceCh:    make(chan struct{}, 1),
	}
}

// Run blocks, driving the check loop until ctx is cancelled. Callers
// run it in its own goroutine and cancel ctx to stop it.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.cfg.CheckInterval).Msg("scheduler started")
	defer s.log.Info().Msg("scheduler stopped")

	for {
		if !s.sleepInSlices(ctx) {
			return
		}
		s.runCheck(ctx)
	}
}

// sleepInSlices waits up to CheckInterval in one-second increments,
// returning false as soon as ctx is cancelled and true early as soon as
// a forced check is requested, instead of blocking for the full interval
// regardless.
func (s *Scheduler) sleepInSlices(ctx context.Context) bool {
	elapsed := time.Duration(0)
	for elapsed < s.cfg.CheckInterval {
		select {
		case <-ctx.Done():
			return false
		case <-s.forceCh:
			return true
		case <-time.After(time.Second):
			elapsed += time.Second
		}
	}
	return true
}

// ForceCheck requests an out-of-band check cycle without waiting for
// the current interval to elapse.
func (s *Scheduler) ForceCheck() {
	select {
	case s.forceCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runCheck(ctx context.Context) {
	s.quoteCache.Sweep()

	triggers, err := s.registry.ListActive()
	if err != nil {
		s.recordCheck(err)
		s.log.Error().Err(err).Msg("failed to list active triggers")
		return
	}

	symbols := dedupeSymbols(triggers)
	prices := s.fetchPrices(ctx, symbols)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxInt(s.cfg.MaxQuoteWorkers, 1))
	for _, t := range triggers {
		t := t
		price, ok := prices[t.Symbol]
		if !ok {
			continue
		}
		if !t.IsConditionMet(price, s.cfg.CondEpsilon) {
			continue
		}
		group.Go(func() error {
			dispatchCtx, cancel := context.WithTimeout(gctx, 60*time.Second)
			defer cancel()
			if err := s.dispatcher.Execute(dispatchCtx, t, price); err != nil {
				s.log.Error().Err(err).Str("triggerId", t.ID).Msg("dispatch failed")
			}
			return nil
		})
	}
	_ = group.Wait()

	s.recordCheck(nil)
}

func (s *Scheduler) fetchPrices(ctx context.Context, symbols []string) map[string]float64 {
	prices := make(map[string]float64, len(symbols))
	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxInt(s.cfg.MaxQuoteWorkers, 1))
	for _, symbol := range symbols {
		symbol := symbol
		if q, ok := s.quoteCache.Get(symbol); ok {
			mu.Lock()
			prices[symbol] = q.Price
			mu.Unlock()
			continue
		}
		group.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, s.cfg.QuoteFetchBudget)
			defer cancel()
			price, observedAt, err := s.quoteSrc.FetchPrice(fetchCtx, symbol)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("quote fetch failed")
				return nil
			}
			s.quoteCache.Put(symbol, price, observedAt)
			mu.Lock()
			prices[symbol] = price
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return prices
}

func (s *Scheduler) recordCheck(err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Checks++
	s.stats.LastCheck = time.Now()
	if err != nil {
		s.stats.Errors++
	}
}

// Stats returns a snapshot of the scheduler's activity counters.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func dedupeSymbols(triggers []*domain.Trigger) []string {
	seen := make(map[string]struct{}, len(triggers))
	symbols := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if _, ok := seen[t.Symbol]; ok {
			continue
		}
		seen[t.Symbol] = struct{}{}
		symbols = append(symbols, t.Symbol)
	}
	return symbols
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
