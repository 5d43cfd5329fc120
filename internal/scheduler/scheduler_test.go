package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trigger-engine/internal/domain"
	"github.com/aristath/trigger-engine/internal/quote"
)

type fakeRegistry struct {
	triggers []*domain.Trigger
}

func (r *fakeRegistry) ListActive() ([]*domain.Trigger, error) { return r.triggers, nil }

type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
}

func (s *fakeSource) FetchPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.prices[symbol], time.Now(), nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	executed []string
}

func (d *fakeDispatcher) Execute(ctx context.Context, t *domain.Trigger, observedPrice float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executed = append(d.executed, t.ID)
	return nil
}

func newTrigger(id, symbol string, condition domain.Condition, triggerPrice float64) *domain.Trigger {
	now := time.Now().UTC()
	return &domain.Trigger{
		ID: id, TenantID: "tenant1", Symbol: symbol, Condition: condition,
		TriggerPrice: triggerPrice, Action: domain.ActionBuy, OrderKind: domain.OrderKindMarket,
		TradeClass: domain.TradeClassCash, Quantity: 1, BrokerName: "demo",
		Status: domain.StatusActive, CreatedAt: now, UpdatedAt: now,
	}
}

func TestRunCheck_DispatchesOnlyMatchingTriggers(t *testing.T) {
	reg := &fakeRegistry{triggers: []*domain.Trigger{
		newTrigger("t1", "AAPL", domain.ConditionGE, 150),
		newTrigger("t2", "MSFT", domain.ConditionLE, 300),
	}}
	src := &fakeSource{prices: map[string]float64{"AAPL": 160, "MSFT": 310}}
	disp := &fakeDispatcher{}
	cache := quote.NewCache(10 * time.Second)

	s := New(Config{
		CheckInterval: time.Hour, MaxQuoteWorkers: 4,
		QuoteFetchBudget: time.Second, CondEpsilon: 0.01,
	}, reg, cache, src, disp, zerolog.Nop())

	s.runCheck(context.Background())

	assert.ElementsMatch(t, []string{"t1"}, disp.executed)
}

func TestRunCheck_DedupesSymbolFetches(t *testing.T) {
	reg := &fakeRegistry{triggers: []*domain.Trigger{
		newTrigger("t1", "AAPL", domain.ConditionGE, 1000),
		newTrigger("t2", "AAPL", domain.ConditionGE, 2000),
	}}
	src := &fakeSource{prices: map[string]float64{"AAPL": 50}}
	disp := &fakeDispatcher{}
	cache := quote.NewCache(10 * time.Second)

	s := New(Config{
		CheckInterval: time.Hour, MaxQuoteWorkers: 4,
		QuoteFetchBudget: time.Second, CondEpsilon: 0.01,
	}, reg, cache, src, disp, zerolog.Nop())

	s.runCheck(context.Background())

	assert.Equal(t, 1, src.calls)
}

func TestRunCheck_UsesCachedQuoteWithoutRefetching(t *testing.T) {
	reg := &fakeRegistry{triggers: []*domain.Trigger{
		newTrigger("t1", "AAPL", domain.ConditionGE, 100),
	}}
	src := &fakeSource{prices: map[string]float64{"AAPL": 150}}
	disp := &fakeDispatcher{}
	cache := quote.NewCache(10 * time.Second)
	cache.Put("AAPL", 150, time.Now())

	s := New(Config{
		CheckInterval: time.Hour, MaxQuoteWorkers: 4,
		QuoteFetchBudget: time.Second, CondEpsilon: 0.01,
	}, reg, cache, src, disp, zerolog.Nop())

	s.runCheck(context.Background())

	assert.Equal(t, 0, src.calls)
	assert.Equal(t, []string{"t1"}, disp.executed)
}

func TestForceCheck_ShortCircuitsSleep(t *testing.T) {
	reg := &fakeRegistry{}
	src := &fakeSource{prices: map[string]float64{}}
	disp := &fakeDispatcher{}
	cache := quote.NewCache(time.Second)

	s := New(Config{
		CheckInterval: time.Hour, MaxQuoteWorkers: 1,
		QuoteFetchBudget: time.Second, CondEpsilon: 0.01,
	}, reg, cache, src, disp, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.sleepInSlices(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	s.ForceCheck()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sleepInSlices did not return promptly after ForceCheck")
	}
	cancel()
}

func TestStats_TracksChecksAndErrors(t *testing.T) {
	reg := &fakeRegistry{}
	src := &fakeSource{prices: map[string]float64{}}
	disp := &fakeDispatcher{}
	cache := quote.NewCache(time.Second)

	s := New(Config{
		CheckInterval: time.Hour, MaxQuoteWorkers: 1,
		QuoteFetchBudget: time.Second, CondEpsilon: 0.01,
	}, reg, cache, src, disp, zerolog.Nop())

	s.runCheck(context.Background())
	stats := s.Stats()
	require.Equal(t, uint64(1), stats.Checks)
	assert.Equal(t, uint64(0), stats.Errors)
}
