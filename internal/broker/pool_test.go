package broker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trigger-engine/internal/broker"
	"github.com/aristath/trigger-engine/internal/broker/stub"
	"github.com/aristath/trigger-engine/internal/maintenance"
)

func newTestPool(t *testing.T, ttl time.Duration, maxSize int) (*broker.Pool, *int32) {
	t.Helper()
	var built int32
	var mu sync.Mutex
	factory := func(brokerName string) broker.Adapter {
		mu.Lock()
		built++
		mu.Unlock()
		return stub.New(100)
	}
	maint := maintenance.New(zerolog.Nop())
	maint.Start()
	t.Cleanup(maint.Stop)

	pool := broker.NewPool(factory, ttl, maxSize, maint, zerolog.Nop())
	t.Cleanup(pool.Stop)
	return pool, &built
}

func TestPool_ReusesSessionForSameTenantAndBroker(t *testing.T) {
	pool, built := newTestPool(t, time.Hour, 10)

	a1, err := pool.Get(context.Background(), "tenant1", "demo", nil)
	require.NoError(t, err)
	a2, err := pool.Get(context.Background(), "tenant1", "demo", nil)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.EqualValues(t, 1, *built)
}

func TestPool_SeparateSessionsPerTenant(t *testing.T) {
	pool, built := newTestPool(t, time.Hour, 10)

	_, err := pool.Get(context.Background(), "tenant1", "demo", nil)
	require.NoError(t, err)
	_, err = pool.Get(context.Background(), "tenant2", "demo", nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, *built)
}

func TestPool_RebuildsSessionWhoseLoginExpiredOutOfBand(t *testing.T) {
	var mu sync.Mutex
	built := 0
	factory := func(brokerName string) broker.Adapter {
		mu.Lock()
		built++
		mu.Unlock()
		return stub.New(100)
	}
	maint := maintenance.New(zerolog.Nop())
	maint.Start()
	t.Cleanup(maint.Stop)
	pool := broker.NewPool(factory, time.Hour, 10, maint, zerolog.Nop())
	t.Cleanup(pool.Stop)

	first, err := pool.Get(context.Background(), "tenant1", "demo", nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, built)

	// Simulate the broker ending the session out-of-band: the cached
	// adapter reports itself as no longer logged in.
	require.NoError(t, first.(*stub.Adapter).Logout(context.Background()))

	second, err := pool.Get(context.Background(), "tenant1", "demo", nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, built, "a dead cached session must be rebuilt rather than handed back as-is")
	assert.NotSame(t, first, second)
	assert.True(t, second.(*stub.Adapter).IsLoggedIn())
}

func TestPool_ConcurrentGetForSameKeyBuildsOnlyOneWinner(t *testing.T) {
	var mu sync.Mutex
	built := 0
	factory := func(brokerName string) broker.Adapter {
		mu.Lock()
		built++
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return stub.New(100)
	}
	maint := maintenance.New(zerolog.Nop())
	maint.Start()
	defer maint.Stop()
	pool := broker.NewPool(factory, time.Hour, 10, maint, zerolog.Nop())
	defer pool.Stop()

	var wg sync.WaitGroup
	results := make([]broker.Adapter, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := pool.Get(context.Background(), "tenant1", "demo", nil)
			require.NoError(t, err)
			results[i] = a
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Same(t, results[0], results[i])
	}
}
