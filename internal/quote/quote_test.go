package quote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_GetMissWhenAbsent(t *testing.T) {
	c := NewCache(time.Second)
	_, ok := c.Get("AAPL")
	assert.False(t, ok)
}

func TestCache_PutThenGetWithinTTL(t *testing.T) {
	c := NewCache(time.Minute)
	c.Put("AAPL", 150.25, time.Now())

	q, ok := c.Get("AAPL")
	assert.True(t, ok)
	assert.Equal(t, 150.25, q.Price)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Put("AAPL", 150, time.Now())
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("AAPL")
	assert.False(t, ok)
}

func TestCache_SweepReclaimsStaleEntries(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.entries["AAPL"] = Quote{Price: 100, ObservedAt: time.Now().Add(-time.Hour)}
	c.lastSwept = time.Time{}

	c.Sweep()

	c.mu.RLock()
	_, exists := c.entries["AAPL"]
	c.mu.RUnlock()
	assert.False(t, exists)
}

func TestCache_SweepIsThrottled(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.entries["AAPL"] = Quote{Price: 100, ObservedAt: time.Now().Add(-time.Hour)}
	c.lastSwept = time.Now()

	c.Sweep()

	c.mu.RLock()
	_, exists := c.entries["AAPL"]
	c.mu.RUnlock()
	assert.True(t, exists, "sweep should not have run again within the throttle window")
}
