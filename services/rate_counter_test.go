package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varnstead/gatewall/shared"
)

// fakeCounterCache records every cache operation so tests can assert what the
// counter did against a healthy cache.
type fakeCounterCache struct {
	values  map[string]string
	counts  map[string]int64
	deleted []string
	ttls    map[string]time.Duration
	sets    int
}

func newFakeCounterCache() *fakeCounterCache {
	return &fakeCounterCache{
		values: map[string]string{},
		counts: map[string]int64{},
		ttls:   map[string]time.Duration{},
	}
}

func (f *fakeCounterCache) Get(ctx context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeCounterCache) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	f.values[key] = value
	f.ttls[key] = expiration
	f.sets++
	return nil
}

func (f *fakeCounterCache) Increment(ctx context.Context, key string) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounterCache) IncrementBy(ctx context.Context, key string, value int64) (int64, error) {
	f.counts[key] += value
	return f.counts[key], nil
}

func (f *fakeCounterCache) ExpireNX(ctx context.Context, key string, expiration time.Duration) error {
	if _, ok := f.ttls[key]; !ok {
		f.ttls[key] = expiration
	}
	return nil
}

func (f *fakeCounterCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
		delete(f.counts, key)
		f.deleted = append(f.deleted, key)
	}
	return nil
}

func newCachedCounter(t *testing.T) (*RateCounterService, *fakeCounterCache, *EventStoreService) {
	t.Helper()

	eventSvc := newTestEventStore(t)
	cache := newFakeCounterCache()
	counter := &RateCounterService{cache: cache, eventSvc: eventSvc}
	return counter, cache, eventSvc
}

func TestGetCount_FallsBackToStore(t *testing.T) {
	eventSvc := newTestEventStore(t)
	counter := newTestCounter(eventSvc)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.Add(-5*time.Second))
	}

	n, err := counter.GetCount(context.Background(), "1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestIncrementAndGet_CountsCurrentRequest(t *testing.T) {
	eventSvc := newTestEventStore(t)
	counter := newTestCounter(eventSvc)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.Add(-5*time.Second))
	}

	// Post-increment semantics: five stored events plus the request being
	// decided.
	n, err := counter.IncrementAndGet(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestIncrementAndGet_FreshIP(t *testing.T) {
	counter := newTestCounter(newTestEventStore(t))

	n, err := counter.IncrementAndGet(context.Background(), "9.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGetCount_WarmCacheSkipsStore(t *testing.T) {
	counter, cache, eventSvc := newCachedCounter(t)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.Add(-5*time.Second))
	}

	n, err := counter.GetCount(context.Background(), "1.2.3.4", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, 1, cache.sets)

	// More rows land in the store; the warm entry must answer unchanged
	// without recomputing.
	for i := 0; i < 3; i++ {
		insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.Add(-5*time.Second))
	}

	n, err = counter.GetCount(context.Background(), "1.2.3.4", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, 1, cache.sets)
}

func TestGetCount_CachesMissWithShortTTL(t *testing.T) {
	counter, cache, eventSvc := newCachedCounter(t)
	now := time.Now().UTC()

	insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.Add(-time.Minute))

	n, err := counter.GetCount(context.Background(), "1.2.3.4", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	key := counterKey("1.2.3.4", 10*time.Minute)
	assert.Equal(t, "1", cache.values[key])
	assert.Equal(t, time.Minute, cache.ttls[key])
}

func TestIncrementAndGet_SeedsFreshKeyFromStore(t *testing.T) {
	counter, cache, eventSvc := newCachedCounter(t)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.Add(-5*time.Second))
	}

	n, err := counter.IncrementAndGet(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	key := counterKey("1.2.3.4", DecisionWindow)
	assert.Equal(t, int64(5), cache.counts[key])
	assert.Equal(t, counterTTL(DecisionWindow), cache.ttls[key])
}

func TestIncrementAndGet_ExistingKeySkipsStore(t *testing.T) {
	counter, cache, eventSvc := newCachedCounter(t)
	now := time.Now().UTC()

	// Stale rows that must not leak into an already-seeded counter.
	for i := 0; i < 10; i++ {
		insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.Add(-5*time.Second))
	}
	cache.counts[counterKey("1.2.3.4", DecisionWindow)] = 3

	n, err := counter.IncrementAndGet(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestInvalidate_EvictsExactlyStatWindows(t *testing.T) {
	counter, cache, _ := newCachedCounter(t)
	ctx := context.Background()

	decisionKey := counterKey("1.2.3.4", DecisionWindow)
	cache.counts[decisionKey] = 7
	for _, w := range statWindows {
		cache.values[counterKey("1.2.3.4", w)] = "7"
	}

	counter.Invalidate(ctx, "1.2.3.4")

	assert.Len(t, cache.deleted, len(statWindows))
	for _, w := range statWindows {
		assert.Contains(t, cache.deleted, counterKey("1.2.3.4", w))
	}
	assert.NotContains(t, cache.deleted, decisionKey)
	assert.Equal(t, int64(7), cache.counts[decisionKey])
}

func TestReset_DropsDecisionWindowToo(t *testing.T) {
	counter, cache, _ := newCachedCounter(t)
	ctx := context.Background()

	decisionKey := counterKey("1.2.3.4", DecisionWindow)
	cache.counts[decisionKey] = 7

	require.NoError(t, counter.Reset(ctx, "1.2.3.4"))

	assert.Contains(t, cache.deleted, decisionKey)
	assert.Zero(t, cache.counts[decisionKey])
}

func TestCounterKey(t *testing.T) {
	assert.Equal(t, "ratecount:1.2.3.4:1", counterKey("1.2.3.4", time.Minute))
	assert.Equal(t, "ratecount:2001:db8::1:15", counterKey("2001:db8::1", 15*time.Minute))
}

func TestCounterTTL_StrictlyShorterThanWindow(t *testing.T) {
	assert.Equal(t, 30*time.Second, counterTTL(time.Minute))
	assert.Equal(t, time.Minute, counterTTL(10*time.Minute))
	assert.Equal(t, time.Minute, counterTTL(time.Hour))

	for _, w := range append([]time.Duration{DecisionWindow}, statWindows...) {
		assert.Less(t, counterTTL(w), w)
	}
}
