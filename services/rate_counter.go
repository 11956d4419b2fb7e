package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
)

type counterCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Increment(ctx context.Context, key string) (int64, error)
	IncrementBy(ctx context.Context, key string, value int64) (int64, error)
	ExpireNX(ctx context.Context, key string, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RateCounterService fronts the event store with a short-TTL Redis cache of
// per-IP rolling-window counts. The one-minute decision window is kept
// accurate with an atomic INCR so concurrent requests from the same IP cannot
// all observe the same pre-increment count; the longer stat windows are
// read-through cached and eagerly invalidated on append. When Redis is down
// every call degrades to a direct store count.
type RateCounterService struct {
	appContext.DefaultService

	cache    counterCache
	eventSvc *EventStoreService
}

const RATE_COUNTER_SVC = "rate_counter_svc"

// DecisionWindow is the window the limit decision is evaluated over.
const DecisionWindow = time.Minute

// statWindows are the commonly queried windows kept cached for dashboards and
// stats. Invalidated on every append for the IP.
var statWindows = []time.Duration{
	5 * time.Minute,
	10 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

func (svc RateCounterService) Id() string {
	return RATE_COUNTER_SVC
}

func (svc *RateCounterService) Start() error {
	svc.cache = svc.Service(REDIS_SVC).(*RedisService)
	svc.eventSvc = svc.Service(EVENT_STORE_SVC).(*EventStoreService)
	return nil
}

// GetCount returns the rolling count for ip over window: cache on hit, store
// on miss with the result cached under a TTL strictly shorter than the window.
func (svc *RateCounterService) GetCount(ctx context.Context, ip string, window time.Duration) (int64, error) {
	key := counterKey(ip, window)

	if cached, err := svc.cache.Get(ctx, key); err == nil && cached != "" {
		if n, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
			countCacheHits.Inc()
			return n, nil
		}
	} else if err != nil {
		log.WithError(err).WithField("ip", ip).Debug("Count cache unavailable, querying store")
	}

	countCacheMisses.Inc()

	n, err := svc.eventSvc.CountSince(ip, window)
	if err != nil {
		return 0, err
	}

	if err := svc.cache.Set(ctx, key, strconv.FormatInt(n, 10), counterTTL(window)); err != nil {
		log.WithError(err).WithField("ip", ip).Debug("Failed to cache count")
	}

	return n, nil
}

// IncrementAndGet counts the current request into the decision window and
// returns the post-increment total, so the limit comparison reflects the
// request that triggered it. A freshly created key is seeded from the store so
// the count survives cache expiry and restarts.
func (svc *RateCounterService) IncrementAndGet(ctx context.Context, ip string) (int64, error) {
	key := counterKey(ip, DecisionWindow)

	n, err := svc.cache.Increment(ctx, key)
	if err != nil {
		// Read-then-decide fallback: bounded staleness, still fail-open on
		// store errors upstream.
		stored, serr := svc.eventSvc.CountSince(ip, DecisionWindow)
		if serr != nil {
			return 0, serr
		}
		return stored + 1, nil
	}

	if err := svc.cache.ExpireNX(ctx, key, counterTTL(DecisionWindow)); err != nil {
		log.WithError(err).WithField("ip", ip).Debug("Failed to set counter TTL")
	}

	if n == 1 {
		base, serr := svc.eventSvc.CountSince(ip, DecisionWindow)
		if serr == nil && base > 0 {
			if total, ierr := svc.cache.IncrementBy(ctx, key, base); ierr == nil {
				return total, nil
			}
			return n + base, nil
		}
	}

	return n, nil
}

// Invalidate evicts the cached stat windows for ip after an append. The
// decision window is left alone: it was just incremented atomically and
// evicting it would discard that guarantee.
func (svc *RateCounterService) Invalidate(ctx context.Context, ip string) {
	keys := make([]string, 0, len(statWindows))
	for _, w := range statWindows {
		keys = append(keys, counterKey(ip, w))
	}

	if err := svc.cache.Delete(ctx, keys...); err != nil {
		log.WithError(err).WithField("ip", ip).Debug("Failed to invalidate count cache")
	}
}

// Reset drops every cached window for ip, decision window included. Used when
// an operator clears an offender.
func (svc *RateCounterService) Reset(ctx context.Context, ip string) error {
	keys := []string{counterKey(ip, DecisionWindow)}
	for _, w := range statWindows {
		keys = append(keys, counterKey(ip, w))
	}
	return svc.cache.Delete(ctx, keys...)
}

func counterKey(ip string, window time.Duration) string {
	return fmt.Sprintf("ratecount:%s:%d", ip, int(window.Minutes()))
}

// counterTTL is strictly shorter than the window so the cached approximation
// converges to the true rolling count as entries expire and are recomputed.
func counterTTL(window time.Duration) time.Duration {
	ttl := window / 2
	if ttl > time.Minute {
		ttl = time.Minute
	}
	return ttl
}
