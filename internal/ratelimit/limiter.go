// Package ratelimit throttles login attempts per remote address.
package ratelimit

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per identifier. Buckets that have not been
// used for the idle period are dropped, and at most maxEntries buckets are
// tracked; the least recently used one is evicted first.
type Limiter struct {
	limiters *ttlcache.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// New creates a Limiter allowing perSecond requests with the given burst for
// each identifier.
func New(perSecond float64, burst int, idle time.Duration, maxEntries uint64) *Limiter {
	opts := []ttlcache.Option[string, *rate.Limiter]{ttlcache.WithTTL[string, *rate.Limiter](idle)}
	if maxEntries > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *rate.Limiter](maxEntries))
	}

	l := &Limiter{
		limiters: ttlcache.New(opts...),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
	go l.limiters.Start()

	return l
}

// Allow reports whether a request from identifier may proceed now.
func (l *Limiter) Allow(identifier string) bool {
	item, _ := l.limiters.GetOrSet(identifier, rate.NewLimiter(l.limit, l.burst))
	return item.Value().Allow()
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	return l.limiters.Len()
}

// Stop stops the expiry loop.
func (l *Limiter) Stop() {
	l.limiters.Stop()
}
