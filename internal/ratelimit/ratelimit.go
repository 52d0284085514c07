// Package ratelimit throttles clients of the dashboard API. Report reads are
// cheap but the task and query endpoints are not, so every mutating route
// sits behind a per-client token bucket.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use. Errors signal a limiter
// malfunction; callers treat them as fail-open.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// evictAfter is how long an idle client's bucket survives before it is
// dropped on the next sweep.
const evictAfter = 10 * time.Minute

// sweepEvery bounds how often Allow scans for idle buckets.
const sweepEvery = time.Minute

type bucket struct {
	tokens float64
	seen   time.Time
}

// ClientLimiter is a per-client token bucket. Buckets refill at rate tokens
// per second up to burst capacity. Idle buckets are evicted lazily during
// Allow calls, so the limiter needs no background goroutine and no Close.
type ClientLimiter struct {
	rate  float64
	burst float64

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewClientLimiter creates a token-bucket limiter with the given sustained
// rate (requests per second per client) and burst capacity.
func NewClientLimiter(rate float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		rate:      rate,
		burst:     float64(burst),
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// Allow consumes one token from the client's bucket, refilling first based on
// elapsed time. New clients start with a full bucket.
func (l *ClientLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.maybeSweep(now)

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.burst - 1, seen: now}
		return true, nil
	}

	b.tokens += now.Sub(b.seen).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.seen = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// maybeSweep drops idle buckets. Caller holds the mutex.
func (l *ClientLimiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepEvery {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-evictAfter)
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// ClientKey derives the limiter key for an HTTP request. It prefers the
// leftmost X-Forwarded-For entry so deployments behind a proxy throttle the
// real client, falling back to the connection's remote address.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
