// Package bucket implements the Token/Request Bucket Collection (spec §4.5,
// §9 C4): one leaky bucket per (service, model_identity) for tokens and one
// for requests, built on golang.org/x/time/rate, the same library the
// teacher uses for its adaptive rate limiter
// (features/model/middleware/ratelimit.go).
package bucket

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a single leaky bucket: capacity (burst) with continuous refill
// at refillRate per second (spec §4.5).
type Bucket struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	capacity  int
	depleted  bool
}

// New constructs a Bucket with the given burst capacity and per-second
// refill rate.
func New(capacity int, refillRatePerSecond float64) *Bucket {
	return &Bucket{
		limiter:  rate.NewLimiter(rate.Limit(refillRatePerSecond), capacity),
		capacity: capacity,
	}
}

// WaitTime reports how long the caller would need to wait before n units
// are available, without consuming them (spec "wait_time(n) → duration").
func (b *Bucket) WaitTime(n int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.limiter.ReserveN(time.Now(), n)
	defer r.Cancel()
	if !r.OK() {
		return 0
	}
	return r.Delay()
}

// Acquire blocks until n units are available, or ctx is done (spec
// "acquire(n): blocks ... until n tokens are available").
func (b *Bucket) Acquire(ctx context.Context, n int) error {
	b.mu.Lock()
	lim := b.limiter
	b.mu.Unlock()
	return lim.WaitN(ctx, n)
}

// Cheat allows n > capacity to drain the bucket to zero and proceed
// immediately, marking the bucket depleted (spec: "may cheat by allowing
// n > capacity to drain the bucket to zero and proceed ... used for large
// single requests that would otherwise starve forever").
func (b *Bucket) Cheat(n int) {
	if n <= b.capacity {
		_ = b.Acquire(context.Background(), n)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if avail := int(b.limiter.TokensAt(now)); avail > 0 {
		b.limiter.AllowN(now, avail)
	}
	b.depleted = true
}

// Depleted reports whether Cheat has ever drained this bucket. Depletion is
// sticky for observability; it does not change future refill behavior.
func (b *Bucket) Depleted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depleted
}

// Capacity reports the bucket's current burst capacity, used by callers
// (Collection.AcquireBoth) to decide whether a request must Cheat rather
// than Acquire.
func (b *Bucket) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// SetLimits updates capacity and refill rate, used when a provider response
// reports tighter or looser limits than the conservative defaults (spec
// §4.5: "updated from provider responses where available").
func (b *Bucket) SetLimits(capacity int, refillRatePerSecond float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity = capacity
	b.limiter.SetBurst(capacity)
	b.limiter.SetLimit(rate.Limit(refillRatePerSecond))
}
