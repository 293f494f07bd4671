package bucket

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestBucketMonotonicity validates spec §8 invariant 6: "total tokens issued
// by TokenBucket(capacity=c, rate=r) over any interval [0, t] is
// <= c + r*t (plus at most one 'cheat' drain)". Many goroutines race to
// Acquire small amounts concurrently; the sum issued within a wall-clock
// window must never exceed the bucket's burst-plus-refill bound. Grounded
// on the teacher's gopter property-test style
// (runtime/registry/cache_property_test.go).
func TestBucketMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("issuance never exceeds capacity + rate*elapsed", prop.ForAll(
		func(capacity int, ratePerSec float64, requesters int) bool {
			if capacity <= 0 || ratePerSec <= 0 || requesters <= 0 {
				return true
			}
			b := New(capacity, ratePerSec)

			var issued int64
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			start := time.Now()
			done := make(chan struct{}, requesters)
			for i := 0; i < requesters; i++ {
				go func() {
					defer func() { done <- struct{}{} }()
					if err := b.Acquire(ctx, 1); err == nil {
						atomic.AddInt64(&issued, 1)
					}
				}()
			}
			for i := 0; i < requesters; i++ {
				<-done
			}
			elapsed := time.Since(start).Seconds()

			bound := float64(capacity) + ratePerSec*elapsed + 1 // +1 for timer/goroutine-scheduling slack
			return float64(issued) <= bound
		},
		gen.IntRange(1, 20),
		gen.Float64Range(1, 50),
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

// TestBucketWaitTimeNonNegative checks that WaitTime never reports a
// negative duration, for requests both within and beyond the bucket's
// capacity.
func TestBucketWaitTimeNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("wait_time(n) is never negative", prop.ForAll(
		func(capacity, n int) bool {
			b := New(capacity, float64(capacity))
			return b.WaitTime(n) >= 0
		},
		gen.IntRange(1, 100),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
