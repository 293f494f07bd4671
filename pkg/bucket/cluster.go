package bucket

import (
	"context"
	"strconv"
	"time"

	"goa.design/pulse/rmap"
)

// clusterMap is the subset of rmap.Map used to coordinate a shared token
// budget across processes, mirroring the teacher's
// features/model/middleware/ratelimit.go clusterMap abstraction so it can
// be faked in tests without a live Redis-backed Pulse map.
type clusterMap interface {
	Get(key string) (string, bool)
	SetIfNotExists(ctx context.Context, key, value string) (bool, error)
	TestAndSet(ctx context.Context, key, test, value string) (string, error)
	Subscribe() <-chan rmap.EventKind
}

type rmapClusterMap struct{ m *rmap.Map }

func (m *rmapClusterMap) Get(key string) (string, bool) { return m.m.Get(key) }
func (m *rmapClusterMap) SetIfNotExists(ctx context.Context, key, value string) (bool, error) {
	return m.m.SetIfNotExists(ctx, key, value)
}
func (m *rmapClusterMap) TestAndSet(ctx context.Context, key, test, value string) (string, error) {
	return m.m.TestAndSet(ctx, key, test, value)
}
func (m *rmapClusterMap) Subscribe() <-chan rmap.EventKind { return m.m.Subscribe() }

// ClusterCoordinator keeps a Bucket's token capacity in sync with a shared
// value stored in a Pulse replicated map, so independent scheduler
// processes sharing one provider account do not collectively exceed its
// rate limit. It is optional: a Collection used without a coordinator stays
// purely process-local.
type ClusterCoordinator struct {
	m   clusterMap
	key string
}

// NewClusterCoordinator constructs a coordinator for key in m, seeding the
// shared value with initialCapacity if the key does not yet exist.
func NewClusterCoordinator(ctx context.Context, m *rmap.Map, key string, initialCapacity int) *ClusterCoordinator {
	return newClusterCoordinator(ctx, &rmapClusterMap{m: m}, key, initialCapacity)
}

func newClusterCoordinator(ctx context.Context, m clusterMap, key string, initialCapacity int) *ClusterCoordinator {
	if _, ok := m.Get(key); !ok {
		_, _ = m.SetIfNotExists(ctx, key, strconv.Itoa(initialCapacity))
	}
	return &ClusterCoordinator{m: m, key: key}
}

// Watch applies the shared capacity, as published by any process in the
// cluster, to bucket whenever it changes. It blocks until ctx is done and
// should be run in its own goroutine.
func (c *ClusterCoordinator) Watch(ctx context.Context, bucket *Bucket, refillRatePerSecond float64) {
	ch := c.m.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			cur, ok := c.m.Get(c.key)
			if !ok {
				continue
			}
			v, err := strconv.Atoi(cur)
			if err != nil || v <= 0 {
				continue
			}
			bucket.SetLimits(v, refillRatePerSecond)
		}
	}
}

// ReportDepletion publishes a halved capacity to the cluster after a local
// bucket reports depletion (Bucket.Cheat was invoked), using a
// compare-and-swap retry loop matching the teacher's globalBackoff.
func (c *ClusterCoordinator) ReportDepletion(ctx context.Context, floor int) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	const maxAttempts = 3
	for i := 0; i < maxAttempts; i++ {
		curStr, ok := c.m.Get(c.key)
		if !ok {
			return
		}
		cur, err := strconv.Atoi(curStr)
		if err != nil || cur <= 0 {
			return
		}
		next := cur / 2
		if next < floor {
			next = floor
		}
		nextStr := strconv.Itoa(next)
		prev, err := c.m.TestAndSet(ctx, c.key, curStr, nextStr)
		if err != nil || prev == curStr {
			return
		}
	}
}
