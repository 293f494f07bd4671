package bucket

import (
	"context"
	"sync"
	"time"

	"edsl/pkg/model"
)

// defaultTokenCapacity and defaultRequestCapacity are the conservative
// defaults spec §4.5 calls for ("Bucket limits default to conservative
// values and are updated from provider responses where available").
const (
	defaultTokenCapacity      = 40000
	defaultTokenRefillPerSec  = 40000.0 / 60
	defaultRequestCapacity    = 50
	defaultRequestRefillPerSec = 50.0 / 60
)

// Pair bundles the TokenBucket and RequestBucket for one (service,
// model_identity) (spec §4.5: "One TokenBucket and one RequestBucket per
// (service, model_identity)").
type Pair struct {
	Tokens   *Bucket
	Requests *Bucket
}

// Collection manages one Pair per model identity, created lazily on first
// use and guarded by a per-bucket mutex rather than a single collection-wide
// lock (spec §5: "Bucket collection: shared read/write; per-bucket mutex").
type Collection struct {
	mu           sync.RWMutex
	pairs        map[string]*Pair
	coordinators map[string]*ClusterCoordinator
}

// NewCollection constructs an empty bucket Collection.
func NewCollection() *Collection {
	return &Collection{pairs: make(map[string]*Pair), coordinators: make(map[string]*ClusterCoordinator)}
}

// RegisterCoordinator attaches a ClusterCoordinator to identity's token
// bucket, so a Cheat-triggered depletion (AcquireBoth, below) is reported to
// the rest of the cluster via ClusterCoordinator.ReportDepletion instead of
// staying purely process-local.
func (c *Collection) RegisterCoordinator(identity model.Identity, coordinator *ClusterCoordinator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coordinators[identity.Key()] = coordinator
}

// For returns (creating if necessary) the Pair for identity.
func (c *Collection) For(identity model.Identity) *Pair {
	key := identity.Key()
	c.mu.RLock()
	p, ok := c.pairs[key]
	c.mu.RUnlock()
	if ok {
		return p
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pairs[key]; ok {
		return p
	}
	p = &Pair{
		Tokens:   New(defaultTokenCapacity, defaultTokenRefillPerSec),
		Requests: New(defaultRequestCapacity, defaultRequestRefillPerSec),
	}
	c.pairs[key] = p
	return p
}

// depletionFloor bounds how low ReportDepletion will push a cluster's shared
// token capacity after repeated Cheat-triggered depletions.
const depletionFloor = 1000

// AcquireBoth acquires both a request slot and estimatedTokens tokens
// concurrently before a model call may proceed, reducing latency on
// contended buckets while preserving the spec's "both must be held before
// the model call" equivalence (spec §4.9 "Batching optimization"). When
// estimatedTokens exceeds the token bucket's capacity, Acquire would either
// error immediately or never succeed depending on backend, so the request
// cheats instead (spec §4.5: "may cheat by allowing n > capacity to drain
// the bucket to zero and proceed ... used for large single requests that
// would otherwise starve forever"), and the depletion is reported to any
// registered ClusterCoordinator for identity so the rest of the cluster
// backs off too.
func (c *Collection) AcquireBoth(ctx context.Context, identity model.Identity, estimatedTokens int) error {
	p := c.For(identity)

	reqErr := make(chan error, 1)
	go func() { reqErr <- p.Requests.Acquire(ctx, 1) }()

	var tokErr error
	if estimatedTokens > p.Tokens.Capacity() {
		p.Tokens.Cheat(estimatedTokens)
		c.reportDepletion(ctx, identity)
	} else {
		tokErr = p.Tokens.Acquire(ctx, estimatedTokens)
	}

	if err := <-reqErr; err != nil {
		return err
	}
	return tokErr
}

// reportDepletion notifies identity's registered ClusterCoordinator, if any,
// that its token bucket was just drained via Cheat.
func (c *Collection) reportDepletion(ctx context.Context, identity model.Identity) {
	c.mu.RLock()
	coordinator, ok := c.coordinators[identity.Key()]
	c.mu.RUnlock()
	if !ok {
		return
	}
	coordinator.ReportDepletion(ctx, depletionFloor)
}

// WaitTime reports the longer of the two buckets' wait times for a
// hypothetical call of estimatedTokens tokens, used by callers that want to
// report expected latency without consuming capacity.
func (c *Collection) WaitTime(identity model.Identity, estimatedTokens int) time.Duration {
	p := c.For(identity)
	rt := p.Requests.WaitTime(1)
	tt := p.Tokens.WaitTime(estimatedTokens)
	if rt > tt {
		return rt
	}
	return tt
}

// UpdateLimits applies provider-reported limits to identity's buckets.
func (c *Collection) UpdateLimits(identity model.Identity, tokenCapacity int, tokenRefillPerSec float64, requestCapacity int, requestRefillPerSec float64) {
	p := c.For(identity)
	p.Tokens.SetLimits(tokenCapacity, tokenRefillPerSec)
	p.Requests.SetLimits(requestCapacity, requestRefillPerSec)
}
