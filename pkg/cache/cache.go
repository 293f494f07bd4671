// Package cache implements the content-addressed at-most-once execution
// cache (spec §4.4, §9 C3). Keys are a fingerprint hash of
// (model_identity, parameters, system_prompt, user_prompt, iteration);
// values are CacheEntry records. The at-most-one-concurrent-build guarantee
// is provided by Cache.GetOrBuild regardless of which Store backend is
// plugged in.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"edsl/pkg/model"
)

// Entry is a CacheEntry (spec §3): the inputs that produced a cached model
// call plus its raw output.
type Entry struct {
	ModelIdentity model.Identity
	Parameters    model.Parameters
	SystemPrompt  string
	UserPrompt    string
	Iteration     int
	Output        model.RawResponse
	Timestamp     time.Time
}

// Fingerprint computes the cache key for e's first five fields: a sha256 of
// their canonical-JSON encoding (spec §4.4).
func Fingerprint(identity model.Identity, params model.Parameters, systemPrompt, userPrompt string, iteration int) (string, error) {
	b, err := model.CanonicalJSON(struct {
		ModelIdentity model.Identity `json:"model_identity"`
		Parameters    model.Parameters `json:"parameters"`
		SystemPrompt  string           `json:"system_prompt"`
		UserPrompt    string           `json:"user_prompt"`
		Iteration     int              `json:"iteration"`
	}{identity, params, systemPrompt, userPrompt, iteration})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Store is the persistence backend contract (spec §4.4 "lookup/insert").
// Implementations must be safe for concurrent use.
type Store interface {
	// Lookup returns the entry for fingerprint, or ok=false if absent.
	Lookup(ctx context.Context, fingerprint string) (entry Entry, ok bool, err error)

	// Insert stores entry under fingerprint. It is idempotent: a second
	// insert under the same fingerprint is a no-op (first write wins).
	Insert(ctx context.Context, fingerprint string, entry Entry) error
}

// Builder produces a fresh Entry on a cache miss.
type Builder func(ctx context.Context) (Entry, error)

// Cache wraps a Store with the at-most-one-concurrent-build guarantee (spec
// §4.4: "concurrent get_or_build(fingerprint, builder) calls yield exactly
// one builder invocation; all other callers await the result").
type Cache struct {
	store Store

	mu      sync.Mutex
	inFlight map[string]*buildCall
}

type buildCall struct {
	done  chan struct{}
	entry Entry
	err   error
}

// New wraps store with the at-most-once-build contract.
func New(store Store) *Cache {
	return &Cache{store: store, inFlight: make(map[string]*buildCall)}
}

// Lookup delegates to the underlying Store.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (Entry, bool, error) {
	return c.store.Lookup(ctx, fingerprint)
}

// GetOrBuild returns the cached entry for fingerprint if present; otherwise
// it runs build exactly once across all concurrent callers sharing the same
// fingerprint, inserts the result, and returns it to everyone waiting.
func (c *Cache) GetOrBuild(ctx context.Context, fingerprint string, build Builder) (Entry, error) {
	if e, ok, err := c.store.Lookup(ctx, fingerprint); err != nil {
		return Entry{}, err
	} else if ok {
		return e, nil
	}

	c.mu.Lock()
	if call, ok := c.inFlight[fingerprint]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.entry, call.err
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
	call := &buildCall{done: make(chan struct{})}
	c.inFlight[fingerprint] = call
	c.mu.Unlock()

	// A builder that finished between the first lookup and registering this
	// call has already inserted its entry; look again before building.
	entry, ok, err := c.store.Lookup(ctx, fingerprint)
	if err == nil && !ok {
		entry, err = build(ctx)
		if err == nil {
			if entry.Timestamp.IsZero() {
				entry.Timestamp = time.Now()
			}
			err = c.store.Insert(ctx, fingerprint, entry)
		}
	}
	call.entry, call.err = entry, err
	close(call.done)

	c.mu.Lock()
	delete(c.inFlight, fingerprint)
	c.mu.Unlock()

	return entry, err
}

// Fresh inserts entry unconditionally at a bumped iteration so the prior
// entry and the fresh one coexist (spec §4.4 "Freshness override": callers
// requesting fresh=true bypass lookup and the entry is inserted with an
// iteration incremented so both versions coexist).
func (c *Cache) Fresh(ctx context.Context, identity model.Identity, params model.Parameters, systemPrompt, userPrompt string, iteration int, build Builder) (Entry, string, error) {
	bumped := iteration + 1
	fp, err := Fingerprint(identity, params, systemPrompt, userPrompt, bumped)
	if err != nil {
		return Entry{}, "", err
	}
	entry, err := build(ctx)
	if err != nil {
		return Entry{}, fp, err
	}
	entry.Iteration = bumped
	if err := c.store.Insert(ctx, fp, entry); err != nil {
		return Entry{}, fp, err
	}
	return entry, fp, nil
}
