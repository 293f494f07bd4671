package bucket

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"goa.design/pulse/rmap"

	"edsl/pkg/model"
)

// fakeClusterMap is an in-memory clusterMap, letting ClusterCoordinator be
// exercised without a live Redis-backed Pulse rmap.Map.
type fakeClusterMap struct {
	values map[string]string
	subs   chan rmap.EventKind
}

func newFakeClusterMap() *fakeClusterMap {
	return &fakeClusterMap{values: make(map[string]string), subs: make(chan rmap.EventKind, 8)}
}

func (f *fakeClusterMap) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeClusterMap) SetIfNotExists(_ context.Context, key, value string) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value
	return true, nil
}

func (f *fakeClusterMap) TestAndSet(_ context.Context, key, test, value string) (string, error) {
	cur, ok := f.values[key]
	if !ok || cur != test {
		return cur, nil
	}
	f.values[key] = value
	return cur, nil
}

func (f *fakeClusterMap) Subscribe() <-chan rmap.EventKind { return f.subs }

// TestAcquireBothCheatsOversizedRequest checks that a single turn whose
// estimated tokens exceed the bucket's capacity proceeds immediately via
// Cheat instead of blocking forever (spec §4.5 "cheat" rationale), and that
// the depletion is reported to a registered ClusterCoordinator.
func TestAcquireBothCheatsOversizedRequest(t *testing.T) {
	c := NewCollection()
	identity := model.Identity{Service: "test", ModelName: "big-model"}

	fm := newFakeClusterMap()
	coordinator := newClusterCoordinator(context.Background(), fm, "test::big-model::tokens", defaultTokenCapacity)
	c.RegisterCoordinator(identity, coordinator)

	pair := c.For(identity)
	require.False(t, pair.Tokens.Depleted())

	ctx, cancel := context.WithTimeout(context.Background(), 2_000_000_000) // 2s
	defer cancel()

	err := c.AcquireBoth(ctx, identity, defaultTokenCapacity*10)
	require.NoError(t, err)
	require.True(t, pair.Tokens.Depleted())

	cur, ok := fm.Get("test::big-model::tokens")
	require.True(t, ok)
	require.NotEqual(t, "0", cur)
}

// TestAcquireBothWithinCapacityDoesNotCheat checks that ordinary
// within-capacity requests never trip the depletion path.
func TestAcquireBothWithinCapacityDoesNotCheat(t *testing.T) {
	c := NewCollection()
	identity := model.Identity{Service: "test", ModelName: "small-request"}

	pair := c.For(identity)
	err := c.AcquireBoth(context.Background(), identity, 10)
	require.NoError(t, err)
	require.False(t, pair.Tokens.Depleted())
}
