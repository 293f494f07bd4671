package cache

import "context"

// TieredStore composes a fast local Store with a remote "universal" Store
// (spec §4.4: "On miss locally, the remote tier may be consulted before
// calling the model; on success, the result is written back locally"). The
// core depends only on the Store contract: Local and Remote may be any
// combination of MemoryStore, FileStore, RedisStore, or MongoStore.
type TieredStore struct {
	Local  Store
	Remote Store
}

// Compile-time check that TieredStore implements Store.
var _ Store = (*TieredStore)(nil)

// NewTieredStore composes local and remote into a single Store.
func NewTieredStore(local, remote Store) *TieredStore {
	return &TieredStore{Local: local, Remote: remote}
}

func (t *TieredStore) Lookup(ctx context.Context, fingerprint string) (Entry, bool, error) {
	if e, ok, err := t.Local.Lookup(ctx, fingerprint); err != nil {
		return Entry{}, false, err
	} else if ok {
		return e, true, nil
	}
	e, ok, err := t.Remote.Lookup(ctx, fingerprint)
	if err != nil {
		return Entry{}, false, err
	}
	if !ok {
		return Entry{}, false, nil
	}
	// Write back to the local tier so subsequent lookups avoid the remote
	// round trip.
	if err := t.Local.Insert(ctx, fingerprint, e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (t *TieredStore) Insert(ctx context.Context, fingerprint string, entry Entry) error {
	if err := t.Local.Insert(ctx, fingerprint, entry); err != nil {
		return err
	}
	return t.Remote.Insert(ctx, fingerprint, entry)
}
