package cache

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Grounded on the same testcontainers pattern as mongo_integration_test.go,
// targeting redis:7 instead — the other remote Store backend spec §4.4
// names ("two-tier (local + remote universal cache)").
var (
	testRedisClient    *redis.Client
	testRedisContainer testcontainers.Container
	skipRedisTests     bool
)

func setupRedis() {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}
		testRedisContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		skipRedisTests = true
		return
	}

	host, err := testRedisContainer.Host(ctx)
	if err != nil {
		skipRedisTests = true
		return
	}
	port, err := testRedisContainer.MappedPort(ctx, "6379")
	if err != nil {
		skipRedisTests = true
		return
	}

	testRedisClient = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	if err := testRedisClient.Ping(ctx).Err(); err != nil {
		skipRedisTests = true
	}
}

func getRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	if testRedisClient == nil && !skipRedisTests {
		setupRedis()
	}
	if skipRedisTests {
		t.Skip("Docker not available, skipping Redis cache store test")
	}
	if err := testRedisClient.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis db: %v", err)
	}
	return NewRedisStore(testRedisClient, "edsl_cache_test")
}

// TestRedisStoreRoundTrip validates spec §4.4's lookup/insert contract
// against a real Redis backend.
func TestRedisStoreRoundTrip(t *testing.T) {
	store := getRedisStore(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("inserted entries round-trip through redis", prop.ForAll(
		func(fp, sys, usr string, iteration int) bool {
			e := Entry{
				SystemPrompt: sys,
				UserPrompt:   usr,
				Iteration:    iteration,
				Timestamp:    time.Unix(1_700_000_000, 0).UTC(),
			}
			if err := store.Insert(ctx, fp, e); err != nil {
				return false
			}
			got, ok, err := store.Lookup(ctx, fp)
			if err != nil || !ok {
				return false
			}
			got.Timestamp = got.Timestamp.UTC()
			return reflect.DeepEqual(got, e)
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.IntRange(0, 10),
	))
	properties.TestingRun(t)
}

// TestRedisStoreFirstWriteWins validates SetNX gives first-write-wins
// semantics for free, as DESIGN.md's grounding notes claim.
func TestRedisStoreFirstWriteWins(t *testing.T) {
	store := getRedisStore(t)
	ctx := context.Background()

	first := Entry{SystemPrompt: "first", Timestamp: time.Unix(1_700_000_000, 0).UTC()}
	second := Entry{SystemPrompt: "second", Timestamp: time.Unix(1_700_000_001, 0).UTC()}

	if err := store.Insert(ctx, "fp-1", first); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := store.Insert(ctx, "fp-1", second); err != nil {
		t.Fatalf("second insert should be a no-op, got error: %v", err)
	}
	got, ok, err := store.Lookup(ctx, "fp-1")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if got.SystemPrompt != "first" {
		t.Fatalf("first-write-wins violated: got %q", got.SystemPrompt)
	}
}
