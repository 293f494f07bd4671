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
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"edsl/pkg/model"
)

// Grounded on registry/store/mongo/mongo_test.go's testcontainers-backed
// setup: spin up a real mongo:7 container, skipping (not failing) the suite
// when Docker is unavailable, same as the teacher's CI-friendly pattern.
var (
	testMongoClient    *mongo.Client
	testMongoContainer testcontainers.Container
	skipMongoTests     bool
)

func setupMongoDB() {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		testMongoContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		skipMongoTests = true
		return
	}

	host, err := testMongoContainer.Host(ctx)
	if err != nil {
		skipMongoTests = true
		return
	}
	port, err := testMongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		skipMongoTests = true
		return
	}

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	testMongoClient, err = mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		skipMongoTests = true
		return
	}
	if err := testMongoClient.Ping(ctx, nil); err != nil {
		skipMongoTests = true
	}
}

func getMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	if testMongoClient == nil && !skipMongoTests {
		setupMongoDB()
	}
	if skipMongoTests {
		t.Skip("Docker not available, skipping MongoDB cache store test")
	}
	collection := testMongoClient.Database("edsl_cache_test").Collection(t.Name())
	if err := collection.Drop(context.Background()); err != nil {
		t.Fatalf("drop collection: %v", err)
	}
	if err := EnsureIndexes(context.Background(), collection); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return NewMongoStore(collection)
}

func genEntry() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.IntRange(0, 5),
		gen.Float64Range(0, 2),
		gen.IntRange(0, 8192),
		gen.IntRange(0, 8192),
	).Map(func(vals []interface{}) Entry {
		model1 := vals[0].(string)
		sys := vals[1].(string)
		usr := vals[2].(string)
		iteration := vals[3].(int)
		temp := vals[4].(float64)
		inTok := vals[5].(int)
		outTok := vals[6].(int)
		return Entry{
			ModelIdentity: model.Identity{
				Service:    "test",
				ModelName:  model1,
				Parameters: model.Parameters{Temperature: temp},
			},
			Parameters:   model.Parameters{Temperature: temp},
			SystemPrompt: sys,
			UserPrompt:   usr,
			Iteration:    iteration,
			Output: model.RawResponse{
				Raw:          usr + "/" + sys,
				InputTokens:  inTok,
				OutputTokens: outTok,
			},
			Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		}
	})
}

// TestMongoStoreRoundTrip validates spec §4.4's "lookup/insert" contract
// against a real MongoDB backend: every inserted Entry is retrievable
// byte-for-byte via Lookup.
func TestMongoStoreRoundTrip(t *testing.T) {
	store := getMongoStore(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("inserted entries round-trip through mongo", prop.ForAll(
		func(fp string, e Entry) bool {
			if err := store.Insert(ctx, fp, e); err != nil {
				return false
			}
			got, ok, err := store.Lookup(ctx, fp)
			if err != nil || !ok {
				return false
			}
			return reflect.DeepEqual(got, e)
		},
		gen.Identifier(),
		genEntry(),
	))
	properties.TestingRun(t)
}

// TestMongoStoreFirstWriteWins validates spec §4.4's "second insert with the
// same key is a no-op (first write wins)" against the real uniqueness
// constraint EnsureIndexes creates, not just the in-process Cache.GetOrBuild
// guard.
func TestMongoStoreFirstWriteWins(t *testing.T) {
	store := getMongoStore(t)
	ctx := context.Background()

	first := Entry{SystemPrompt: "first", Timestamp: time.Unix(1_700_000_000, 0).UTC()}
	second := Entry{SystemPrompt: "second", Timestamp: time.Unix(1_700_000_001, 0).UTC()}

	if err := store.Insert(ctx, "fp-1", first); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := store.Insert(ctx, "fp-1", second); err != nil {
		t.Fatalf("second insert should be swallowed as a no-op, got error: %v", err)
	}
	got, ok, err := store.Lookup(ctx, "fp-1")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if got.SystemPrompt != "first" {
		t.Fatalf("first-write-wins violated: got %q", got.SystemPrompt)
	}
}
