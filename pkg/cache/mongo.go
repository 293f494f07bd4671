package cache

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is a Store backed by MongoDB, grounded on
// registry/store/mongo/mongo.go's collection-per-store pattern, with
// insert-only first-write-wins writes instead of upserts. It gives the remote cache tier (spec §4.4) a durable alternative
// to Redis for deployments that already run MongoDB for other state.
type MongoStore struct {
	collection *mongo.Collection
}

// Compile-time check that MongoStore implements Store.
var _ Store = (*MongoStore)(nil)

// entryDocument is the MongoDB document representation of an Entry.
type entryDocument struct {
	Fingerprint string `bson:"_id"`
	Entry       Entry  `bson:"entry"`
}

// NewMongoStore constructs a MongoStore using the provided collection. The
// collection should come from a connected MongoDB client.
func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

func (s *MongoStore) Lookup(ctx context.Context, fingerprint string) (Entry, bool, error) {
	var doc entryDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": fingerprint}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: mongo get %q: %w", fingerprint, err)
	}
	return doc.Entry, true, nil
}

func (s *MongoStore) Insert(ctx context.Context, fingerprint string, entry Entry) error {
	// Only insert (not upsert): a duplicate-key error means another writer
	// won the race, which is exactly the idempotent "first write wins"
	// semantics the cache contract requires.
	_, err := s.collection.InsertOne(ctx, entryDocument{Fingerprint: fingerprint, Entry: entry})
	if err != nil {
		var we mongo.WriteException
		if errors.As(err, &we) {
			for _, e := range we.WriteErrors {
				if e.Code == 11000 {
					return nil
				}
			}
		}
		return fmt.Errorf("cache: mongo insert %q: %w", fingerprint, err)
	}
	return nil
}

// EnsureIndexes creates the unique index backing first-write-wins insert
// semantics. Callers run this once at startup.
func EnsureIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
