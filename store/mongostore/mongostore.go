// Package mongostore adapts MongoDB to store.Store, grounded on the
// teacher package's mongolock backend (same mongo.Client, same
// database/collection configuration). The teacher backend wraps a session
// transaction around a find-then-insert pair; a single document's (owner,
// version) CAS needs no transaction at all, since UpdateOne's and
// DeleteOne's filter and write apply atomically against one document. This adapter trades
// the teacher's session/transaction machinery for that single-document
// atomicity, grounded on the same driver.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.companyinfo.dev/dynamolock/store"
)

// doc is the on-disk document shape.
type doc struct {
	ID         string `bson:"_id"`
	Owner      string `bson:"owner"`
	Version    uint64 `bson:"version"`
	DurationMs uint64 `bson:"duration_ms"`
	Payload    []byte `bson:"payload"`
}

// Store adapts a mongo.Client collection to store.Store.
type Store struct {
	collection *mongo.Collection
}

// New returns a Store backed by client.Database(database).Collection(collection).
func New(client *mongo.Client, database, collection string) *Store {
	return &Store{collection: client.Database(database).Collection(collection)}
}

// BackendName labels spans and metrics emitted against this store.
func (s *Store) BackendName() string { return "mongodb" }

func (s *Store) Get(ctx context.Context, name string) (store.Item, error) {
	var d doc
	err := s.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Item{}, store.ErrNotFound
	}
	if err != nil {
		return store.Item{}, fmt.Errorf("mongostore: find: %w", err)
	}
	return store.Item{Name: d.ID, Owner: d.Owner, Version: d.Version, DurationMs: d.DurationMs, Payload: d.Payload}, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, item store.Item) (store.Outcome, error) {
	_, err := s.collection.InsertOne(ctx, doc{
		ID: item.Name, Owner: item.Owner, Version: item.Version, DurationMs: item.DurationMs, Payload: item.Payload,
	})
	if mongo.IsDuplicateKeyError(err) {
		return store.OutcomeConflict, nil
	}
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("mongostore: insert: %w", err)
	}
	return store.OutcomeOK, nil
}

func (s *Store) PutIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64, next store.Item) (store.Outcome, error) {
	filter := bson.M{"_id": name, "owner": expectedOwner, "version": expectedVersion}
	update := bson.M{"$set": bson.M{
		"owner": next.Owner, "version": next.Version, "duration_ms": next.DurationMs, "payload": next.Payload,
	}}
	res, err := s.collection.UpdateOne(ctx, filter, update, options.Update())
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("mongostore: update: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) DeleteIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64) (store.Outcome, error) {
	filter := bson.M{"_id": name, "owner": expectedOwner, "version": expectedVersion}
	res, err := s.collection.DeleteOne(ctx, filter)
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("mongostore: delete: %w", err)
	}
	if res.DeletedCount == 0 {
		if _, getErr := s.Get(ctx, name); errors.Is(getErr, store.ErrNotFound) {
			return store.OutcomeNotFound, nil
		}
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}
