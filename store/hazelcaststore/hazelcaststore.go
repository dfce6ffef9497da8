// Package hazelcaststore adapts a Hazelcast IMap to store.Store, grounded
// on the teacher package's hazelcastlock backend (same client, same
// lockMap). The teacher backend drives Hazelcast's own pessimistic
// TryLockWithLease; this adapter instead uses the map's native
// compare-and-set primitives (PutIfAbsent, ReplaceIfSame, RemoveIfSame) to
// express the (owner, version) CAS witness the protocol needs.
package hazelcaststore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazelcast/hazelcast-go-client"

	"go.companyinfo.dev/dynamolock/store"
)

type payload struct {
	Owner      string `json:"owner"`
	Version    uint64 `json:"version"`
	DurationMs uint64 `json:"duration_ms"`
	Payload    []byte `json:"payload"`
}

// Store adapts a Hazelcast client to store.Store via a named IMap.
type Store struct {
	client  *hazelcast.Client
	mapName string
}

// New returns a Store using mapName as the backing IMap.
func New(client *hazelcast.Client, mapName string) *Store {
	return &Store{client: client, mapName: mapName}
}

// BackendName labels spans and metrics emitted against this store.
func (s *Store) BackendName() string { return "hazelcast" }

func (s *Store) lockMap(ctx context.Context) (*hazelcast.Map, error) {
	m, err := s.client.GetMap(ctx, s.mapName)
	if err != nil {
		return nil, fmt.Errorf("hazelcaststore: get map: %w", err)
	}
	return m, nil
}

func encode(p payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Store) Get(ctx context.Context, name string) (store.Item, error) {
	m, err := s.lockMap(ctx)
	if err != nil {
		return store.Item{}, err
	}
	raw, err := m.Get(ctx, name)
	if err != nil {
		return store.Item{}, fmt.Errorf("hazelcaststore: get: %w", err)
	}
	if raw == nil {
		return store.Item{}, store.ErrNotFound
	}
	var p payload
	if err := json.Unmarshal([]byte(raw.(string)), &p); err != nil {
		return store.Item{}, fmt.Errorf("hazelcaststore: decode: %w", err)
	}
	return store.Item{Name: name, Owner: p.Owner, Version: p.Version, DurationMs: p.DurationMs, Payload: p.Payload}, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, item store.Item) (store.Outcome, error) {
	m, err := s.lockMap(ctx)
	if err != nil {
		return store.OutcomeFatal, err
	}
	value, err := encode(payload{Owner: item.Owner, Version: item.Version, DurationMs: item.DurationMs, Payload: item.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	previous, err := m.PutIfAbsent(ctx, item.Name, value)
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("hazelcaststore: put if absent: %w", err)
	}
	if previous != nil {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) PutIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64, next store.Item) (store.Outcome, error) {
	m, err := s.lockMap(ctx)
	if err != nil {
		return store.OutcomeFatal, err
	}
	current, err := s.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return store.OutcomeConflict, nil
	}
	if err != nil {
		return store.OutcomeFatal, err
	}
	oldValue, err := encode(payload{Owner: expectedOwner, Version: expectedVersion, DurationMs: current.DurationMs, Payload: current.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	newValue, err := encode(payload{Owner: next.Owner, Version: next.Version, DurationMs: next.DurationMs, Payload: next.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	replaced, err := m.ReplaceIfSame(ctx, name, oldValue, newValue)
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("hazelcaststore: replace if same: %w", err)
	}
	if !replaced {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) DeleteIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64) (store.Outcome, error) {
	m, err := s.lockMap(ctx)
	if err != nil {
		return store.OutcomeFatal, err
	}
	current, err := s.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return store.OutcomeNotFound, nil
	}
	if err != nil {
		return store.OutcomeFatal, err
	}
	oldValue, err := encode(payload{Owner: expectedOwner, Version: expectedVersion, DurationMs: current.DurationMs, Payload: current.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	removed, err := m.RemoveIfSame(ctx, name, oldValue)
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("hazelcaststore: remove if same: %w", err)
	}
	if !removed {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}
