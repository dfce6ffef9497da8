// Package consulstore adapts Consul's KV store to store.Store. The teacher
// package's consullock backend uses Consul sessions (Session().Create +
// KV().Acquire), which hands mutual exclusion to Consul's own session
// liveness rather than exposing a CAS witness this package's protocol can
// drive. This adapter moves to the same client's KV().CAS on ModifyIndex
// instead — Consul's native compare-and-swap primitive — and encodes
// (owner, version) into the value so the Acquisition/Renewal/Release
// Engines still get an explicit witness to compare against.
package consulstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/consul/api"

	"go.companyinfo.dev/dynamolock/store"
)

type payload struct {
	Owner      string `json:"owner"`
	Version    uint64 `json:"version"`
	DurationMs uint64 `json:"duration_ms"`
	Payload    []byte `json:"payload"`
}

// Store adapts a Consul api.Client to store.Store.
type Store struct {
	client *api.Client
}

// New returns a Store backed by client.
func New(client *api.Client) *Store {
	return &Store{client: client}
}

// BackendName labels spans and metrics emitted against this store.
func (s *Store) BackendName() string { return "consul" }

func (s *Store) get(ctx context.Context, name string) (*api.KVPair, payload, error) {
	kv, _, err := s.client.KV().Get(name, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, payload{}, fmt.Errorf("consulstore: get: %w", err)
	}
	if kv == nil {
		return nil, payload{}, store.ErrNotFound
	}
	var p payload
	if err := json.Unmarshal(kv.Value, &p); err != nil {
		return nil, payload{}, fmt.Errorf("consulstore: decode: %w", err)
	}
	return kv, p, nil
}

func (s *Store) Get(ctx context.Context, name string) (store.Item, error) {
	_, p, err := s.get(ctx, name)
	if err != nil {
		return store.Item{}, err
	}
	return store.Item{Name: name, Owner: p.Owner, Version: p.Version, DurationMs: p.DurationMs, Payload: p.Payload}, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, item store.Item) (store.Outcome, error) {
	_, _, err := s.get(ctx, item.Name)
	if err == nil {
		return store.OutcomeConflict, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.OutcomeFatal, err
	}

	value, err := json.Marshal(payload{Owner: item.Owner, Version: item.Version, DurationMs: item.DurationMs, Payload: item.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	ok, _, err := s.client.KV().CAS(&api.KVPair{Key: item.Name, Value: value, ModifyIndex: 0}, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("consulstore: cas: %w", err)
	}
	if !ok {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) PutIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64, next store.Item) (store.Outcome, error) {
	kv, p, err := s.get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return store.OutcomeConflict, nil
	}
	if err != nil {
		return store.OutcomeFatal, err
	}
	if p.Owner != expectedOwner || p.Version != expectedVersion {
		return store.OutcomeConflict, nil
	}

	value, err := json.Marshal(payload{Owner: next.Owner, Version: next.Version, DurationMs: next.DurationMs, Payload: next.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	ok, _, err := s.client.KV().CAS(&api.KVPair{Key: name, Value: value, ModifyIndex: kv.ModifyIndex}, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("consulstore: cas: %w", err)
	}
	if !ok {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) DeleteIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64) (store.Outcome, error) {
	kv, p, err := s.get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return store.OutcomeNotFound, nil
	}
	if err != nil {
		return store.OutcomeFatal, err
	}
	if p.Owner != expectedOwner || p.Version != expectedVersion {
		return store.OutcomeConflict, nil
	}
	ok, _, err := s.client.KV().DeleteCAS(&api.KVPair{Key: name, ModifyIndex: kv.ModifyIndex}, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("consulstore: delete cas: %w", err)
	}
	if !ok {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}
