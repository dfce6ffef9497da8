// Package etcdstore adapts etcd to store.Store, grounded on the teacher
// package's etcdlock backend (same clientv3, same Txn/Compare shape), moved
// from a CreateRevision-only existence check to a value-encoded (owner,
// version) CAS witness.
package etcdstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"go.companyinfo.dev/dynamolock/store"
)

// record is the JSON encoding stored as the etcd value.
type record struct {
	Owner      string `json:"owner"`
	Version    uint64 `json:"version"`
	DurationMs uint64 `json:"duration_ms"`
	Payload    []byte `json:"payload"`
}

// Store adapts an etcd clientv3.Client to store.Store.
type Store struct {
	client *clientv3.Client
	prefix string
}

// Option customizes Store construction.
type Option func(*Store)

// WithKeyPrefix namespaces lock names under prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New returns a Store backed by client.
func New(client *clientv3.Client, opts ...Option) *Store {
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BackendName labels spans and metrics emitted against this store.
func (s *Store) BackendName() string { return "etcd" }

func (s *Store) key(name string) string { return s.prefix + name }

func (s *Store) Get(ctx context.Context, name string) (store.Item, error) {
	resp, err := s.client.Get(ctx, s.key(name))
	if err != nil {
		return store.Item{}, fmt.Errorf("etcdstore: get: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return store.Item{}, store.ErrNotFound
	}
	var r record
	if err := json.Unmarshal(resp.Kvs[0].Value, &r); err != nil {
		return store.Item{}, fmt.Errorf("etcdstore: decode: %w", err)
	}
	return store.Item{Name: name, Owner: r.Owner, Version: r.Version, DurationMs: r.DurationMs, Payload: r.Payload}, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, item store.Item) (store.Outcome, error) {
	value, err := json.Marshal(record{Owner: item.Owner, Version: item.Version, DurationMs: item.DurationMs, Payload: item.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	key := s.key(item.Name)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(value))).
		Commit()
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("etcdstore: put if absent: %w", err)
	}
	if !resp.Succeeded {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) PutIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64, next store.Item) (store.Outcome, error) {
	current, err := s.Get(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.OutcomeConflict, nil
		}
		return store.OutcomeFatal, err
	}
	value, err := json.Marshal(record{Owner: next.Owner, Version: next.Version, DurationMs: next.DurationMs, Payload: next.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	expected, err := json.Marshal(record{Owner: expectedOwner, Version: expectedVersion, DurationMs: current.DurationMs, Payload: current.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	key := s.key(name)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", string(expected))).
		Then(clientv3.OpPut(key, string(value))).
		Commit()
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("etcdstore: put if matches: %w", err)
	}
	if !resp.Succeeded {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) DeleteIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64) (store.Outcome, error) {
	current, err := s.Get(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.OutcomeNotFound, nil
		}
		return store.OutcomeFatal, err
	}
	expected, err := json.Marshal(record{Owner: expectedOwner, Version: expectedVersion, DurationMs: current.DurationMs, Payload: current.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	key := s.key(name)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", string(expected))).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("etcdstore: delete if matches: %w", err)
	}
	if !resp.Succeeded {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}
