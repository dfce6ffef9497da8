// Package memstore is an in-process Store backed by a mutex-guarded map. It
// carries no network dependency, matching the spirit of the teacher
// package's MockLock, generalized from a TTL-only boolean lock to the full
// (owner, version) CAS capability set.
package memstore

import (
	"context"
	"sync"

	"go.companyinfo.dev/dynamolock/store"
)

// Store is a single-process implementation of store.Store, useful for tests
// and for exercising the Acquisition/Renewal/Release Engines without a real
// backing service.
type Store struct {
	mu    sync.Mutex
	items map[string]store.Item
}

// New returns an empty Store.
func New() *Store {
	return &Store{items: make(map[string]store.Item)}
}

// BackendName labels spans and metrics emitted against this store.
func (s *Store) BackendName() string { return "memstore" }

func (s *Store) Get(_ context.Context, name string) (store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[name]
	if !ok {
		return store.Item{}, store.ErrNotFound
	}
	return item, nil
}

func (s *Store) PutIfAbsent(_ context.Context, item store.Item) (store.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[item.Name]; exists {
		return store.OutcomeConflict, nil
	}
	s.items[item.Name] = item
	return store.OutcomeOK, nil
}

func (s *Store) PutIfMatches(_ context.Context, name, expectedOwner string, expectedVersion uint64, next store.Item) (store.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.items[name]
	if !exists {
		return store.OutcomeConflict, nil
	}
	if current.Owner != expectedOwner || current.Version != expectedVersion {
		return store.OutcomeConflict, nil
	}
	s.items[name] = next
	return store.OutcomeOK, nil
}

func (s *Store) DeleteIfMatches(_ context.Context, name, expectedOwner string, expectedVersion uint64) (store.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.items[name]
	if !exists {
		return store.OutcomeNotFound, nil
	}
	if current.Owner != expectedOwner || current.Version != expectedVersion {
		return store.OutcomeConflict, nil
	}
	delete(s.items, name)
	return store.OutcomeOK, nil
}
