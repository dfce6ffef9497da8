// Package zookeeperstore adapts ZooKeeper to store.Store, grounded on the
// teacher package's zookeeperlock backend (same go-zookeeper/zk client,
// same Create call for create-if-absent, here with persistent rather than
// ephemeral znodes, so an item outlives the session). ZooKeeper's znode
// version is a native CAS witness, so PutIfMatches and DeleteIfMatches map
// onto Set/Delete's version argument directly instead of needing an
// encoded owner/version comparison.
package zookeeperstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-zookeeper/zk"

	"go.companyinfo.dev/dynamolock/store"
)

type payload struct {
	Owner      string `json:"owner"`
	DurationMs uint64 `json:"duration_ms"`
	Payload    []byte `json:"payload"`
}

// Store adapts a zk.Conn to store.Store. Lock names are znode paths; a
// leading "/" is added if missing, matching the teacher's normalization.
type Store struct {
	conn *zk.Conn
}

// New returns a Store backed by conn.
func New(conn *zk.Conn) *Store {
	return &Store{conn: conn}
}

// BackendName labels spans and metrics emitted against this store.
func (s *Store) BackendName() string { return "zookeeper" }

func (s *Store) path(name string) string {
	if !strings.HasPrefix(name, "/") {
		return "/" + name
	}
	return name
}

func (s *Store) Get(_ context.Context, name string) (store.Item, error) {
	data, stat, err := s.conn.Get(s.path(name))
	if errors.Is(err, zk.ErrNoNode) {
		return store.Item{}, store.ErrNotFound
	}
	if err != nil {
		return store.Item{}, fmt.Errorf("zookeeperstore: get: %w", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return store.Item{}, fmt.Errorf("zookeeperstore: decode: %w", err)
	}
	return store.Item{
		Name: name, Owner: p.Owner, DurationMs: p.DurationMs, Payload: p.Payload,
		Version: uint64(stat.Version) + 1, // znode versions start at 0; spec versions start at 1.
	}, nil
}

func (s *Store) PutIfAbsent(_ context.Context, item store.Item) (store.Outcome, error) {
	data, err := json.Marshal(payload{Owner: item.Owner, DurationMs: item.DurationMs, Payload: item.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	_, err = s.conn.Create(s.path(item.Name), data, 0, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		return store.OutcomeConflict, nil
	}
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("zookeeperstore: create: %w", err)
	}
	return store.OutcomeOK, nil
}

func (s *Store) PutIfMatches(_ context.Context, name, expectedOwner string, expectedVersion uint64, next store.Item) (store.Outcome, error) {
	current, stat, err := s.conn.Get(s.path(name))
	if errors.Is(err, zk.ErrNoNode) {
		return store.OutcomeConflict, nil
	}
	if err != nil {
		return store.OutcomeFatal, fmt.Errorf("zookeeperstore: get: %w", err)
	}
	var p payload
	_ = json.Unmarshal(current, &p)
	if p.Owner != expectedOwner || uint64(stat.Version)+1 != expectedVersion {
		return store.OutcomeConflict, nil
	}
	data, err := json.Marshal(payload{Owner: next.Owner, DurationMs: next.DurationMs, Payload: next.Payload})
	if err != nil {
		return store.OutcomeFatal, err
	}
	if _, err := s.conn.Set(s.path(name), data, stat.Version); err != nil {
		if errors.Is(err, zk.ErrBadVersion) {
			return store.OutcomeConflict, nil
		}
		return store.OutcomeTransient, fmt.Errorf("zookeeperstore: set: %w", err)
	}
	return store.OutcomeOK, nil
}

func (s *Store) DeleteIfMatches(_ context.Context, name, expectedOwner string, expectedVersion uint64) (store.Outcome, error) {
	current, stat, err := s.conn.Get(s.path(name))
	if errors.Is(err, zk.ErrNoNode) {
		return store.OutcomeNotFound, nil
	}
	if err != nil {
		return store.OutcomeFatal, fmt.Errorf("zookeeperstore: get: %w", err)
	}
	var p payload
	_ = json.Unmarshal(current, &p)
	if p.Owner != expectedOwner || uint64(stat.Version)+1 != expectedVersion {
		return store.OutcomeConflict, nil
	}
	if err := s.conn.Delete(s.path(name), stat.Version); err != nil {
		if errors.Is(err, zk.ErrBadVersion) {
			return store.OutcomeConflict, nil
		}
		return store.OutcomeTransient, fmt.Errorf("zookeeperstore: delete: %w", err)
	}
	return store.OutcomeOK, nil
}
