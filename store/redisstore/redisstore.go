// Package redisstore adapts Redis to store.Store, grounded on the teacher
// package's redislock backend (same go-redis client). The teacher's
// SETNX/DEL pair only expresses a TTL-only boolean lock; a CAS witness over
// (owner, version) needs an atomic compare-then-write, so this adapter
// moves from single commands to Lua scripts evaluated with EVAL, still via
// the same client.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"go.companyinfo.dev/dynamolock/store"
)

// Item is stored as a Redis hash with these field names.
const (
	fieldOwner    = "owner"
	fieldVersion  = "version"
	fieldDuration = "duration_ms"
	fieldPayload  = "payload"
)

// putIfAbsentScript creates the hash only if the key doesn't already exist.
var putIfAbsentScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "owner", ARGV[1], "version", ARGV[2], "duration_ms", ARGV[3], "payload", ARGV[4])
return 1
`)

// putIfMatchesScript updates the hash only if owner and version match.
var putIfMatchesScript = redis.NewScript(`
local owner = redis.call("HGET", KEYS[1], "owner")
local version = redis.call("HGET", KEYS[1], "version")
if owner ~= ARGV[1] or version ~= ARGV[2] then
	return 0
end
redis.call("HSET", KEYS[1], "owner", ARGV[3], "version", ARGV[4], "duration_ms", ARGV[5], "payload", ARGV[6])
return 1
`)

// deleteIfMatchesScript removes the hash only if owner and version match.
var deleteIfMatchesScript = redis.NewScript(`
local owner = redis.call("HGET", KEYS[1], "owner")
local version = redis.call("HGET", KEYS[1], "version")
if owner ~= ARGV[1] or version ~= ARGV[2] then
	return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

// Store adapts a Redis client to store.Store.
type Store struct {
	client *redis.Client
	prefix string
}

// Option customizes Store construction.
type Option func(*Store)

// WithKeyPrefix namespaces lock names under prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New returns a Store backed by client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BackendName labels spans and metrics emitted against this store.
func (s *Store) BackendName() string { return "redis" }

func (s *Store) key(name string) string { return s.prefix + name }

func (s *Store) Get(ctx context.Context, name string) (store.Item, error) {
	vals, err := s.client.HGetAll(ctx, s.key(name)).Result()
	if err != nil {
		return store.Item{}, classifyErr(err)
	}
	if len(vals) == 0 {
		return store.Item{}, store.ErrNotFound
	}
	return fromFields(name, vals), nil
}

func (s *Store) PutIfAbsent(ctx context.Context, item store.Item) (store.Outcome, error) {
	res, err := putIfAbsentScript.Run(ctx, s.client, []string{s.key(item.Name)},
		item.Owner, item.Version, item.DurationMs, item.Payload).Int()
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("redisstore: put if absent: %w", classifyErr(err))
	}
	if res == 0 {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) PutIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64, next store.Item) (store.Outcome, error) {
	res, err := putIfMatchesScript.Run(ctx, s.client, []string{s.key(name)},
		expectedOwner, expectedVersion, next.Owner, next.Version, next.DurationMs, next.Payload).Int()
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("redisstore: put if matches: %w", classifyErr(err))
	}
	if res == 0 {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) DeleteIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64) (store.Outcome, error) {
	res, err := deleteIfMatchesScript.Run(ctx, s.client, []string{s.key(name)},
		expectedOwner, expectedVersion).Int()
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("redisstore: delete if matches: %w", classifyErr(err))
	}
	if res == 0 {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func fromFields(name string, vals map[string]string) store.Item {
	item := store.Item{Name: name, Owner: vals[fieldOwner], Payload: []byte(vals[fieldPayload])}
	fmtScan(vals[fieldVersion], &item.Version)
	fmtScan(vals[fieldDuration], &item.DurationMs)
	return item
}

func fmtScan(s string, v *uint64) {
	var n uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return
		}
		n = n*10 + uint64(c-'0')
	}
	*v = n
}

func classifyErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	return err
}
