// Package store defines the capability set a backing store must expose to
// back a dynamolock Client (spec.md §4.1 "Backing-Store Adapter"): a
// strongly consistent read plus three conditional writes keyed by lock name.
// Any type implementing Store is a valid backend — DynamoDB, Redis, etcd,
// ZooKeeper, Consul, Hazelcast, MongoDB, Postgres, or an in-memory mock for
// tests. There is no subclassing and no base type to embed.
package store

import (
	"context"
	"errors"
)

// Outcome classifies the result of a conditional write (spec.md §4.1 and
// §9 "Exception-driven CAS failure"). A CAS conflict is a normal protocol
// outcome, not an exception: callers switch on Outcome rather than relying
// on error identity alone.
type Outcome int

const (
	// OutcomeOK means the write committed.
	OutcomeOK Outcome = iota
	// OutcomeConflict means the CAS predicate did not match the stored
	// item; the write did not happen. The current remote state is not
	// returned with it; callers that need it issue a fresh Get.
	OutcomeConflict
	// OutcomeNotFound means the targeted item does not exist.
	OutcomeNotFound
	// OutcomeTransient means a retryable network or throttling error
	// occurred; the write's effect is undetermined.
	OutcomeTransient
	// OutcomeFatal means a non-retryable error occurred: authorization,
	// malformed request, or schema mismatch.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeConflict:
		return "conflict"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransient:
		return "transient"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrNotFound is returned by Get when no item exists for the given name.
var ErrNotFound = errors.New("store: item not found")

// Item mirrors the remote record of spec.md §3 "Remote item".
type Item struct {
	Name       string
	Owner      string
	Version    uint64
	DurationMs uint64
	Payload    []byte
}

// Store is the four-primitive capability set of spec.md §4.1. All methods
// must provide strongly consistent reads and atomic conditional writes;
// eventually-consistent implementations break the mutual-exclusion
// invariant (spec.md §8 property 1).
type Store interface {
	// Get returns the current item for name, or ErrNotFound if absent.
	Get(ctx context.Context, name string) (Item, error)

	// PutIfAbsent creates an item with version 1, succeeding only if no
	// item with this name exists.
	PutIfAbsent(ctx context.Context, item Item) (Outcome, error)

	// PutIfMatches updates an item, succeeding only if the stored item's
	// (owner, version) equals (expectedOwner, expectedVersion). next
	// carries the new owner/duration/payload/version to write.
	PutIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64, next Item) (Outcome, error)

	// DeleteIfMatches removes an item, succeeding only if the stored
	// item's (owner, version) equals (expectedOwner, expectedVersion).
	DeleteIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64) (Outcome, error)
}
