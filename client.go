package dynamolock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.companyinfo.dev/dynamolock/store"
)

// namedStore lets a backend adapter label its tracing spans and metrics; the
// Client falls back to a generic label when the store doesn't implement it.
type namedStore interface {
	BackendName() string
}

// Client is the Client Facade of spec.md §4.5. It holds the process-wide
// owner identity and the backing-store adapter, and hands out Lock handles.
// A Client value is safe for concurrent use by multiple goroutines.
type Client struct {
	store    store.Store
	identity string
	options  *Options

	mu     sync.Mutex
	active map[*record]struct{}
}

// NewClient constructs a Client against the given backing-store adapter.
// By default the owner identity is a fresh random value (spec.md §4.5);
// pass WithIdentity to pin one, e.g. in tests.
func NewClient(s store.Store, opts ...OptionFunc) *Client {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	identity := o.IdentityOverride
	if len(identity) == 0 {
		identity = newIdentity()
	}

	return &Client{
		store:    s,
		identity: identityString(identity),
		options:  o,
		active:   make(map[*record]struct{}),
	}
}

// Identity returns this client's owner identity.
func (c *Client) Identity() string { return c.identity }

func (c *Client) backendName() string {
	if n, ok := c.store.(namedStore); ok {
		return n.BackendName()
	}
	return "store"
}

func (c *Client) track(r *record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[r] = struct{}{}
}

func (c *Client) untrack(r *record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, r)
}

// Lock is a handle to a held (or formerly held) lock. Its state accessors
// (IsHeld, State) route through the record's local-deadline check; mutations
// (Unlock, Delete, renewal) are routed through the Client.
type Lock struct {
	client *Client
	rec    *record
}

// Name returns the lock's name.
func (l *Lock) Name() string { return l.rec.snapshot().name }

// IsHeld reports whether this client still believes it holds the lock:
// state == Held AND local_deadline has not passed (spec.md §4.3 safety rule).
func (l *Lock) IsHeld() bool { return l.rec.isHeld() }

// Payload returns the bytes carried with the lock at acquisition time.
// Unlock leaves it unchanged (spec.md §9 Open Questions).
func (l *Lock) Payload() []byte { return l.rec.snapshot().payload }

// State returns the lock's current local state, applying the local-deadline
// check first so a passed deadline reports StateLost.
func (l *Lock) State() State {
	l.rec.checkHeld(time.Now())
	return l.rec.snapshot().state
}

// Snapshot is a read-only, diagnostic view of a remote item, returned by
// Inspect. Unlike Lock, a Snapshot cannot be fed into Unlock or Delete: it is
// a separate type that the Client's mutating operations do not accept. It
// does report the item's current Version, for diagnostics.
type Snapshot struct {
	Name       string
	Owner      string
	Version    uint64
	DurationMs uint64
	Payload    []byte
	// Exists is false when no item exists for Name.
	Exists bool
}

// Unowned reports whether the item exists but carries no owner (spec.md
// §4.2 step 3, the "deleter cleared ownership rather than deleting the
// row" case).
func (s Snapshot) Unowned() bool { return s.Exists && s.Owner == "" }

// Inspect performs a diagnostic, read-only Get against the backing store
// (spec.md §4.5). It never mutates local or remote state.
func (c *Client) Inspect(ctx context.Context, name string) (Snapshot, error) {
	item, err := c.store.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return Snapshot{Name: name}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	return Snapshot{
		Name:       item.Name,
		Owner:      item.Owner,
		Version:    item.Version,
		DurationMs: item.DurationMs,
		Payload:    item.Payload,
		Exists:     true,
	}, nil
}

// ReleaseAll releases every lock this client has acquired and still
// believes is Held, matching the original implementation's shutdown
// behavior of releasing every cached lock. Every lock is attempted even if
// an earlier one fails; ReleaseAll never short-circuits (unlike the
// original's all(released), it reports every failure instead of collapsing
// them to a single boolean).
func (c *Client) ReleaseAll(ctx context.Context) []error {
	c.mu.Lock()
	recs := make([]*record, 0, len(c.active))
	for r := range c.active {
		recs = append(recs, r)
	}
	c.mu.Unlock()

	var errs []error
	for _, r := range recs {
		if err := c.release(ctx, &Lock{client: c, rec: r}, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
