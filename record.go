package dynamolock

import (
	"sync"
	"time"
)

// record is the in-memory Lock Record of spec.md §3 "Local Lock Record".
// The Client Facade owns it; the Renewal Engine mutates it under mu; a
// Lock handle only reads through accessor methods; those that report state
// (IsHeld, State) also enforce the local-deadline safety check.
type record struct {
	mu sync.Mutex

	name          string
	ownerSelf     string
	versionSeen   uint64
	leaseMs       uint64
	localDeadline time.Time
	state         State
	payload       []byte

	// cancelRenew stops this record's Renewal Engine goroutine. Release
	// calls it as their first step (spec.md §4.4), before any network call,
	// so a renewal can't bump version between the release's read and CAS.
	cancelRenew func()
	renewDone   chan struct{}

	// lost is closed when the record transitions to Lost, so callers
	// blocked on a pending operation can observe the transition promptly.
	lost     chan struct{}
	lostOnce sync.Once
}

func newRecord(name, owner string, leaseMs uint64, version uint64, deadline time.Time, payload []byte) *record {
	return &record{
		name:          name,
		ownerSelf:     owner,
		versionSeen:   version,
		leaseMs:       leaseMs,
		localDeadline: deadline,
		state:         StateHeld,
		payload:       payload,
		lost:          make(chan struct{}),
	}
}

// snapshot is a point-in-time, race-free read of the fields a Lock handle
// exposes.
type snapshot struct {
	name          string
	owner         string
	version       uint64
	leaseMs       uint64
	localDeadline time.Time
	state         State
	payload       []byte
}

func (r *record) snapshot() snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot{
		name:          r.name,
		owner:         r.ownerSelf,
		version:       r.versionSeen,
		leaseMs:       r.leaseMs,
		localDeadline: r.localDeadline,
		state:         r.state,
		payload:       r.payload,
	}
}

// checkHeld enforces spec.md §4.3's safety rule: state must be Held AND
// local_deadline must not have passed. If the deadline passed while state
// is still nominally Held (the renewal loop hasn't caught up yet), this
// call is what actually performs the Held -> Lost transition, matching the
// Local Record invariant "the record transitions to Lost before any
// owner-facing operation returns success."
func (r *record) checkHeld(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateHeld {
		return false
	}
	if !r.localDeadline.After(now) {
		r.transitionLostLocked()
		return false
	}
	return true
}

func (r *record) transitionLostLocked() {
	if r.state == StateLost || r.state == StateReleased {
		return
	}
	r.state = StateLost
	r.lostOnce.Do(func() { close(r.lost) })
}

func (r *record) markLost() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionLostLocked()
}

func (r *record) markReleased() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateLost {
		return
	}
	r.state = StateReleased
}

// renewed records a successful renewal: version_seen += 1, local_deadline
// extended by lease_ms from the renewal's issue time (spec.md §8 property 6).
func (r *record) renewed(issuedAt time.Time, newVersion uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateHeld {
		return
	}
	if newVersion > r.versionSeen {
		r.versionSeen = newVersion
	}
	r.localDeadline = issuedAt.Add(time.Duration(r.leaseMs) * time.Millisecond)
}

func (r *record) isHeld() bool {
	return r.checkHeld(time.Now())
}

func (r *record) stop() {
	if r.cancelRenew != nil {
		r.cancelRenew()
	}
	if r.renewDone != nil {
		<-r.renewDone
	}
}
