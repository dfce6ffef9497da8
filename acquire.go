package dynamolock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.companyinfo.dev/dynamolock/store"
)

// errRoundConflict signals that this takeover round lost the race (someone
// else holds, took over, or renewed the item) and the Acquisition Engine
// should back off and try another round. It never escapes Acquire.
var errRoundConflict = errors.New("dynamolock: round lost race")

// Acquire runs the Acquisition Engine of spec.md §4.2. leaseMs of 0 uses the
// client's DefaultLeaseMs. It blocks until the lock is acquired, ctx is
// canceled, AcquireTimeoutMs elapses, or MaxAttempts rounds are exhausted.
func (c *Client) Acquire(ctx context.Context, name string, leaseMs uint64, opts AcquireOptions) (*Lock, error) {
	validate := c.options.NameValidator
	if validate == nil {
		validate = validateName
	}
	if err := validate(name); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if leaseMs == 0 {
		leaseMs = c.options.DefaultLeaseMs
	}
	resolved := opts.resolve(c.options)
	if len(resolved.Payload) > c.options.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(resolved.Payload))
	}

	backend := c.backendName()
	acquireStart := time.Now()
	ctx, span := RecordStart(ctx, backend, ActionAcquire, name)
	defer span.End()

	var deadline time.Time
	if resolved.AcquireTimeoutMs > 0 {
		deadline = acquireStart.Add(time.Duration(resolved.AcquireTimeoutMs) * time.Millisecond)
	}

	for attempt := uint32(1); ; attempt++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, HandleError(ctx, span, ErrTimeout, backend, ActionAcquire, "acquire timed out", name)
		}
		if ctx.Err() != nil {
			return nil, HandleError(ctx, span, ErrCanceled, backend, ActionAcquire, "acquire canceled", name)
		}

		rec, took, err := c.attemptRound(ctx, name, leaseMs, resolved.Payload, deadline)
		switch {
		case rec != nil:
			if took {
				RecordTakeover(ctx, backend, name)
			}
			c.track(rec)
			c.startRenewal(rec)
			RecordSuccess(ctx, span, acquireStart, ActionAcquiredSuccessfully, backend, name)
			return &Lock{client: c, rec: rec}, nil
		case errors.Is(err, ErrAlreadyHeld):
			return nil, HandleError(ctx, span, ErrAlreadyHeld, backend, ActionAcquire, "lock already held by this client", name)
		case errors.Is(err, ErrCanceled):
			return nil, HandleError(ctx, span, ErrCanceled, backend, ActionAcquire, "acquire canceled", name)
		case errors.Is(err, errRoundConflict):
			// fall through to backoff and retry
		default:
			return nil, HandleError(ctx, span, err, backend, ActionAcquire, "backing store error", name)
		}

		if attempt >= resolved.MaxAttempts {
			return nil, HandleError(ctx, span, ErrUnavailable, backend, ActionAcquire, "exhausted max attempts", name)
		}

		sleepFor := backoffDuration(resolved.RetryInitialMs, resolved.RetryMaxMs, attempt)
		if !deadline.IsZero() {
			if remaining := time.Until(deadline); remaining < sleepFor {
				sleepFor = remaining
			}
		}
		if err := sleepCancelable(ctx, sleepFor); err != nil {
			return nil, HandleError(ctx, span, ErrCanceled, backend, ActionAcquire, "acquire canceled", name)
		}
	}
}

// attemptRound performs one takeover round: read, branch on absent/owned,
// wait out a live owner's lease, re-read, and CAS (spec.md §4.2 "Algorithm
// (one round)"). It returns a held record on success, or errRoundConflict
// if the caller should retry with backoff. acquireDeadline, if non-zero,
// bounds the step-3b wait so Acquire doesn't overshoot AcquireTimeoutMs by
// nearly a full lease (spec.md §4.2 step 4, §5 "honors acquire_timeout_ms"),
// the same clamp the between-rounds backoff already applies.
func (c *Client) attemptRound(ctx context.Context, name string, leaseMs uint64, payload []byte, acquireDeadline time.Time) (rec *record, tookOver bool, err error) {
	readAt := time.Now()
	item, getErr := c.store.Get(ctx, name)
	if errors.Is(getErr, store.ErrNotFound) {
		rec, err := c.tryUnowned(ctx, name, leaseMs, payload)
		return rec, false, err
	}
	if getErr != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrFatal, getErr)
	}
	if item.Owner == c.identity {
		return nil, false, ErrAlreadyHeld
	}

	current := item
	if item.Owner != "" {
		// Wait out the current owner's advertised lease, measured from our
		// own read, against our own clock (spec.md §4.2 step 3b — no
		// synchronized clocks required).
		waitUntil := readAt.Add(time.Duration(item.DurationMs) * time.Millisecond)
		clamped := false
		if !acquireDeadline.IsZero() && acquireDeadline.Before(waitUntil) {
			waitUntil = acquireDeadline
			clamped = true
		}
		if err := sleepUntilCancelable(ctx, waitUntil); err != nil {
			return nil, false, ErrCanceled
		}
		if clamped {
			// The acquire deadline arrived before the lease ran out: never
			// take over a lease that hasn't been waited out.
			return nil, false, errRoundConflict
		}

		reread, getErr := c.store.Get(ctx, name)
		if errors.Is(getErr, store.ErrNotFound) {
			rec, err := c.tryUnowned(ctx, name, leaseMs, payload)
			return rec, false, err
		}
		if getErr != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrFatal, getErr)
		}
		if reread.Owner != item.Owner || reread.Version != item.Version {
			// Owner renewed or released while we waited; restart the round.
			return nil, false, errRoundConflict
		}
		current = reread
	}

	// CAS takeover (step 3d). expectedOwner may legitimately be "" when the
	// item exists but was left unowned rather than deleted.
	issuedAt := time.Now()
	next := store.Item{Name: name, Owner: c.identity, Version: current.Version + 1, DurationMs: leaseMs, Payload: payload}
	writeCtx := context.WithoutCancel(ctx)
	outcome, writeErr := c.store.PutIfMatches(writeCtx, name, current.Owner, current.Version, next)
	if ctx.Err() != nil {
		if outcome == store.OutcomeOK {
			c.compensateUnlock(writeCtx, next)
		}
		return nil, false, ErrCanceled
	}
	switch outcome {
	case store.OutcomeOK:
		deadline := issuedAt.Add(time.Duration(leaseMs) * time.Millisecond)
		return newRecord(name, c.identity, leaseMs, next.Version, deadline, payload), true, nil
	case store.OutcomeConflict:
		return nil, false, errRoundConflict
	case store.OutcomeTransient:
		return nil, false, fmt.Errorf("%w: %v", ErrUnknown, writeErr)
	default:
		return nil, false, fmt.Errorf("%w: %v", ErrFatal, writeErr)
	}
}

// tryUnowned attempts the cold-acquire branch of spec.md §4.2 step 2.
func (c *Client) tryUnowned(ctx context.Context, name string, leaseMs uint64, payload []byte) (*record, error) {
	issuedAt := time.Now()
	item := store.Item{Name: name, Owner: c.identity, Version: 1, DurationMs: leaseMs, Payload: payload}
	writeCtx := context.WithoutCancel(ctx)
	outcome, err := c.store.PutIfAbsent(writeCtx, item)
	if ctx.Err() != nil {
		if outcome == store.OutcomeOK {
			c.compensateUnlock(writeCtx, item)
		}
		return nil, ErrCanceled
	}
	switch outcome {
	case store.OutcomeOK:
		deadline := issuedAt.Add(time.Duration(leaseMs) * time.Millisecond)
		return newRecord(name, c.identity, leaseMs, 1, deadline, payload), nil
	case store.OutcomeConflict:
		return nil, errRoundConflict
	case store.OutcomeTransient:
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}
}

// compensateUnlock clears ownership of a lock this client just won after its
// caller had already canceled, so no ghost ownership survives a canceled
// Acquire (spec.md §5, §8 property 7). Best-effort: a failure here just
// means the item ages out via its own lease.
func (c *Client) compensateUnlock(ctx context.Context, held store.Item) {
	_, err := c.store.PutIfMatches(ctx, held.Name, held.Owner, held.Version, store.Item{
		Name: held.Name, Owner: "", Version: held.Version + 1, DurationMs: held.DurationMs, Payload: held.Payload,
	})
	if err != nil {
		GetLogger().Error(err, "failed to compensate ghost ownership after cancellation", "lockName", held.Name)
	}
}

// backoffDuration returns a full-jitter exponential backoff: a uniform
// random value in [0, min(max, initial*2^(attempt-1))].
func backoffDuration(initialMs, maxMs uint64, attempt uint32) time.Duration {
	if initialMs == 0 {
		initialMs = DefaultRetryInitialMs
	}
	if maxMs == 0 {
		maxMs = DefaultRetryMaxMs
	}
	capMs := initialMs
	for i := uint32(1); i < attempt && capMs < maxMs; i++ {
		capMs *= 2
		if capMs > maxMs {
			capMs = maxMs
		}
	}
	if capMs > maxMs {
		capMs = maxMs
	}
	n := rand.Int63n(int64(capMs) + 1)
	return time.Duration(n) * time.Millisecond
}

func sleepCancelable(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleepUntilCancelable(ctx context.Context, until time.Time) error {
	return sleepCancelable(ctx, time.Until(until))
}
