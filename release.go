package dynamolock

import (
	"context"
	"time"

	"go.companyinfo.dev/dynamolock/store"
)

// maxReleaseAttempts bounds retries against transient errors during
// release; spec.md §4.4 asks for "a few" before giving up with Unknown.
const maxReleaseAttempts = 3

// Unlock runs the Release Engine's clear-ownership path of spec.md §4.4:
// the item is left in place with owner cleared, rather than deleted.
func (c *Client) Unlock(ctx context.Context, l *Lock) error {
	return c.release(ctx, l, false)
}

// Delete runs the Release Engine's delete path of spec.md §4.4: the item is
// removed outright.
func (c *Client) Delete(ctx context.Context, l *Lock) error {
	return c.release(ctx, l, true)
}

func (c *Client) release(ctx context.Context, l *Lock, del bool) error {
	rec := l.rec

	// Stop the Renewal Engine first, before any network call, so a renewal
	// in flight can't bump version between this read and this CAS
	// (spec.md §4.4 step 1).
	rec.stop()

	snap := rec.snapshot()
	if snap.state == StateLost || snap.state == StateReleased {
		c.untrack(rec)
		return nil // idempotent: no network effect (spec.md §8 property 4)
	}

	backend := c.backendName()
	startTime := time.Now()
	ctx, span := RecordStart(ctx, backend, ActionRelease, snap.name)
	defer span.End()

	var outcome store.Outcome
	for attempt := 1; ; attempt++ {
		if del {
			outcome, _ = c.store.DeleteIfMatches(ctx, snap.name, snap.owner, snap.version)
		} else {
			outcome, _ = c.store.PutIfMatches(ctx, snap.name, snap.owner, snap.version, store.Item{
				Name: snap.name, Owner: "", Version: snap.version + 1, DurationMs: snap.leaseMs, Payload: snap.payload,
			})
		}
		if outcome != store.OutcomeTransient || attempt >= maxReleaseAttempts {
			break
		}
		if sleepErr := sleepCancelable(ctx, time.Duration(attempt*50)*time.Millisecond); sleepErr != nil {
			break
		}
	}

	c.untrack(rec)

	switch outcome {
	case store.OutcomeOK:
		rec.markReleased()
		RecordSuccess(ctx, span, startTime, ActionReleasedSuccessfully, backend, snap.name)
		return nil

	case store.OutcomeConflict, store.OutcomeNotFound:
		// Someone already took over or deleted it: this release is moot,
		// not a failure (spec.md §4.4 "release after loss is a no-op").
		rec.markLost()
		GetLogger().Info("release found lock already taken over or gone", "lockName", snap.name, "backend", backend)
		return nil

	case store.OutcomeTransient:
		// The renewal loop is already stopped, so marking Released here is
		// safe even though the remote outcome is unknown: we will never
		// renew or otherwise act as owner again.
		rec.markReleased()
		return HandleError(ctx, span, ErrUnknown, backend, ActionRelease, "release outcome unknown after retries", snap.name)

	default:
		rec.markLost()
		return HandleError(ctx, span, ErrFatal, backend, ActionRelease, "fatal release error", snap.name)
	}
}
