package dynamolock

import (
	"context"
	"time"

	"go.companyinfo.dev/dynamolock/store"
)

// startRenewal launches the Renewal Engine of spec.md §4.3 as a background
// goroutine tied to rec's lifetime. Release stops it via rec.stop() before
// issuing its own CAS.
func (c *Client) startRenewal(rec *record) {
	ctx, cancel := context.WithCancel(context.Background())
	rec.cancelRenew = cancel
	rec.renewDone = make(chan struct{})
	go c.renewLoop(ctx, rec)
}

func (c *Client) renewLoop(ctx context.Context, rec *record) {
	defer close(rec.renewDone)

	interval := renewInterval(rec.leaseMs, c.options.RenewFactor)
	if interval <= 0 {
		interval = time.Millisecond
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	backend := c.backendName()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if rec.snapshot().state != StateHeld {
			return
		}
		if !c.renewOnce(ctx, rec, backend) {
			return
		}
		timer.Reset(interval)
	}
}

// renewOnce issues one PutIfMatches renewal (spec.md §4.3). It reports
// whether the Renewal Engine should keep running.
func (c *Client) renewOnce(ctx context.Context, rec *record, backend string) bool {
	snap := rec.snapshot()
	startTime := time.Now()
	rctx, span := RecordStart(ctx, backend, ActionRenew, snap.name)
	defer span.End()

	margin := renewInterval(snap.leaseMs, c.options.RenewFactor)
	shortBackoff := margin / 4
	if shortBackoff <= 0 {
		shortBackoff = 10 * time.Millisecond
	}

	owner, version := snap.owner, snap.version
	for {
		issuedAt := time.Now()
		next := store.Item{Name: snap.name, Owner: owner, Version: version + 1, DurationMs: snap.leaseMs, Payload: snap.payload}
		outcome, _ := c.store.PutIfMatches(rctx, snap.name, owner, version, next)

		switch outcome {
		case store.OutcomeOK:
			rec.renewed(issuedAt, next.Version)
			RecordSuccess(rctx, span, startTime, ActionRenewedSuccessfully, backend, snap.name)
			return true

		case store.OutcomeConflict:
			rec.markLost()
			HandleError(rctx, span, ErrLockLost, backend, ActionRenew, "renewal conflict: lock stolen or released", snap.name)
			return false

		case store.OutcomeTransient:
			// Retry with short backoff while the safety margin holds (spec.md
			// §4.3 "transient store errors"); give up to Lost once the
			// remaining time before local_deadline can't absorb another try.
			if time.Until(snap.localDeadline) <= margin {
				rec.markLost()
				HandleError(rctx, span, ErrLockLost, backend, ActionRenew, "transient error exhausted safety margin", snap.name)
				return false
			}
			HandleError(rctx, span, ErrUnknown, backend, ActionRenew, "transient error, retrying", snap.name)
			if sleepErr := sleepCancelable(rctx, shortBackoff); sleepErr != nil {
				rec.markLost()
				return false
			}
			continue

		default:
			rec.markLost()
			HandleError(rctx, span, ErrFatal, backend, ActionRenew, "fatal renewal error", snap.name)
			return false
		}
	}
}
