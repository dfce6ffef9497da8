package dynamolock

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RecordStart starts a new tracing span for a given operation against a
// named backing-store backend.
func RecordStart(ctx context.Context, backend, action, lockName string) (context.Context, trace.Span) {
	GetLogger().Info(fmt.Sprintf("attempting to %s lock", action), "lockName", lockName)
	return GetTracer().Start(
		ctx,
		fmt.Sprintf("dynamolock.%s", action),
		trace.WithAttributes(
			attribute.String("lock.name", lockName),
			attribute.String("backend", backend),
		),
	)
}

// HandleError logs, records metrics, and returns a formatted error.
func HandleError(
	ctx context.Context,
	span trace.Span,
	err error,
	backend, action, msg, lockName string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	GetLogger().Error(err, msg, "lockName", lockName, "backend", backend)
	metrics := GetMetrics()
	switch action {
	case ActionAcquire:
		metrics.lockAcquiredCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool("success", false), attribute.String("backend", backend)))
	case ActionRelease:
		metrics.lockReleaseCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool("success", false), attribute.String("backend", backend)))
	case ActionRenew:
		metrics.lockRenewCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool("success", false), attribute.String("backend", backend)))
	}

	return fmt.Errorf("%s: %w", msg, err)
}

// RecordSuccess logs and records success metrics.
func RecordSuccess(
	ctx context.Context,
	span trace.Span,
	startTime time.Time,
	action, backend, lockName string) {
	metrics := GetMetrics()
	GetLogger().Info(fmt.Sprintf("lock %s successfully", action), "lockName", lockName, "backend", backend)
	duration := time.Since(startTime).Seconds()
	span.SetStatus(codes.Ok, fmt.Sprintf("lock %s", action))
	switch action {
	case ActionAcquiredSuccessfully:
		metrics.lockAcquiredCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool("success", true), attribute.String("backend", backend)))
		metrics.lockAcquireLatency.Record(ctx, duration, metric.WithAttributes(attribute.String("backend", backend)))
	case ActionReleasedSuccessfully:
		metrics.lockReleaseCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool("success", true), attribute.String("backend", backend)))
		metrics.lockReleaseLatency.Record(ctx, duration, metric.WithAttributes(attribute.String("backend", backend)))
	case ActionRenewedSuccessfully:
		metrics.lockRenewCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool("success", true), attribute.String("backend", backend)))
		metrics.lockRenewLatency.Record(ctx, duration, metric.WithAttributes(attribute.String("backend", backend)))
	}
}

// RecordTakeover records a successful CAS takeover of a presumed-dead owner
// (spec.md §4.2 step 3d), distinct from a cold acquire against an absent item.
func RecordTakeover(ctx context.Context, backend, lockName string) {
	GetLogger().Info("took over lock from presumed-dead owner", "lockName", lockName, "backend", backend)
	GetMetrics().takeoverCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}
