package dynamolock

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// lockMetrics holds common lock-related metrics.
type lockMetrics struct {
	meter               metric.Meter
	lockAcquiredCounter metric.Int64Counter
	lockAcquireLatency  metric.Float64Histogram
	lockReleaseCounter  metric.Int64Counter
	lockReleaseLatency  metric.Float64Histogram
	lockRenewCounter    metric.Int64Counter
	lockRenewLatency    metric.Float64Histogram
	takeoverCounter     metric.Int64Counter
}

var globalMetrics *lockMetrics

// InitializeMetrics creates the package's instruments from mp; each call
// replaces the instruments created by any earlier call.
func InitializeMetrics(mp metric.MeterProvider) {
	m := mp.Meter(Name)

	// lockAcquiredCounter tracks the total number of lock acquisition attempts.
	lockAcquiredCounter, _ := m.Int64Counter(
		"lock_acquire_total",
		metric.WithDescription("Total number of lock acquire attempts"),
	)

	// lockAcquireLatency measures the latency (in seconds) of lock acquisition operations.
	lockAcquireLatency, _ := m.Float64Histogram(
		"lock_acquire_latency_seconds",
		metric.WithDescription("Latency of lock acquire operations"),
	)

	// lockReleaseCounter tracks the total number of lock release attempts.
	lockReleaseCounter, _ := m.Int64Counter(
		"lock_release_total",
		metric.WithDescription("Total number of lock release attempts"),
	)

	// lockReleaseLatency measures the latency (in seconds) of lock release operations.
	lockReleaseLatency, _ := m.Float64Histogram(
		"lock_release_latency_seconds",
		metric.WithDescription("Latency of lock release operations"),
	)

	// lockRenewCounter tracks the total number of lock renewal attempts.
	lockRenewCounter, _ := m.Int64Counter(
		"lock_renew_total",
		metric.WithDescription("Total number of lock renewal attempts"),
	)

	// lockRenewLatency measures the latency (in seconds) of lock renewal operations.
	lockRenewLatency, _ := m.Float64Histogram(
		"lock_renew_latency_seconds",
		metric.WithDescription("Latency of lock renewal operations"),
	)

	// takeoverCounter tracks successful CAS takeovers of a presumed-dead owner.
	takeoverCounter, _ := m.Int64Counter(
		"lock_takeover_total",
		metric.WithDescription("Total number of successful lock takeovers from a presumed-dead owner"),
	)

	globalMetrics = &lockMetrics{
		meter:               m,
		lockAcquiredCounter: lockAcquiredCounter,
		lockAcquireLatency:  lockAcquireLatency,
		lockReleaseCounter:  lockReleaseCounter,
		lockReleaseLatency:  lockReleaseLatency,
		lockRenewCounter:    lockRenewCounter,
		lockRenewLatency:    lockRenewLatency,
		takeoverCounter:     takeoverCounter,
	}
}

// GetMetrics returns the global lockMetrics instance, initializing a no-op
// meter provider's instruments if InitializeMetrics was never called.
func GetMetrics() *lockMetrics {
	if globalMetrics == nil {
		InitializeMetrics(otel.GetMeterProvider())
	}
	return globalMetrics
}
