package dynamolock

import (
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OptionFunc applies a configuration setting to Options.
type OptionFunc func(*Options)

// Options holds the client-wide defaults of spec.md §6 "Configuration".
// Acquire accepts AcquireOptions to override the retry/timeout fields on a
// single call; DefaultLeaseMs, Identity, NameValidator, and MaxPayloadBytes
// are client-wide only.
type Options struct {
	DefaultLeaseMs   uint64
	RenewFactor      uint32
	RetryInitialMs   uint64
	RetryMaxMs       uint64
	AcquireTimeoutMs uint64
	MaxAttempts      uint32

	// IdentityOverride pins the client's owner identity instead of
	// generating a random one at construction (spec.md §4.5).
	IdentityOverride []byte

	// MaxPayloadBytes rejects oversized payloads at Acquire time instead of
	// relying on the backing store to reject the write (spec.md §9 Open
	// Questions: unspecified by the source, so we reject early).
	MaxPayloadBytes int

	// NameValidator rejects malformed lock names before any backing-store
	// call. The zero value (nil) accepts any non-empty name, as does the
	// default installed by DefaultOptions.
	NameValidator func(string) error
}

// DefaultOptions returns an Options populated with the package defaults and
// initializes the package-wide logger, tracer, and meter.
func DefaultOptions() *Options {
	InitializeLogger(logr.Logger{}.V(DefaultLogLevel).WithName(Name))
	InitializeTracing(otel.GetTracerProvider())
	InitializeMetrics(otel.GetMeterProvider())

	return &Options{
		DefaultLeaseMs:   DefaultLeaseMs,
		RenewFactor:      DefaultRenewFactor,
		RetryInitialMs:   DefaultRetryInitialMs,
		RetryMaxMs:       DefaultRetryMaxMs,
		AcquireTimeoutMs: 0,
		MaxAttempts:      DefaultMaxAttempts,
		MaxPayloadBytes:  DefaultMaxPayloadBytes,
		NameValidator:    validateName,
	}
}

func validateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	return nil
}

// WithDefaultLeaseMs sets the lease length Acquire uses when the caller
// doesn't specify one.
func WithDefaultLeaseMs(ms uint64) OptionFunc {
	return func(o *Options) { o.DefaultLeaseMs = ms }
}

// WithRenewFactor sets K, the divisor applied to the lease to get the
// Renewal Engine's cadence. Values below 3 erode the safety margin spec.md
// §4.3 recommends.
func WithRenewFactor(k uint32) OptionFunc {
	return func(o *Options) { o.RenewFactor = k }
}

// WithRetryBackoff sets the Acquisition Engine's exponential backoff bounds
// between takeover rounds.
func WithRetryBackoff(initialMs, maxMs uint64) OptionFunc {
	return func(o *Options) {
		o.RetryInitialMs = initialMs
		o.RetryMaxMs = maxMs
	}
}

// WithAcquireTimeoutMs bounds total wall-clock time spent in Acquire. Zero
// means no bound beyond MaxAttempts.
func WithAcquireTimeoutMs(ms uint64) OptionFunc {
	return func(o *Options) { o.AcquireTimeoutMs = ms }
}

// WithMaxAttempts bounds the number of takeover rounds Acquire tries.
func WithMaxAttempts(n uint32) OptionFunc {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithIdentity pins the client's owner identity instead of a random one.
func WithIdentity(identity []byte) OptionFunc {
	return func(o *Options) { o.IdentityOverride = identity }
}

// WithMaxPayloadBytes caps the payload Acquire will write.
func WithMaxPayloadBytes(n int) OptionFunc {
	return func(o *Options) { o.MaxPayloadBytes = n }
}

// WithNameValidator overrides the lock-name validation hook.
func WithNameValidator(fn func(string) error) OptionFunc {
	return func(o *Options) { o.NameValidator = fn }
}

// WithLogger sets a custom logger for the client, tracing, and metrics.
func WithLogger(logger logr.Logger) OptionFunc {
	return func(_ *Options) { InitializeLogger(logger) }
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OptionFunc {
	return func(_ *Options) { InitializeTracing(tp) }
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) OptionFunc {
	return func(_ *Options) { InitializeMetrics(mp) }
}

// AcquireOptions overrides the client's defaults for a single Acquire call
// (spec.md §4.2 "Recognized options"). Zero values fall back to the client
// default.
type AcquireOptions struct {
	MaxAttempts      uint32
	AcquireTimeoutMs uint64
	RetryInitialMs   uint64
	RetryMaxMs       uint64
	Payload          []byte
}

func (o AcquireOptions) resolve(defaults *Options) AcquireOptions {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = defaults.MaxAttempts
	}
	if o.AcquireTimeoutMs == 0 {
		o.AcquireTimeoutMs = defaults.AcquireTimeoutMs
	}
	if o.RetryInitialMs == 0 {
		o.RetryInitialMs = defaults.RetryInitialMs
	}
	if o.RetryMaxMs == 0 {
		o.RetryMaxMs = defaults.RetryMaxMs
	}
	return o
}
