package dynamolock

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// lockTracer holds the global tracer.
type lockTracer struct {
	tracer trace.Tracer
}

var globalTracer *lockTracer

// InitializeTracing sets up tracing with a user-defined or default tracer provider.
func InitializeTracing(tp trace.TracerProvider) {
	globalTracer = &lockTracer{
		tracer: tp.Tracer(Name), // Use user-provided tracer provider
	}
}

// GetTracer returns the global Tracer instance.
func GetTracer() trace.Tracer {
	if globalTracer == nil {
		InitializeTracing(otel.GetTracerProvider())
	}
	return globalTracer.tracer
}
