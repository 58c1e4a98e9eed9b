// Package trace holds the tracer used across the assistant.
// It integrates with OpenTelemetry; by default a no-op provider is
// installed, so tracing stays silent until a real provider is set.
package trace

import (
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/wnakano/luma-appointments-qa"

// TracerProvider is the global tracer provider for telemetry.
var TracerProvider trace.TracerProvider = noop.NewTracerProvider()

// Tracer is the global tracer instance for telemetry.
var Tracer trace.Tracer = TracerProvider.Tracer(instrumentationName)

// SetTracerProvider installs a tracer provider and rebuilds the tracer.
// Call it once at startup before any graph execution.
func SetTracerProvider(tp trace.TracerProvider) {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	TracerProvider = tp
	Tracer = tp.Tracer(instrumentationName)
}
