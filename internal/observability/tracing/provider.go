package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitProvider installs a process-wide tracer provider and returns its
// shutdown function. No exporter is attached by default: spans are
// created (so instrumentation stays exercised and an exporter can be
// added without touching call sites) but dropped at the SDK boundary.
func InitProvider() func(context.Context) error {
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)
	return provider.Shutdown
}
