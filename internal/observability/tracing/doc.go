// Package tracing provides OpenTelemetry tracing integration.
//
// InitProvider installs the process-wide tracer provider, GetTracer returns
// the shared tracer, and Middleware runs each HTTP request in a server span
// that continues an incoming W3C trace context.
//
// No exporter is attached, and database queries are not traced.
//
// Example usage:
//
//	import "genesis-connector/internal/observability/tracing"
//
//	func main() {
//	    shutdown := tracing.InitProvider()
//	    defer func() { _ = shutdown(context.Background()) }()
//	}
//
//	func processRequest(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "process-request")
//	    defer span.End()
//	    // ... process request ...
//	}
package tracing
