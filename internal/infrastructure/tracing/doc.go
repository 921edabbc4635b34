/*
Package tracing provides lightweight request tracing.

# Overview

A trace id follows a request through the API, the execution it starts and the
document fetch it performs. Spans are logged through zap by a background
collector; there is no external exporter.

# Usage

	tracer := tracing.New("nbapi", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "execute")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Trace Format

Traces use HTTP headers for propagation:
  - X-Trace-ID: Unique identifier for entire request flow
  - X-Span-ID: Identifier for current operation

Outgoing requests carry the same headers through InjectTraceContext.
*/
package tracing
