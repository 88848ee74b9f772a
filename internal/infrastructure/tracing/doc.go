/*
Package tracing provides lightweight request tracing for the hook API.

Every request gets a span. Trace context is taken from the X-Trace-ID and
X-Span-ID request headers when the extension supplies them, and echoed back
on the response so the extension can correlate its own logs. Finished spans
are logged asynchronously at debug level through zap.

# Usage

	tracer := tracing.New("courier", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
