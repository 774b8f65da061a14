package tracing

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/opspulse/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/smallbiznis/opspulse"

// GinMiddleware opens a server span per request. It runs after the request
// logger so the request id and actor are already on the context.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(instrumentationName + "/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		attrs := []attribute.KeyValue{attribute.String("http.method", c.Request.Method)}
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			attrs = append(attrs, attribute.String("request_id", requestID))
		}
		if kind, id := obscontext.ActorFromContext(ctx); kind != "" {
			attrs = append(attrs, attribute.String("actor.type", kind), attribute.String("actor.id", id))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if jobID := c.GetString("export_job_id"); jobID != "" {
			span.SetAttributes(attribute.String("export.job_id", jobID))
		}
		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, strconv.Itoa(status))
		}
	}
}

// StartJob opens a consumer span for one queue job attempt. Call the returned
// func with the handler's result to close it.
func StartJob(ctx context.Context, queue, jobID string, attempt int) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName+"/queue").Start(ctx, "job "+queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("queue.name", queue),
			attribute.String("queue.job_id", jobID),
			attribute.Int("queue.attempt", attempt),
		),
	)
	return ctx, func(err error) {
		if safeErr := SafeError(err); safeErr != nil {
			span.RecordError(safeErr)
			span.SetStatus(codes.Error, "job failed")
		}
		span.End()
	}
}
