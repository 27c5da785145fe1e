package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOptions configures a telemetry span.
type SpanOptions struct {
	// Name is the operation name for the span (e.g. "chatworker.turn").
	Name string

	// Attributes are key-value pairs attached to the span.
	Attributes []attribute.KeyValue

	// EndWhenDone controls whether the span ends automatically when fn returns.
	EndWhenDone bool
}

// RecordSpan creates and executes a telemetry span for an operation.
// The span ends automatically when fn completes, unless EndWhenDone is false
// (used when the span must outlive a streaming turn and is ended elsewhere).
// Errors returned by fn are recorded on the span.
func RecordSpan[T any](
	ctx context.Context,
	tracer trace.Tracer,
	opts SpanOptions,
	fn func(context.Context, trace.Span) (T, error),
) (T, error) {
	ctx, span := tracer.Start(ctx, opts.Name,
		trace.WithAttributes(opts.Attributes...),
	)

	result, err := fn(ctx, span)

	if err != nil {
		RecordErrorOnSpan(span, err)
		span.End()
		var zero T
		return zero, err
	}

	if opts.EndWhenDone {
		span.End()
	}

	return result, nil
}

// RecordErrorOnSpan records an error on a span and sets the span status to error.
func RecordErrorOnSpan(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// WorkerAttributes returns the common attributes attached to every span a
// chat/embedding/rerank worker emits.
func WorkerAttributes(kernelModelID string, settings *Settings) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("llmcore.kernel.model_id", kernelModelID),
	}

	if settings != nil {
		if settings.WorkerID != "" {
			attrs = append(attrs, attribute.String("llmcore.worker_id", settings.WorkerID))
		}
		for key, value := range settings.Metadata {
			attrs = append(attrs, attribute.KeyValue{
				Key:   attribute.Key("llmcore.metadata." + key),
				Value: value,
			})
		}
	}

	return attrs
}

// AddStageAttributes adds sampler-stage or turn configuration as attributes on a span.
func AddStageAttributes(span trace.Span, prefix string, values map[string]interface{}) {
	for key, value := range values {
		attrKey := prefix + "." + key
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		}
	}
}
