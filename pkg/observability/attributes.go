package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attachment semantic convention attributes.
var (
	AttrOperation = attribute.Key("attach.operation")
	AttrScheme    = attribute.Key("attach.scheme")
	AttrRawKind   = attribute.Key("attach.raw")
	AttrTransform = attribute.Key("attach.transform")

	// Payload attributes
	AttrMimeType = attribute.Key("attach.mime_type")
	AttrSize     = attribute.Key("attach.size")
)

// PayloadAttributes describes a payload that was stored or derived.
func PayloadAttributes(scheme, mimeType string, size int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrScheme.String(scheme),
		AttrMimeType.String(mimeType),
		AttrSize.Int64(size),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
