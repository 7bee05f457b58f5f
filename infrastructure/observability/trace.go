package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrToolID  = "clitool.id"
	AttrVersion = "clitool.version"
)

// StartSpan starts a span named clitool.<operation> for toolID.
func StartSpan(ctx context.Context, tracer trace.Tracer, operation, toolID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "clitool."+operation,
		trace.WithAttributes(attribute.String(AttrToolID, toolID)),
	)
}

// EndSpan records the outcome on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// VersionAttr tags a span with the version an operation resolved.
func VersionAttr(version string) attribute.KeyValue {
	return attribute.String(AttrVersion, version)
}
