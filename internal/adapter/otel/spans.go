package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tenantdesk"

// StartSessionSpan starts a span for a session manager operation.
// The span name is "session.<op>".
func StartSessionSpan(ctx context.Context, op, principal string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session."+op,
		trace.WithAttributes(attribute.String("session.principal", principal)),
	)
}

// StartSwitchSpan starts a span for a tenant switch.
func StartSwitchSpan(ctx context.Context, principal, fromTenantID, toTenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session.switch",
		trace.WithAttributes(
			attribute.String("session.principal", principal),
			attribute.String("tenant.from", fromTenantID),
			attribute.String("tenant.to", toTenantID),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
