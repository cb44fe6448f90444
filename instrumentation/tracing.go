package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span and metric attribute keys.
//
// Attribute values must be metadata only: channel names, step names, event
// types. Never attach caller-supplied payloads or credentials to spans or
// metrics; traces are persisted and widely readable.
const (
	AttrChannel      = "ipc.channel"
	AttrSenderID     = "ipc.sender_id"
	AttrFrameID      = "ipc.frame_id"
	AttrOutcome      = "ipc.outcome"
	AttrPipelineStep = "ipc.pipeline.step"
	AttrEventType    = "security.event_type"
	AttrSeverity     = "security.severity"
	AttrAlertType    = "security.alert_type"
	AttrPattern      = "security.pattern"
)

// RecordError records an error on a span with proper status codes (nil-safe).
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe).
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe).
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe).
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}
