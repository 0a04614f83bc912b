package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

const (
	attrErrorType = "error_type"
	attrStatus    = "status"
)

// TracingCollector implements eventstore.TracingCollector by starting internal OTel spans.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a collector on top of a tracer from your TracerProvider.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts a span as a child of the span in ctx, if any.
func (t *TracingCollector) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, eventstore.SpanContext) {

	spanCtx, span := t.tracer.Start(
		ctx,
		name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(toAttributes(attrs)...),
	)

	return spanCtx, &OTelSpanContext{span: span}
}

// FinishSpan adds the final attributes, sets the status, and ends the span.
// An error_type attribute becomes the description of an error status.
// SpanContexts not created by this collector are ignored.
func (t *TracingCollector) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*OTelSpanContext)
	if !ok || otelSpanCtx == nil {
		return
	}

	otelSpanCtx.span.SetAttributes(toAttributes(attrs)...)
	otelSpanCtx.setStatus(status, attrs[attrErrorType])
	otelSpanCtx.span.End()
}

var _ eventstore.TracingCollector = (*TracingCollector)(nil)

// OTelSpanContext wraps an OTel span as eventstore.SpanContext.
type OTelSpanContext struct {
	span trace.Span
}

// Span exposes the wrapped span, e.g. to record events on it.
func (s *OTelSpanContext) Span() trace.Span {
	return s.span
}

// SetStatus maps the eventstore status strings onto OTel status codes.
func (s *OTelSpanContext) SetStatus(status string) {
	s.setStatus(status, "")
}

// AddAttribute sets a string attribute on the span.
func (s *OTelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

func (s *OTelSpanContext) setStatus(status, description string) {
	switch status {
	case "success", "ok", "completed":
		s.span.SetStatus(codes.Ok, "")
	case "error", "failed", "failure":
		if description == "" {
			description = "operation failed"
		}
		s.span.SetStatus(codes.Error, description)
	case "conflict":
		s.span.SetStatus(codes.Error, "concurrency conflict")
	case "cancelled", "canceled":
		s.span.SetStatus(codes.Error, "operation cancelled")
	default:
		s.span.SetAttributes(attribute.String(attrStatus, status))
	}
}

var _ eventstore.SpanContext = (*OTelSpanContext)(nil)
