package observability

import (
	"context"
	"time"

	"github.com/pitabwire/frame/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const pkgName = "service_gateway"

// Metrics holds pre-allocated OTel instruments for the gateway. Instruments
// are created once at startup and reused for every measurement.
type Metrics struct {
	tracer telemetry.Tracer

	// Authorization metrics.
	decisionLatency metric.Float64Histogram
	decisionsAllow  metric.Int64Counter
	decisionsDeny   metric.Int64Counter
	decisionsFault  metric.Int64Counter
	grantChanges    metric.Int64Counter

	// Admission metrics.
	lookupRejected     metric.Int64Counter
	connectionRejected metric.Int64Counter
}

// NewMetrics creates and registers all OTel instruments for the gateway.
func NewMetrics() *Metrics {
	t := telemetry.NewTracer(pkgName)

	return &Metrics{
		tracer:          t,
		decisionLatency: telemetry.LatencyMeasure(pkgName + "/authorization"),
		decisionsAllow: telemetry.DimensionlessMeasure(
			pkgName,
			"/authorization/allowed",
			"Number of allowed authorization decisions",
		),
		decisionsDeny: telemetry.DimensionlessMeasure(
			pkgName,
			"/authorization/denied",
			"Number of denied authorization decisions",
		),
		decisionsFault: telemetry.DimensionlessMeasure(
			pkgName,
			"/authorization/faults",
			"Number of authorization decisions failed closed on provider faults",
		),
		grantChanges: telemetry.DimensionlessMeasure(
			pkgName,
			"/authorization/grant_changes",
			"Number of applied permission grant and revoke operations",
		),
		lookupRejected: telemetry.DimensionlessMeasure(
			pkgName,
			"/admission/lookup_rejected",
			"Number of lookup requests rejected at the admission gate",
		),
		connectionRejected: telemetry.DimensionlessMeasure(
			pkgName,
			"/admission/connection_rejected",
			"Number of inbound connections rejected at the admission gate",
		),
	}
}

// StartSpan starts a new traced span and returns the enriched context and span.
func (m *Metrics) StartSpan(
	ctx context.Context,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, opts...)
}

// EndSpan ends a span and records latency.
func (m *Metrics) EndSpan(ctx context.Context, span trace.Span, err error) {
	m.tracer.End(ctx, span, err)
}

// RecordDecision records the outcome and latency of one authorization check.
func (m *Metrics) RecordDecision(
	ctx context.Context,
	operation string,
	allowed bool,
	fault bool,
	elapsed time.Duration,
) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	m.decisionLatency.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	switch {
	case fault:
		m.decisionsFault.Add(ctx, 1, attrs)
	case allowed:
		m.decisionsAllow.Add(ctx, 1, attrs)
	default:
		m.decisionsDeny.Add(ctx, 1, attrs)
	}
}

// RecordGrantChange records an applied grant or revoke operation.
func (m *Metrics) RecordGrantChange(ctx context.Context, scope, action string) {
	m.grantChanges.Add(ctx, 1,
		metric.WithAttributes(attribute.String("scope", scope), attribute.String("action", action)),
	)
}

// RecordLookupRejected records a lookup request turned away at admission.
func (m *Metrics) RecordLookupRejected(ctx context.Context) {
	m.lookupRejected.Add(ctx, 1)
}

// RecordConnectionRejected records an inbound connection turned away at admission.
func (m *Metrics) RecordConnectionRejected(ctx context.Context) {
	m.connectionRejected.Add(ctx, 1)
}
