package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the IPC engine.
type Metrics struct {
	// Pipeline metrics
	CallsTotal   metric.Int64Counter
	CallDuration metric.Float64Histogram
	DeniedTotal  metric.Int64Counter

	// Security metrics
	SecurityEventsTotal metric.Int64Counter
	AlertsTotal         metric.Int64Counter
	BlacklistAddsTotal  metric.Int64Counter
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	pipelineMeter := inst.Meter("pipeline")
	securityMeter := inst.Meter("security")

	var err error
	m.CallsTotal, err = pipelineMeter.Int64Counter(
		"ipcguard.calls.total",
		metric.WithDescription("Total number of mediated IPC calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calls.total counter: %w", err)
	}

	m.CallDuration, err = pipelineMeter.Float64Histogram(
		"ipcguard.call.duration",
		metric.WithDescription("Pipeline duration in milliseconds, including the handler"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create call.duration histogram: %w", err)
	}

	m.DeniedTotal, err = pipelineMeter.Int64Counter(
		"ipcguard.denied.total",
		metric.WithDescription("Calls denied by a pipeline step"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create denied.total counter: %w", err)
	}

	m.SecurityEventsTotal, err = securityMeter.Int64Counter(
		"ipcguard.security_events.total",
		metric.WithDescription("Security events recorded by the monitor"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security_events.total counter: %w", err)
	}

	m.AlertsTotal, err = securityMeter.Int64Counter(
		"ipcguard.alerts.total",
		metric.WithDescription("Security alerts raised after deduplication"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create alerts.total counter: %w", err)
	}

	m.BlacklistAddsTotal, err = securityMeter.Int64Counter(
		"ipcguard.blacklist.adds.total",
		metric.WithDescription("Senders added to the blacklist"),
		metric.WithUnit("{sender}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blacklist.adds.total counter: %w", err)
	}

	return m, nil
}

// RecordCall records a completed pipeline invocation.
func (m *Metrics) RecordCall(ctx context.Context, channel, outcome string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String(AttrChannel, channel),
		attribute.String(AttrOutcome, outcome),
	)
	m.CallsTotal.Add(ctx, 1, attrs)
	m.CallDuration.Record(ctx, durationMs, attrs)
}

// RecordDenied records a call denied at the given pipeline step.
func (m *Metrics) RecordDenied(ctx context.Context, channel, step string) {
	m.DeniedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrChannel, channel),
		attribute.String(AttrPipelineStep, step),
	))
}

// RecordSecurityEvent records a monitor event.
func (m *Metrics) RecordSecurityEvent(ctx context.Context, eventType, severity string) {
	m.SecurityEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrEventType, eventType),
		attribute.String(AttrSeverity, severity),
	))
}

// RecordAlert records a raised alert.
func (m *Metrics) RecordAlert(ctx context.Context, alertType, pattern string) {
	attrs := []attribute.KeyValue{attribute.String(AttrAlertType, alertType)}
	if pattern != "" {
		attrs = append(attrs, attribute.String(AttrPattern, pattern))
	}
	m.AlertsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBlacklistAdd records a sender being blacklisted.
func (m *Metrics) RecordBlacklistAdd(ctx context.Context) {
	m.BlacklistAddsTotal.Add(ctx, 1)
}
