package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tenantdesk"

// Metrics holds all tenantdesk metric instruments.
type Metrics struct {
	SwitchesStarted   metric.Int64Counter
	SwitchesSucceeded metric.Int64Counter
	SwitchesFailed    metric.Int64Counter
	SwitchesRejected  metric.Int64Counter
	SwitchDuration    metric.Float64Histogram
	RefreshesFailed   metric.Int64Counter
	ActiveSessions    metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SwitchesStarted, err = meter.Int64Counter("tenantdesk.switches.started",
		metric.WithDescription("Number of tenant switches sent to the Tenant API"))
	if err != nil {
		return nil, err
	}

	m.SwitchesSucceeded, err = meter.Int64Counter("tenantdesk.switches.succeeded",
		metric.WithDescription("Number of tenant switches that succeeded"))
	if err != nil {
		return nil, err
	}

	m.SwitchesFailed, err = meter.Int64Counter("tenantdesk.switches.failed",
		metric.WithDescription("Number of tenant switches that failed"))
	if err != nil {
		return nil, err
	}

	m.SwitchesRejected, err = meter.Int64Counter("tenantdesk.switches.rejected",
		metric.WithDescription("Number of tenant switches rejected while another was in flight"))
	if err != nil {
		return nil, err
	}

	m.SwitchDuration, err = meter.Float64Histogram("tenantdesk.switch.duration_seconds",
		metric.WithDescription("Tenant switch duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.RefreshesFailed, err = meter.Int64Counter("tenantdesk.refreshes.failed",
		metric.WithDescription("Number of failed tenant refreshes"))
	if err != nil {
		return nil, err
	}

	m.ActiveSessions, err = meter.Int64UpDownCounter("tenantdesk.sessions.active",
		metric.WithDescription("Number of tenant sessions held in memory"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSwitch records the outcome of one switch. Safe on a nil receiver.
func (m *Metrics) RecordSwitch(ctx context.Context, outcome string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	switch outcome {
	case "succeeded":
		m.SwitchesSucceeded.Add(ctx, 1)
	case "failed":
		m.SwitchesFailed.Add(ctx, 1)
	case "rejected":
		m.SwitchesRejected.Add(ctx, 1)
		return
	default:
		return
	}
	m.SwitchDuration.Record(ctx, seconds, attrs)
}

// SwitchStarted counts a switch request leaving for the API. Safe on a nil receiver.
func (m *Metrics) SwitchStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.SwitchesStarted.Add(ctx, 1)
}

// RefreshFailed counts a failed refresh. Safe on a nil receiver.
func (m *Metrics) RefreshFailed(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.RefreshesFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// SessionsDelta adjusts the active session gauge. Safe on a nil receiver.
func (m *Metrics) SessionsDelta(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}
