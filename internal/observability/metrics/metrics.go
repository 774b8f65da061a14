package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline's business counters. A nil *Metrics records nothing.
type Metrics struct {
	snapshots          metric.Int64Counter
	alertsRaised       metric.Int64Counter
	alertsSuppressed   metric.Int64Counter
	exports            metric.Int64Counter
	upstreamDegraded   metric.Int64Counter
	idempotencyLookups metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "opspulse"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.snapshots, "opspulse_snapshots_total", "Daily snapshots persisted, by status."},
		{&m.alertsRaised, "opspulse_alerts_raised_total", "Alerts written after a threshold breach."},
		{&m.alertsSuppressed, "opspulse_alerts_suppressed_total", "Breaches dropped inside the dedup window."},
		{&m.exports, "opspulse_exports_total", "Export jobs that reached a final status."},
		{&m.upstreamDegraded, "opspulse_upstream_degraded_total", "Upstream reads that fell back to an empty result."},
		{&m.idempotencyLookups, "opspulse_idempotency_lookups_total", "Idempotency gate lookups, by outcome."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) RecordSnapshot(ctx context.Context, status string) {
	if m != nil {
		add(ctx, m.snapshots, "status", status)
	}
}

func (m *Metrics) RecordAlertRaised(ctx context.Context, metricType, severity string) {
	if m != nil {
		add(ctx, m.alertsRaised, "metric_type", metricType, "severity", severity)
	}
}

func (m *Metrics) RecordAlertSuppressed(ctx context.Context, metricType, severity string) {
	if m != nil {
		add(ctx, m.alertsSuppressed, "metric_type", metricType, "severity", severity)
	}
}

// RecordExport is called once per job, on COMPLETED or FAILED.
func (m *Metrics) RecordExport(ctx context.Context, reportType, format, status string) {
	if m != nil {
		add(ctx, m.exports, "report_type", reportType, "format", format, "status", status)
	}
}

func (m *Metrics) RecordUpstreamDegraded(ctx context.Context, endpoint, reason string) {
	if m != nil {
		add(ctx, m.upstreamDegraded, "endpoint", endpoint, "reason", reason)
	}
}

// RecordIdempotencyLookup takes hit, miss or fail_open.
func (m *Metrics) RecordIdempotencyLookup(ctx context.Context, outcome string) {
	if m != nil {
		add(ctx, m.idempotencyLookups, "outcome", outcome)
	}
}

// add takes alternating key/value pairs.
func add(ctx context.Context, counter metric.Int64Counter, kv ...string) {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], strings.TrimSpace(kv[i+1])))
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

var allowedLabelKeys = map[attribute.Key]bool{
	"status":      true,
	"metric_type": true,
	"severity":    true,
	"report_type": true,
	"format":      true,
	"endpoint":    true,
	"reason":      true,
	"outcome":     true,
}

// FilterAttributes drops any label outside the fixed low-cardinality set.
// Item identifiers such as affected_item never reach a metric.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := attrs[:0:0]
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
