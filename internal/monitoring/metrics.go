package monitoring

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Attribute keys for governance metrics
const (
	attrAgent  = "governance.agent"
	attrStatus = "governance.run.status"
)

// Metrics bundles the governance instruments: run counters labeled by agent
// and terminal status, a run duration histogram, and failure counters for
// audit write gaps and dropped events. A nil *Metrics is a valid no-op,
// which keeps tests free of exporter setup.
type Metrics struct {
	runsTotal          metric.Int64Counter
	runDuration        metric.Float64Histogram
	auditWriteFailures metric.Int64Counter
	eventsDropped      metric.Int64Counter
	handler            http.Handler
}

// New sets up an OpenTelemetry meter backed by a dedicated Prometheus
// registry and returns the instruments plus the scrape handler.
func New(serviceName string) (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	meter := provider.Meter(serviceName)

	m := &Metrics{
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	if m.runsTotal, err = meter.Int64Counter("agent_runs_total",
		metric.WithDescription("Agent runs by agent and terminal status")); err != nil {
		return nil, err
	}
	if m.runDuration, err = meter.Float64Histogram("agent_run_duration_seconds",
		metric.WithDescription("Wall-clock duration of successful agent runs"),
		metric.WithExplicitBucketBoundaries(.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60)); err != nil {
		return nil, err
	}
	if m.auditWriteFailures, err = meter.Int64Counter("audit_write_failures_total",
		metric.WithDescription("Audit log writes that failed and left a history gap")); err != nil {
		return nil, err
	}
	if m.eventsDropped, err = meter.Int64Counter("agent_events_dropped_total",
		metric.WithDescription("Events dropped on full subscriber queues")); err != nil {
		return nil, err
	}
	return m, nil
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// RecordRun counts one terminal run.
func (m *Metrics) RecordRun(ctx context.Context, agent, status string) {
	if m == nil {
		return
	}
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrAgent, agent),
		attribute.String(attrStatus, status),
	))
}

// ObserveRunDuration records one successful run's duration in seconds.
func (m *Metrics) ObserveRunDuration(ctx context.Context, agent string, seconds float64) {
	if m == nil {
		return
	}
	m.runDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String(attrAgent, agent),
	))
}

// IncAuditWriteFailure counts a failed audit write.
func (m *Metrics) IncAuditWriteFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.auditWriteFailures.Add(ctx, 1)
}

// IncEventDropped counts an event dropped for a slow subscriber.
func (m *Metrics) IncEventDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.eventsDropped.Add(ctx, 1)
}
