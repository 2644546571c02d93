// Package observe provides the observability primitives shared by the
// yhfinance server: OpenTelemetry metrics, tracing, trace-aware logging and an
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider] so they can be scraped from /metrics. A
// package-level [DefaultMetrics] instance is provided for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all yhfinance metrics.
const meterName = "github.com/MrWong99/yhfinance"

// Status values used for the "status" attribute.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusInvalid  = "invalid"
	StatusFallback = "fallback"
)

// Metrics holds the metric instruments for the application. The OTel types
// handle their own synchronisation.
type Metrics struct {
	// ToolExecutionDuration tracks end-to-end MCP tool call latency.
	ToolExecutionDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// UpstreamDuration tracks the latency of a single upstream request.
	UpstreamDuration metric.Float64Histogram

	// UpstreamRequests counts upstream requests. Attributes: endpoint, status.
	UpstreamRequests metric.Int64Counter

	// UpstreamErrors counts failed upstream requests. Attributes: endpoint, kind.
	UpstreamErrors metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries (seconds) sized for a remote API
// with a 30 s ceiling.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolExecutionDuration, err = m.Float64Histogram("yhfinance.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UpstreamDuration, err = m.Float64Histogram("yhfinance.upstream.duration",
		metric.WithDescription("Latency of upstream financial-data API requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ToolCalls, err = m.Int64Counter("yhfinance.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamRequests, err = m.Int64Counter("yhfinance.upstream.requests",
		metric.WithDescription("Total upstream requests by endpoint and status."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamErrors, err = m.Int64Counter("yhfinance.upstream.errors",
		metric.WithDescription("Total upstream failures by endpoint and kind."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("yhfinance.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], creating it on first
// call from [otel.GetMeterProvider]. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records one tool invocation and its latency in seconds.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolExecutionDuration.Record(ctx, seconds, attrs)
}

// RecordUpstreamRequest records one upstream request and its latency in
// seconds. endpoint is the request path without host or query.
func (m *Metrics) RecordUpstreamRequest(ctx context.Context, endpoint, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)
	m.UpstreamRequests.Add(ctx, 1, attrs)
	m.UpstreamDuration.Record(ctx, seconds, attrs)
}

// RecordUpstreamError records an upstream failure of the given kind
// ("credential", "transport", "status", "decode").
func (m *Metrics) RecordUpstreamError(ctx context.Context, endpoint, kind string) {
	m.UpstreamErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("kind", kind),
		),
	)
}
