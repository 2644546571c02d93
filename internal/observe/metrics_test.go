package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value of the data point whose attribute key
// equals value, or -1 when absent.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "get_market_quotes", StatusOK, 0.2)
	m.RecordToolCall(ctx, "get_market_quotes", StatusOK, 0.3)
	m.RecordToolCall(ctx, "get_stock_history", StatusInvalid, 0.001)

	rm := collect(t, reader)

	if got := sumFor(t, rm, "yhfinance.tool.calls", "status", StatusOK); got != 2 {
		t.Errorf("ok calls = %d, want 2", got)
	}
	if got := sumFor(t, rm, "yhfinance.tool.calls", "tool", "get_stock_history"); got != 1 {
		t.Errorf("get_stock_history calls = %d, want 1", got)
	}

	met := findMetric(rm, "yhfinance.tool_execution.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration metric is not a histogram")
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("duration sample count = %d, want 3", total)
	}
}

func TestRecordUpstreamRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUpstreamRequest(ctx, "/api/v1/markets/quote", StatusOK, 0.4)
	m.RecordUpstreamRequest(ctx, "/api/v1/markets/quote", StatusError, 1.1)
	m.RecordUpstreamError(ctx, "/api/v1/markets/quote", "status")

	rm := collect(t, reader)

	if got := sumFor(t, rm, "yhfinance.upstream.requests", "status", StatusError); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
	if got := sumFor(t, rm, "yhfinance.upstream.errors", "kind", "status"); got != 1 {
		t.Errorf("status errors = %d, want 1", got)
	}

	met := findMetric(rm, "yhfinance.upstream.duration")
	if met == nil {
		t.Fatal("upstream duration metric not found")
	}
	if _, ok := met.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatal("upstream duration metric is not a histogram")
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
