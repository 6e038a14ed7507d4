package telemetry

import (
	"context"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry is enabled telemetry that exports spans synchronously to
// memory and collects metrics on demand.
type TestTelemetry struct {
	*Telemetry

	Spans   *tracetest.InMemoryExporter
	Metrics *sdkmetric.ManualReader
}

// NewTestTelemetry installs in-memory providers as the otel globals.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	tel, err := newTelemetry(context.Background(), cfg, "test", spans, reader)
	if err != nil {
		// The default config always validates.
		panic(err)
	}
	return &TestTelemetry{Telemetry: tel, Spans: spans, Metrics: reader}
}

// Collect returns the named metric, or nil if nothing recorded it.
func (t *TestTelemetry) Collect(ctx context.Context, name string) (*metricdata.Metrics, error) {
	var rm metricdata.ResourceMetrics
	if err := t.Metrics.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i], nil
			}
		}
	}
	return nil, nil
}
