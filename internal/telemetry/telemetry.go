package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const serviceName = "sheetctx"

// Telemetry owns the SDK providers installed behind otel.Tracer and
// otel.Meter. The assembler, retriever, vector store, embeddings, MCP and
// HTTP packages only ever talk to those globals.
type Telemetry struct {
	cfg *Config
	tp  *sdktrace.TracerProvider
	mp  *sdkmetric.MeterProvider

	mu     sync.Mutex
	health HealthStatus
}

// HealthStatus is reported on /health and by the health command.
type HealthStatus struct {
	Enabled  bool   `json:"enabled"`
	Healthy  bool   `json:"healthy"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// New installs OTLP-exporting providers as the otel globals. version is
// the sheetctx build version, recorded as service.version.
//
// A disabled config leaves the globals no-op. Exporter setup failures do
// not fail New; they mark the instance degraded and the command carries on
// without that signal.
func New(ctx context.Context, cfg *Config, version string) (*Telemetry, error) {
	return newTelemetry(ctx, cfg, version, nil, nil)
}

// newTelemetry is New with optional replacements for the OTLP span exporter
// and periodic metric reader.
func newTelemetry(ctx context.Context, cfg *Config, version string, spans sdktrace.SpanExporter, reader sdkmetric.Reader) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	t := &Telemetry{cfg: cfg, health: HealthStatus{Enabled: cfg.Enabled, Healthy: true}}
	if !cfg.Enabled {
		return t, nil
	}

	// resource.Default carries a different semconv schema URL and would
	// conflict on merge.
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg)),
	}
	if spans != nil {
		tpOpts = append(tpOpts, sdktrace.WithSyncer(spans))
	} else if exp, err := newSpanExporter(ctx, cfg); err != nil {
		t.degrade("trace exporter: %v", err)
		tpOpts = nil
	} else {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	if tpOpts != nil {
		t.tp = sdktrace.NewTracerProvider(tpOpts...)
		otel.SetTracerProvider(t.tp)
	}

	if cfg.Metrics.Enabled {
		if reader == nil {
			if exp, err := newMetricExporter(ctx, cfg); err != nil {
				t.degrade("metric exporter: %v", err)
			} else {
				reader = sdkmetric.NewPeriodicReader(exp,
					sdkmetric.WithInterval(cfg.Metrics.ExportInterval.Duration()))
			}
		}
		if reader != nil {
			t.mp = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
			otel.SetMeterProvider(t.mp)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// ForceFlush exports pending spans and metrics. One-shot commands call it
// before exiting.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tp != nil {
		if err := t.tp.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric flush: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops the providers, bounded by shutdown.timeout
// unless ctx already has a deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Shutdown.Timeout.Duration())
		defer cancel()
	}
	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
		}
	}
	t.mu.Lock()
	t.health.Healthy = false
	t.mu.Unlock()
	return errors.Join(errs...)
}

// Health returns the current status. A nil Telemetry reports degraded.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true, Reason: "telemetry not initialized"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.health
}

// degrade marks t degraded, keeping the first reason.
func (t *Telemetry) degrade(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.health.Degraded {
		t.health.Degraded = true
		t.health.Reason = fmt.Sprintf(format, args...)
	}
}
