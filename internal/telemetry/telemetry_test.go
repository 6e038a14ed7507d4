package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/fyrsmithlabs/sheetctx/internal/config"
)

func TestConfig_Validate(t *testing.T) {
	enabled := func(mutate func(*Config)) *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		mutate(cfg)
		return cfg
	}
	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{"disabled defaults", NewDefaultConfig(), ""},
		{"enabled defaults", enabled(func(*Config) {}), ""},
		{"disabled ignores junk", &Config{Protocol: "carrier-pigeon"}, ""},
		{"no endpoint", enabled(func(c *Config) { c.Endpoint = "" }), "endpoint is required"},
		{"bad protocol", enabled(func(c *Config) { c.Protocol = "thrift" }), "protocol must be"},
		{"http loopback", enabled(func(c *Config) {
			c.Protocol = protocolHTTP
			c.Endpoint = "http://127.0.0.1:4318"
		}), ""},
		{"ipv6 loopback", enabled(func(c *Config) { c.Endpoint = "[::1]:4317" }), ""},
		{"insecure remote", enabled(func(c *Config) { c.Endpoint = "otel.example.com:4317" }), "only loopback"},
		{"insecure lookalike", enabled(func(c *Config) { c.Endpoint = "localhost.evil.com:4317" }), "only loopback"},
		{"tls remote", enabled(func(c *Config) {
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}), ""},
		{"ca with insecure", enabled(func(c *Config) { c.CAFile = "/etc/ssl/ca.pem" }), "ca_file"},
		{"rate above one", enabled(func(c *Config) { c.Sampling.Rate = 1.5 }), "sampling.rate"},
		{"zero interval", enabled(func(c *Config) { c.Metrics.ExportInterval = 0 }), "export_interval"},
		{"metrics off ignores interval", enabled(func(c *Config) {
			c.Metrics.Enabled = false
			c.Metrics.ExportInterval = 0
		}), ""},
		{"zero shutdown", enabled(func(c *Config) { c.Shutdown.Timeout = config.Duration(0) }), "shutdown.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), "1.2.3")
	require.NoError(t, err)

	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""
	_, err := New(context.Background(), cfg, "1.2.3")
	assert.ErrorContains(t, err, "invalid telemetry config")
}

func TestNew_UnreadableCADegrades(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Insecure = false
	cfg.CAFile = filepath.Join(t.TempDir(), "missing.pem")

	tel, err := New(context.Background(), cfg, "1.2.3")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	h := tel.Health()
	assert.True(t, h.Enabled)
	assert.True(t, h.Degraded)
	assert.Contains(t, h.Reason, "trace exporter")
	assert.Contains(t, h.Reason, "ca_file")
}

func TestTLSConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	tc, err := tlsConfig(cfg)
	require.NoError(t, err)
	assert.Nil(t, tc, "insecure")

	cfg.Insecure = false
	cfg.CAFile = filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(cfg.CAFile, []byte("not a certificate"), 0o600))
	_, err = tlsConfig(cfg)
	assert.ErrorContains(t, err, "no PEM certificates")
}

func TestNewExporters(t *testing.T) {
	for _, proto := range []string{protocolGRPC, protocolHTTP} {
		t.Run(proto, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			cfg.Protocol = proto
			ctx := context.Background()

			spans, err := newSpanExporter(ctx, cfg)
			require.NoError(t, err)
			metrics, err := newMetricExporter(ctx, cfg)
			require.NoError(t, err)

			shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			_ = spans.Shutdown(shutdownCtx)
			_ = metrics.Shutdown(shutdownCtx)
		})
	}
}

func TestNewSampler(t *testing.T) {
	for rate, want := range map[float64]string{
		1:    "AlwaysOnSampler",
		0:    "AlwaysOffSampler",
		0.25: "TraceIDRatioBased{0.25}",
	} {
		s := newSampler(&Config{Sampling: SamplingConfig{Rate: rate}})
		assert.Contains(t, s.Description(), want)
	}
}

func TestTestTelemetry_RecordsGlobals(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()
	t.Cleanup(func() { _ = tt.Shutdown(ctx) })

	_, span := otel.Tracer("sheetctx/assembler").Start(ctx, "Assembler.BuildContext")
	span.SetAttributes(attribute.Int("sheetctx.total_tokens", 1200))
	span.End()

	counter, err := otel.Meter("sheetctx/assembler").Int64Counter("sheetctx.context.builds")
	require.NoError(t, err)
	counter.Add(ctx, 2)

	got := tt.Spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, "Assembler.BuildContext", got[0].Name)
	assert.Contains(t, got[0].Resource.Attributes(), semconv.ServiceName(serviceName))
	assert.Contains(t, got[0].Resource.Attributes(), semconv.ServiceVersion("test"))

	m, err := tt.Collect(ctx, "sheetctx.context.builds")
	require.NoError(t, err)
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.EqualValues(t, 2, sum.DataPoints[0].Value)

	missing, err := tt.Collect(ctx, "sheetctx.none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestShutdown_MarksUnhealthy(t *testing.T) {
	tt := NewTestTelemetry()
	require.True(t, tt.Health().Healthy)

	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.Health().Healthy)
}

func TestDegrade_KeepsFirstReason(t *testing.T) {
	tel := &Telemetry{cfg: NewDefaultConfig()}
	tel.degrade("trace exporter: %s", "dial refused")
	tel.degrade("metric exporter: %s", "dial refused")

	h := tel.Health()
	assert.True(t, h.Degraded)
	assert.Equal(t, "trace exporter: dial refused", h.Reason)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.True(t, tel.Health().Degraded)
}
