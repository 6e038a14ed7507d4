package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/sheetctx/internal/config"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http/protobuf"
)

// Config is the telemetry section of the sheetctx configuration file.
type Config struct {
	Enabled bool `koanf:"enabled"`
	// Endpoint is the collector host:port. An http:// or https:// prefix is
	// accepted and stripped.
	Endpoint string `koanf:"endpoint"`
	Protocol string `koanf:"protocol"`
	// Insecure disables TLS. Only loopback endpoints may set it.
	Insecure bool `koanf:"insecure"`
	// CAFile is a PEM bundle for collectors behind a private CA.
	CAFile   string         `koanf:"ca_file"`
	Sampling SamplingConfig `koanf:"sampling"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Shutdown ShutdownConfig `koanf:"shutdown"`
}

// SamplingConfig sets the share of root spans kept. Child spans follow
// their parent.
type SamplingConfig struct {
	Rate float64 `koanf:"rate"`
}

// MetricsConfig controls the periodic metric export.
type MetricsConfig struct {
	Enabled        bool            `koanf:"enabled"`
	ExportInterval config.Duration `koanf:"export_interval"`
}

// ShutdownConfig bounds the final flush when a command exits.
type ShutdownConfig struct {
	Timeout config.Duration `koanf:"timeout"`
}

// NewDefaultConfig returns telemetry defaults. Export stays off until
// telemetry.enabled is set; most CLI runs have no collector.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint: "localhost:4317",
		Protocol: protocolGRPC,
		Insecure: true,
		Sampling: SamplingConfig{Rate: 1},
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: config.Duration(15 * time.Second),
		},
		Shutdown: ShutdownConfig{Timeout: config.Duration(5 * time.Second)},
	}
}

// Validate checks config for errors. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when telemetry is enabled")
	}
	switch c.Protocol {
	case "", protocolGRPC, protocolHTTP:
	default:
		return fmt.Errorf("protocol must be %s or %s, got %q", protocolGRPC, protocolHTTP, c.Protocol)
	}
	if c.Insecure && !isLoopback(c.hostPort()) {
		return fmt.Errorf("insecure export to %q refused: only loopback collectors may skip TLS", c.Endpoint)
	}
	if c.Insecure && c.CAFile != "" {
		return errors.New("ca_file has no effect with insecure")
	}
	if c.Sampling.Rate < 0 || c.Sampling.Rate > 1 {
		return fmt.Errorf("sampling.rate must be between 0 and 1, got %g", c.Sampling.Rate)
	}
	if c.Metrics.Enabled && c.Metrics.ExportInterval.Duration() <= 0 {
		return errors.New("metrics.export_interval must be positive when metrics enabled")
	}
	if c.Shutdown.Timeout.Duration() <= 0 {
		return errors.New("shutdown.timeout must be positive")
	}
	return nil
}

// hostPort returns Endpoint without a URL scheme; the OTLP exporters take a
// bare host:port.
func (c *Config) hostPort() string {
	ep := strings.TrimPrefix(c.Endpoint, "https://")
	return strings.TrimPrefix(ep, "http://")
}

func isLoopback(hostPort string) bool {
	host := hostPort
	if h, _, err := net.SplitHostPort(hostPort); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
