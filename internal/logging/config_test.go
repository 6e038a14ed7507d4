package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/sheetctx/internal/config"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.True(t, cfg.Output.Stderr)
	assert.False(t, cfg.Output.OTEL)
	assert.True(t, cfg.Masking.DLP)
	assert.Contains(t, cfg.Masking.Keys, "cell_value")
	assert.Equal(t, "sheetctx", cfg.Fields["service"])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"yaml format", func(c *Config) { c.Format = "yaml" }, "format"},
		{"no output", func(c *Config) { c.Output = OutputConfig{} }, "at least one output"},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }, "tick"},
		{"zero initial", func(c *Config) { c.Sampling.Initial = 0 }, "initial"},
		{"empty field value", func(c *Config) { c.Fields["env"] = "" }, "constant field"},
		{"sampling off ignores tick", func(c *Config) {
			c.Sampling.Enabled = false
			c.Sampling.Tick = config.Duration(0)
		}, ""},
		{"otel only", func(c *Config) { c.Output = OutputConfig{OTEL: true} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Format = "xml"
		_, err := NewLogger(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("otel only without provider", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Output = OutputConfig{OTEL: true}
		_, err := NewLogger(cfg, nil)
		assert.ErrorContains(t, err, "no log output")
	})

	t.Run("stderr", func(t *testing.T) {
		l, err := NewLogger(NewDefaultConfig(), nil)
		require.NoError(t, err)
		assert.True(t, l.Underlying().Core().Enabled(zapcore.InfoLevel))
		assert.False(t, l.Underlying().Core().Enabled(zapcore.DebugLevel))
		_ = l.Sync()
	})
}
