package logging

import "go.uber.org/zap/zapcore"

// newSampledCore samples entries below error level; errors always reach
// the sinks.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	return &splitCore{
		sampled: zapcore.NewSamplerWithOptions(core, cfg.Tick.Duration(), cfg.Initial, cfg.Thereafter),
		full:    core,
	}
}

// splitCore routes each entry to the sampler or straight to the sinks by
// level. Check hands the entry to the chosen core, so Write is only reached
// when splitCore itself is added to a CheckedEntry, which it never does.
type splitCore struct {
	sampled zapcore.Core
	full    zapcore.Core
}

func (c *splitCore) Enabled(lvl zapcore.Level) bool { return c.full.Enabled(lvl) }

func (c *splitCore) With(fields []zapcore.Field) zapcore.Core {
	return &splitCore{sampled: c.sampled.With(fields), full: c.full.With(fields)}
}

func (c *splitCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level >= zapcore.ErrorLevel {
		return c.full.Check(e, ce)
	}
	return c.sampled.Check(e, ce)
}

func (c *splitCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.full.Write(e, fields)
}

func (c *splitCore) Sync() error { return c.full.Sync() }

// levelCore applies the configured minimum level to a core that has none of
// its own, such as the otel bridge.
type levelCore struct {
	zapcore.Core
	min zapcore.Level
}

func (c *levelCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && c.Core.Enabled(lvl)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), min: c.min}
}
