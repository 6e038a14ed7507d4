package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
)

// TestLogger records entries in memory. Entries pass through the default
// masking, so tests see exactly what a sink would receive.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a TestLogger that records every level.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(zapcore.DebugLevel)
	masked := &maskingCore{Core: core, m: newMasker(NewDefaultConfig().Masking)}
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(masked)},
		observed: observed,
	}
}

// All returns the recorded entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// Reset drops the recorded entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if t.observed.FilterLevelExact(level).FilterMessageSnippet(msg).Len() == 0 {
		tb.Errorf("expected %v entry containing %q, got %+v", level, msg, t.observed.All())
	}
}

// AssertField fails tb unless an entry containing msg has a string field
// key equal to want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key, want string) {
	tb.Helper()
	for _, e := range t.observed.FilterMessageSnippet(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && got == want {
			return
		}
	}
	tb.Errorf("no %q entry with %s=%q", msg, key, want)
}

// AssertNoSecrets fails tb if any recorded message or string field still
// holds something the DLP detectors classify as sensitive.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	for _, e := range t.observed.All() {
		if c := dlp.Classify(e.Message); c.Level == dlp.LevelSensitive {
			tb.Errorf("sensitive data (%s) in message %q", c, e.Message)
		}
		for key, v := range e.ContextMap() {
			s, ok := v.(string)
			if !ok || strings.HasPrefix(s, maskedValue) {
				continue
			}
			if c := dlp.Classify(s); c.Level == dlp.LevelSensitive {
				tb.Errorf("sensitive data (%s) in field %q", c, key)
			}
		}
	}
}
