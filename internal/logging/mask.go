package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
)

const maskedValue = "[REDACTED]"

// tagKeys are the correlation fields added from the context. Their values
// are validated ids, and DLP scanning could mistake a trace id for a key.
var tagKeys = map[string]bool{
	"trace_id":    true,
	"span_id":     true,
	"request.id":  true,
	"document.id": true,
	"sheet.name":  true,
}

// masker rewrites log fields so that workbook content and credentials never
// reach a sink.
type masker struct {
	keys   map[string]bool
	engine *dlp.Engine
}

func newMasker(cfg MaskingConfig) *masker {
	m := &masker{keys: make(map[string]bool, len(cfg.Keys))}
	for _, k := range cfg.Keys {
		m.keys[strings.ToLower(k)] = true
	}
	if cfg.DLP {
		m.engine = dlp.Default()
	}
	return m
}

func (m *masker) text(s string) string {
	if m.engine == nil || s == "" {
		return s
	}
	return m.engine.Redact(s)
}

// field masks one field. Masked keys lose their value whatever its type;
// otherwise only values that render as text are scanned.
func (m *masker) field(f zapcore.Field) zapcore.Field {
	if m.keys[strings.ToLower(f.Key)] {
		return zap.String(f.Key, maskedValue)
	}
	if m.engine == nil || tagKeys[f.Key] {
		return f
	}
	switch f.Type {
	case zapcore.StringType:
		return zap.String(f.Key, m.text(f.String))
	case zapcore.ByteStringType:
		return zap.String(f.Key, m.text(string(f.Interface.([]byte))))
	case zapcore.StringerType:
		return zap.String(f.Key, m.text(fmt.Sprint(f.Interface)))
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			return zap.String(f.Key, m.text(err.Error()))
		}
	}
	return f
}

func (m *masker) fields(fs []zapcore.Field) []zapcore.Field {
	if len(fs) == 0 {
		return fs
	}
	out := make([]zapcore.Field, len(fs))
	for i, f := range fs {
		out[i] = m.field(f)
	}
	return out
}

// maskingCore masks the message and every field before the wrapped core
// encodes them. It adds itself to the CheckedEntry so that Write always
// goes through the masker.
type maskingCore struct {
	zapcore.Core
	m *masker
}

func (c *maskingCore) With(fields []zapcore.Field) zapcore.Core {
	return &maskingCore{Core: c.Core.With(c.m.fields(fields)), m: c.m}
}

func (c *maskingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return ce.AddCore(e, c)
}

func (c *maskingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	e.Message = c.m.text(e.Message)
	return c.Core.Write(e, c.m.fields(fields))
}
