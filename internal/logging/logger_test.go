package logging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/sheetctx/internal/config"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
)

func TestLogger_MasksCellContent(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "row from ann@example.com",
		zap.String("cell_value", "Quarterly total"),
		zap.String("note", "card 4111 1111 1111 1111"),
		zap.ByteString("raw", []byte("ann@example.com")),
		zap.Error(fmt.Errorf("parse B7: bad value %q", "ann@example.com")),
		zap.Stringer("range", stringer("Sheet1!A1:C4")),
		zap.Int("rows", 3),
	)

	entries := tl.All()
	require.Len(t, entries, 1)
	e := entries[0]
	fields := e.ContextMap()
	assert.Equal(t, "row from "+dlp.Placeholder(dlp.KindEmail), e.Message)
	assert.Equal(t, maskedValue, fields["cell_value"])
	assert.Equal(t, "card "+dlp.Placeholder(dlp.KindCreditCard), fields["note"])
	assert.Equal(t, dlp.Placeholder(dlp.KindEmail), fields["raw"])
	assert.Contains(t, fields["error"], dlp.Placeholder(dlp.KindEmail))
	assert.Equal(t, "Sheet1!A1:C4", fields["range"])
	assert.EqualValues(t, 3, fields["rows"])
	tl.AssertNoSecrets(t)
}

func TestLogger_WithMasksFields(t *testing.T) {
	tl := NewTestLogger()
	child := tl.With(zap.String("preview", "Alice,42"), zap.String("source", "bob@example.com"))
	child.Warn(context.Background(), "oversized sheet")

	tl.AssertField(t, "oversized sheet", "preview", maskedValue)
	tl.AssertField(t, "oversized sheet", "source", dlp.Placeholder(dlp.KindEmail))
}

func TestLogger_UnderlyingIsMasked(t *testing.T) {
	tl := NewTestLogger()
	tl.Underlying().Info("chunk indexed", zap.String("text", "mail ann@example.com"))

	tl.AssertField(t, "chunk indexed", "text", "mail "+dlp.Placeholder(dlp.KindEmail))
}

func TestMasker_KeysWithoutDLP(t *testing.T) {
	m := newMasker(MaskingConfig{Keys: []string{"Query"}})

	assert.Equal(t, maskedValue, m.field(zap.String("query", "who earns most")).String)
	assert.Equal(t, maskedValue, m.field(zap.Int("QUERY", 7)).String)
	assert.Equal(t, "ann@example.com", m.field(zap.String("owner", "ann@example.com")).String)
	assert.Equal(t, "ann@example.com", m.text("ann@example.com"))
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "build")
	defer span.End()
	ctx = WithRequestID(ctx, "req_123")
	ctx = WithDocumentID(ctx, "doc-42")
	ctx = WithSheetName(ctx, "Q1 Sales")

	tl.Info(ctx, "context built", zap.Int("sections", 3))

	tl.AssertLogged(t, zapcore.InfoLevel, "context built")
	tl.AssertField(t, "context built", "request.id", "req_123")
	tl.AssertField(t, "context built", "document.id", "doc-42")
	tl.AssertField(t, "context built", "sheet.name", "Q1 Sales")
	tl.AssertField(t, "context built", "trace_id", span.SpanContext().TraceID().String())
	tl.AssertField(t, "context built", "span_id", span.SpanContext().SpanID().String())
}

func TestSampledCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    2,
		Thereafter: 0,
	})
	l := zap.New(sampled)

	for range 10 {
		l.Info("chunk indexed")
		l.Error("embedding failed", zap.Error(errors.New("timeout")))
	}

	assert.Equal(t, 2, logs.FilterMessage("chunk indexed").Len())
	assert.Equal(t, 10, logs.FilterMessage("embedding failed").Len(), "errors are never sampled")
}

func TestSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Same(t, core, newSampledCore(core, SamplingConfig{}))
}

func TestLevelCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(&maskingCore{Core: &levelCore{Core: core, min: zapcore.WarnLevel}, m: newMasker(MaskingConfig{})})

	l.Info("dropped")
	l.With(zap.String("sheet", "Sheet1")).Warn("kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
	assert.Equal(t, "Sheet1", logs.All()[0].ContextMap()["sheet"])
}

type stringer string

func (s stringer) String() string { return string(s) }

func TestMasker_LeavesContextTags(t *testing.T) {
	m := newMasker(MaskingConfig{DLP: true})
	id := "4111111111111111"

	assert.Equal(t, id, m.field(zap.String("request.id", id)).String)
	assert.Equal(t, dlp.Placeholder(dlp.KindCreditCard), m.field(zap.String("detail", id)).String)
}
