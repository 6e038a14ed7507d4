package assembler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/budget"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
)

const instrumentationName = "github.com/fyrsmithlabs/sheetctx/internal/assembler"

// Metrics holds the context build instruments.
type Metrics struct {
	duration   metric.Float64Histogram
	sections   metric.Int64Counter
	redactions metric.Int64Counter
}

// NewMetrics creates Metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}

	var err error
	m.duration, err = meter.Float64Histogram(
		"sheetctx.context.build_duration_seconds",
		metric.WithDescription("Duration of context builds in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0),
	)
	if err != nil {
		logger.Warn("failed to create build duration histogram", zap.Error(err))
	}

	m.sections, err = meter.Int64Counter(
		"sheetctx.context.sections_total",
		metric.WithDescription("Packed sections by outcome (kept, trimmed, dropped)"),
		metric.WithUnit("{section}"),
	)
	if err != nil {
		logger.Warn("failed to create sections counter", zap.Error(err))
	}

	m.redactions, err = meter.Int64Counter(
		"sheetctx.dlp.redactions_total",
		metric.WithDescription("Redacted spans by kind"),
		metric.WithUnit("{redaction}"),
	)
	if err != nil {
		logger.Warn("failed to create redactions counter", zap.Error(err))
	}
	return m
}

func (m *Metrics) recordBuild(ctx context.Context, op string, d time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("error", err != nil),
	))
}

func (m *Metrics) recordSections(ctx context.Context, reports []budget.SectionReport) {
	if m == nil || m.sections == nil {
		return
	}
	for _, r := range reports {
		outcome := "kept"
		switch {
		case r.Dropped:
			outcome = "dropped"
		case r.Trimmed:
			outcome = "trimmed"
		}
		m.sections.Add(ctx, 1, metric.WithAttributes(
			attribute.String("section", r.Key),
			attribute.String("outcome", outcome),
		))
	}
}

func (m *Metrics) recordRedactions(ctx context.Context, log *dlp.AuditLog) {
	if m == nil || m.redactions == nil || log == nil {
		return
	}
	for kind, n := range log.Summary.KindCounts {
		m.redactions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}
