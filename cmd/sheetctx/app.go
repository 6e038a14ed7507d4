package main

import (
	"context"
	"errors"
	"fmt"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/assembler"
	"github.com/fyrsmithlabs/sheetctx/internal/config"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
	"github.com/fyrsmithlabs/sheetctx/internal/embeddings"
	"github.com/fyrsmithlabs/sheetctx/internal/logging"
	"github.com/fyrsmithlabs/sheetctx/internal/telemetry"
	"github.com/fyrsmithlabs/sheetctx/internal/vectorstore"
)

// app holds the collaborators built from configuration.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	dlp       *dlp.Engine

	closers []func() error
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	src, err := config.Open(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := src.Config()
	if err != nil {
		return nil, err
	}

	logCfg := logging.NewDefaultConfig()
	if err := src.Unmarshal("logging", logCfg); err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		lvl, err := logging.ParseLevel(opts.logLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
		logCfg.Level = lvl
	}
	if opts.logFormat != "" {
		logCfg.Format = opts.logFormat
	}

	telCfg := telemetry.NewDefaultConfig()
	if err := src.Unmarshal("telemetry", telCfg); err != nil {
		return nil, err
	}
	tel, err := telemetry.New(ctx, telCfg, version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var logProvider otellog.LoggerProvider
	if logCfg.Output.OTEL {
		logProvider = global.GetLoggerProvider()
	}
	logger, err := logging.NewLogger(logCfg, logProvider)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	engine, err := dlp.New(&cfg.DLP, logger.Underlying())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize dlp engine: %w", err)
	}

	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}
	logger.Debug(ctx, "configuration loaded", zap.String("path", src.Path()))

	return &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		dlp:       engine,
	}, nil
}

// retrieval bundles the index collaborators of an assembler.
type retrieval struct {
	store     vectorstore.Store
	retriever *assembler.StoreRetriever
}

// newRetrieval builds the embeddings provider, the chunk store and the
// retriever over them.
func (a *app) newRetrieval() (*retrieval, error) {
	zl := a.logger.Underlying()

	provider, err := embeddings.NewProvider(a.cfg.Embeddings.ToProvider(), zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings provider: %w", err)
	}
	a.closers = append(a.closers, provider.Close)

	vsCfg := a.cfg.VectorStore
	vsCfg.VectorSize = provider.Dimension()
	store, err := vectorstore.NewChromemStore(vsCfg, provider, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	ret, err := assembler.NewStoreRetriever(store, provider, a.dlp, a.cfg.Assembler.Retrieval, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}
	return &retrieval{store: store, retriever: ret}, nil
}

// newAssembler builds an assembler. A nil retrieval leaves retrieval out, so
// requests with a query fail with assembler.ErrMissingCollaborator.
func (a *app) newAssembler(r *retrieval) (*assembler.Assembler, error) {
	opts := []assembler.Option{
		assembler.WithDLPEngine(a.dlp),
		assembler.WithLogger(a.logger.Underlying()),
		assembler.WithMetrics(assembler.NewMetrics(a.logger.Underlying())),
	}
	if r != nil {
		opts = append(opts, assembler.WithRetriever(r.retriever))
	}
	return assembler.New(a.cfg.Assembler, opts...)
}

// Close releases collaborators in reverse order, then flushes telemetry and
// the logger.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	if err := a.telemetry.ForceFlush(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry flush failed", zap.Error(err))
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if err := a.logger.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("logger sync: %w", err))
	}
	return errors.Join(errs...)
}
