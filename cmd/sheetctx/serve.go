package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/fyrsmithlabs/sheetctx/internal/http"
)

type serveOptions struct {
	host           string
	port           int
	requestTimeout time.Duration
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the context API over HTTP",
		Long: `Serve starts the HTTP API:

  GET  /health
  GET  /metrics
  GET  /api/v1/status
  POST /api/v1/context
  POST /api/v1/workbook-context
  POST /api/v1/classify
  POST /api/v1/redact
  POST /api/v1/trim

It stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: root.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, a, opts)
		}),
	}

	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "", "listen host (default server.host)")
	f.IntVar(&opts.port, "port", 0, "listen port (default server.port)")
	f.DurationVar(&opts.requestTimeout, "request-timeout", 30*time.Second, "per-request deadline (0 disables)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, a *app, opts *serveOptions) error {
	r, err := a.newRetrieval()
	if err != nil {
		return err
	}
	asm, err := a.newAssembler(r)
	if err != nil {
		return err
	}

	cfg := &httpapi.Config{
		Host:           a.cfg.Server.Host,
		Port:           a.cfg.Server.Port,
		BodyLimit:      a.cfg.Server.BodyLimit,
		RequestTimeout: opts.requestTimeout,
		RateLimit:      a.cfg.Server.RateLimit,
		RateBurst:      a.cfg.Server.RateBurst,
		Version:        cmd.Root().Version,
	}
	if opts.host != "" {
		cfg.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Port = opts.port
	}

	server, err := httpapi.NewServer(asm, a.logger, cfg,
		httpapi.WithDLPEngine(a.dlp),
		httpapi.WithTrimOptions(a.cfg.Trim),
		httpapi.WithVectorStore(r.store),
		httpapi.WithTelemetry(a.telemetry),
	)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(ctx, "server shutdown error", zap.Error(err))
		return err
	}
	a.logger.Info(ctx, "server stopped gracefully")
	return nil
}
