// Package http provides the HTTP API for sheetctx.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/sheetctx/internal/assembler"
	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/conversation"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
	"github.com/fyrsmithlabs/sheetctx/internal/logging"
	"github.com/fyrsmithlabs/sheetctx/internal/sampling"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
	"github.com/fyrsmithlabs/sheetctx/internal/telemetry"
	"github.com/fyrsmithlabs/sheetctx/internal/vectorstore"
)

// Server provides HTTP endpoints for sheetctx.
type Server struct {
	echo      *echo.Echo
	assembler *assembler.Assembler
	dlp       *dlp.Engine
	trim      conversation.TrimOptions
	store     vectorstore.Store
	telemetry *telemetry.Telemetry
	metrics   *HTTPMetrics
	gatherer  prometheus.Gatherer
	logger    *logging.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// BodyLimit caps request bodies, e.g. "8M". Empty disables the limit.
	BodyLimit string
	// RequestTimeout bounds each request's context. Zero disables it.
	RequestTimeout time.Duration
	// RateLimit is the sustained requests per second allowed per client IP
	// on /api routes. Zero disables limiting.
	RateLimit float64
	// RateBurst defaults to 1 when RateLimit is set.
	RateBurst int
	Version   string
}

// Option configures a Server.
type Option func(*Server)

// WithDLPEngine sets the engine used by /classify and /redact.
func WithDLPEngine(e *dlp.Engine) Option {
	return func(s *Server) { s.dlp = e }
}

// WithTrimOptions sets the defaults for /trim.
func WithTrimOptions(opts conversation.TrimOptions) Option {
	return func(s *Server) { s.trim = opts }
}

// WithVectorStore enables index counts on /api/v1/status.
func WithVectorStore(store vectorstore.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithTelemetry reports exporter health on /health.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) { s.telemetry = t }
}

// WithHTTPMetrics replaces the metrics recorded per request.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a new HTTP server.
func NewServer(asm *assembler.Assembler, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if asm == nil {
		return nil, fmt.Errorf("assembler cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:      "localhost",
			Port:      9090,
			BodyLimit: "8M",
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		assembler: asm,
		dlp:       dlp.Default(),
		gatherer:  prometheus.DefaultGatherer,
		logger:    logger,
		config:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewHTTPMetrics(logger.Underlying())
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		// Client supplied ids that fail validation stay in the response
		// header but are not attached to logs.
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(s.logRequests)
	e.Use(s.metrics.MetricsMiddleware())
	if cfg.RateLimit > 0 {
		e.Use(rateLimiter(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeout(cfg.RequestTimeout))
	}

	s.registerRoutes()

	return s, nil
}

// rateLimiter limits /api requests per client IP. Health and metrics
// checks are never limited.
func rateLimiter(limit float64, burst int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Path(), "/api/")
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(limit),
			Burst:     max(burst, 1),
			ExpiresIn: 3 * time.Minute,
		}),
	})
}

// logRequests logs every request with the request id from the context.
func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		status := c.Response().Status
		fields := []zap.Field{
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		ctx := c.Request().Context()
		if status >= http.StatusInternalServerError {
			s.logger.Warn(ctx, "http request", fields...)
		} else {
			s.logger.Info(ctx, "http request", fields...)
		}
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/context", s.handleContext)
	v1.POST("/workbook-context", s.handleWorkbookContext)
	v1.POST("/classify", s.handleClassify)
	v1.POST("/redact", s.handleRedact)
	v1.POST("/trim", s.handleTrim)
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.telemetry != nil {
		h := s.telemetry.Health()
		resp.Telemetry = &h
		if h.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c echo.Context) error {
	sheets, chunks := CountIndexed(c.Request().Context(), s.store)
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "ok",
		Version: s.config.Version,
		Counts: StatusCounts{
			IndexedSheets: sheets,
			Chunks:        chunks,
		},
	})
}

func (s *Server) handleContext(c echo.Context) error {
	var req ContextRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid context request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Sheet.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sheet.name is required")
	}

	ctx := withDocument(c.Request().Context(), req.DLP, req.Sheet.Name)
	out, err := s.assembler.BuildContext(ctx, req.toAssembler())
	if err != nil {
		return s.mapError(ctx, "build context", err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleWorkbookContext(c echo.Context) error {
	var req WorkbookContextRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid workbook context request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Sheets) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "sheets field is required")
	}

	ctx := withDocument(c.Request().Context(), req.DLP, req.ActiveSheet)
	out, err := s.assembler.BuildWorkbookContext(ctx, req.toAssembler())
	if err != nil {
		return s.mapError(ctx, "build workbook context", err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleClassify(c echo.Context) error {
	res, err := s.scan(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ClassifyResponse{
		Classification: res.Classification,
		Findings:       nonNil(res.Findings),
	})
}

func (s *Server) handleRedact(c echo.Context) error {
	res, err := s.scan(c)
	if err != nil {
		return err
	}
	s.logger.Debug(c.Request().Context(), "redacted text",
		zap.Int("findings", len(res.Findings)),
		zap.Stringer("classification", res.Classification))
	return c.JSON(http.StatusOK, RedactResponse{
		Text:           res.Redacted,
		Changed:        res.Changed(),
		Classification: res.Classification,
		Findings:       nonNil(res.Findings),
	})
}

// scan binds a TextRequest and runs the DLP engine over it.
func (s *Server) scan(c echo.Context) (*dlp.Result, error) {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid text request", zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}
	ctx := c.Request().Context()
	res, err := s.dlp.Scan(ctx, req.Text)
	if err != nil {
		return nil, s.mapError(ctx, "scan", err)
	}
	return res, nil
}

func (s *Server) handleTrim(c echo.Context) error {
	var req TrimRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid trim request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MaxTokens < 0 || req.ReserveForOutputTokens < 0 || req.SummaryTokens < 0 || req.KeepLastMessages < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "token limits must not be negative")
	}

	opts := s.trim
	if req.MaxTokens > 0 {
		opts.MaxTokens = req.MaxTokens
	}
	if req.ReserveForOutputTokens > 0 {
		opts.ReserveForOutputTokens = req.ReserveForOutputTokens
	}
	if req.SummaryTokens > 0 {
		opts.SummaryTokens = req.SummaryTokens
	}
	if req.KeepLastMessages > 0 {
		opts.KeepLastMessages = req.KeepLastMessages
	}
	opts.DisableToolPairing = opts.DisableToolPairing || req.DisableToolPairing
	opts.DropToolGroupsFirst = opts.DropToolGroupsFirst || req.DropToolGroupsFirst

	ctx := c.Request().Context()
	msgs, report, err := conversation.TrimWithReport(ctx, req.Messages, opts)
	if err != nil {
		return s.mapError(ctx, "trim", err)
	}
	return c.JSON(http.StatusOK, TrimResponse{
		Messages: nonNil(msgs),
		Report:   report,
	})
}

// mapError turns a domain error into an HTTP error. Internal errors are
// logged and reported without detail.
func (s *Server) mapError(ctx context.Context, op string, err error) error {
	switch {
	case cancel.IsAborted(err):
		return echo.NewHTTPError(http.StatusServiceUnavailable, op+": request aborted")
	case errors.Is(err, assembler.ErrMissingCollaborator):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case errors.Is(err, assembler.ErrSheetNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, assembler.ErrInvalidConfig),
		errors.Is(err, sampling.ErrInvalidSampleSize),
		errors.Is(err, sheet.ErrInvalidRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(ctx, op+" failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, op+" failed")
	}
}

// withDocument attaches document and sheet ids to the context for logging.
func withDocument(ctx context.Context, d *DLPRequest, sheetName string) context.Context {
	if d != nil {
		ctx = logging.WithDocumentID(ctx, d.DocumentID)
	}
	return logging.WithSheetName(ctx, sheetName)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
