package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/assembler"
	"github.com/fyrsmithlabs/sheetctx/internal/conversation"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
)

// Server serves sheetctx tools to MCP clients.
type Server struct {
	mcp       *mcp.Server
	assembler *assembler.Assembler
	dlp       *dlp.Engine
	trim      conversation.TrimOptions
	metrics   *Metrics
	logger    *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "sheetctx")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Trim holds the defaults of trim_conversation.
	Trim conversation.TrimOptions

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "sheetctx",
		Version: "dev",
		Trim: conversation.TrimOptions{
			MaxTokens:              8000,
			ReserveForOutputTokens: 1000,
			SummaryTokens:          300,
		},
		Logger: zap.NewNop(),
	}
}

// NewServer creates an MCP server with every tool registered.
func NewServer(cfg *Config, asm *assembler.Assembler, engine *dlp.Engine) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if asm == nil {
		return nil, errors.New("assembler is required")
	}
	if engine == nil {
		return nil, errors.New("dlp engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		assembler: asm,
		dlp:       engine,
		trim:      cfg.Trim,
		metrics:   NewMetrics(logger),
		logger:    logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
