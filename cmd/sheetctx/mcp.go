package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sheetctx/internal/mcp"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the context tools over MCP stdio",
		Long: `MCP starts a Model Context Protocol server on stdin/stdout with the tools
build_context, classify_text, redact_text and trim_conversation. Logs go to
stderr.`,
		Args: cobra.NoArgs,
		RunE: root.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r, err := a.newRetrieval()
			if err != nil {
				return err
			}
			asm, err := a.newAssembler(r)
			if err != nil {
				return err
			}
			server, err := mcp.NewServer(&mcp.Config{
				Name:    "sheetctx",
				Version: cmd.Root().Version,
				Trim:    a.cfg.Trim,
				Logger:  a.logger.Underlying(),
			}, asm, a.dlp)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		}),
	}
}
