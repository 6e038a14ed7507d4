// Command sheetctx assembles token-bounded, privacy-safe LLM context from
// spreadsheets.
//
// Usage:
//
//	sheetctx build workbook.xlsx --query "revenue by region"
//	sheetctx classify notes.txt
//	cat notes.txt | sheetctx redact
//	sheetctx trim history.json --max-tokens 4000
//	sheetctx serve
//	sheetctx health --server http://localhost:9090
package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

const closeTimeout = 5 * time.Second

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "sheetctx",
		Short:        "Build LLM context from spreadsheets",
		Long:         "sheetctx turns spreadsheets into a token-bounded, privacy-safe prompt context: schema, retrieved chunks and sampled rows, redacted before they leave the process.",
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/sheetctx/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override logging.format (json or console)")

	cmd.AddCommand(
		newBuildCmd(opts),
		newClassifyCmd(opts),
		newRedactCmd(opts),
		newTrimCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newHealthCmd(),
	)
	return cmd
}

// run wraps a command body that needs the application. The application is
// closed after fn returns, flushing telemetry even when fn fails.
func (o *rootOptions) run(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, o)
		if err != nil {
			return err
		}
		runErr := fn(ctx, cmd, a, args)

		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil && runErr == nil {
			return err
		}
		return runErr
	}
}
