package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/fyrsmithlabs/sheetctx/internal/http"
)

func newClassifyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file|-]",
		Short: "Report the sensitivity of text",
		Long: `Classify scans text for sensitive data (emails, phone numbers, card
numbers, national ids, credentials) and prints the classification with the
kind and position of each finding. Matched values are never printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: root.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res, err := a.dlp.Scan(ctx, string(content))
			if err != nil {
				return fmt.Errorf("failed to classify: %w", err)
			}
			return writeJSON(cmd, httpapi.ClassifyResponse{
				Classification: res.Classification,
				Findings:       nonNil(res.Findings),
			})
		}),
	}
}

func newRedactCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "redact [file|-]",
		Short: "Replace sensitive data in text with placeholders",
		Long: `Redact replaces every sensitive span with a typed placeholder such as
[REDACTED_EMAIL] and writes the result to stdout. The number of redactions is logged
to stderr.`,
		Example: `  sheetctx redact notes.txt > notes.redacted.txt
  echo "mail bob@example.com" | sheetctx redact --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: root.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res, err := a.dlp.Scan(ctx, string(content))
			if err != nil {
				return fmt.Errorf("failed to redact: %w", err)
			}
			if res.Changed() {
				a.logger.Info(ctx, "redacted sensitive data", zap.Int("findings", len(res.Findings)))
			}
			if asJSON {
				return writeJSON(cmd, httpapi.RedactResponse{
					Text:           res.Redacted,
					Changed:        res.Changed(),
					Classification: res.Classification,
					Findings:       nonNil(res.Findings),
				})
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), res.Redacted)
			return err
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the redaction report as JSON")
	return cmd
}
