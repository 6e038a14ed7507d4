package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/conversation"
	httpapi "github.com/fyrsmithlabs/sheetctx/internal/http"
)

type trimOptions struct {
	maxTokens           int
	reserveOutput       int
	summaryTokens       int
	keepLast            int
	disableToolPairing  bool
	dropToolGroupsFirst bool
}

func newTrimCmd(root *rootOptions) *cobra.Command {
	opts := &trimOptions{}

	cmd := &cobra.Command{
		Use:   "trim [file|-]",
		Short: "Fit a conversation into a token budget",
		Long: `Trim reads a conversation (a JSON array of messages, or an object with a
"messages" array) and drops or summarizes the oldest turns until it fits
max-tokens minus the output reserve. System messages and the latest turn are
kept. Tool calls stay paired with their results.

Limits left at zero use the trim section of the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: root.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			return runTrim(ctx, cmd, a, opts, args)
		}),
	}

	f := cmd.Flags()
	f.IntVar(&opts.maxTokens, "max-tokens", 0, "model context window")
	f.IntVar(&opts.reserveOutput, "reserve-output", 0, "tokens held back for the reply")
	f.IntVar(&opts.summaryTokens, "summary-tokens", 0, "cap of the summary replacing dropped turns")
	f.IntVar(&opts.keepLast, "keep-last", 0, "cap on recent non-system messages kept")
	f.BoolVar(&opts.disableToolPairing, "no-tool-pairing", false, "trim tool calls independently of their results")
	f.BoolVar(&opts.dropToolGroupsFirst, "drop-tool-groups-first", false, "drop older tool exchanges before other turns")

	return cmd
}

func runTrim(ctx context.Context, cmd *cobra.Command, a *app, opts *trimOptions, args []string) error {
	if opts.maxTokens < 0 || opts.reserveOutput < 0 || opts.summaryTokens < 0 || opts.keepLast < 0 {
		return fmt.Errorf("token limits must not be negative")
	}

	content, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	msgs, err := parseMessages(content)
	if err != nil {
		return err
	}

	trim := a.cfg.Trim
	if opts.maxTokens > 0 {
		trim.MaxTokens = opts.maxTokens
	}
	if opts.reserveOutput > 0 {
		trim.ReserveForOutputTokens = opts.reserveOutput
	}
	if opts.summaryTokens > 0 {
		trim.SummaryTokens = opts.summaryTokens
	}
	if opts.keepLast > 0 {
		trim.KeepLastMessages = opts.keepLast
	}
	trim.DisableToolPairing = trim.DisableToolPairing || opts.disableToolPairing
	trim.DropToolGroupsFirst = trim.DropToolGroupsFirst || opts.dropToolGroupsFirst

	out, report, err := conversation.TrimWithReport(ctx, msgs, trim)
	if err != nil {
		return fmt.Errorf("failed to trim conversation: %w", err)
	}
	a.logger.Info(ctx, "conversation trimmed",
		zap.Int("messages_in", len(msgs)),
		zap.Int("messages_out", len(out)),
		zap.Int("tokens_before", report.TokensBefore))

	return writeJSON(cmd, httpapi.TrimResponse{
		Messages: nonNil(out),
		Report:   report,
	})
}
