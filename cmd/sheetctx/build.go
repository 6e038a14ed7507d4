package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/assembler"
	"github.com/fyrsmithlabs/sheetctx/internal/conversation"
	"github.com/fyrsmithlabs/sheetctx/internal/sampling"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
)

type buildOptions struct {
	query        string
	activeSheet  string
	workbook     bool
	systemPrompt string
	toolsFile    string
	messagesFile string

	strategy   string
	size       float64
	seed       uint64
	stratifyBy string

	maxRows int
	maxCols int
	sheets  []string

	documentID string
	output     string
}

func newBuildCmd(root *rootOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build [file|-]",
		Short: "Assemble the LLM context for a spreadsheet",
		Long: `Build reads an .xlsx workbook or a sheet JSON document and prints the
assembled context. JSON input is either one sheet ({"name": ..., "cells": ...})
or a workbook ({"sheets": [...]}). Reads stdin when no file is given.

Workbook inputs with more than one sheet, or --workbook, produce a workbook
context with the schema of every sheet.`,
		Example: `  sheetctx build sales.xlsx --query "top customers"
  sheetctx build sheet.json --strategy random --size 5 --seed 7 --output prompt
  cat workbook.json | sheetctx build --active Orders`,
		Args: cobra.MaximumNArgs(1),
		RunE: root.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			return runBuild(ctx, cmd, a, opts, args)
		}),
	}

	f := cmd.Flags()
	f.StringVarP(&opts.query, "query", "q", "", "user query used for retrieval")
	f.StringVar(&opts.activeSheet, "active", "", "active sheet of a workbook (default first sheet)")
	f.BoolVar(&opts.workbook, "workbook", false, "build a workbook context even for a single sheet")
	f.StringVar(&opts.systemPrompt, "system-prompt", "", "file holding the system prompt")
	f.StringVar(&opts.toolsFile, "tools", "", "file holding the tool definitions")
	f.StringVar(&opts.messagesFile, "messages", "", "JSON file holding the conversation")
	f.StringVar(&opts.strategy, "strategy", "", "sampling strategy: head, tail, systematic, random or stratified")
	f.Float64Var(&opts.size, "size", -1, "number of sampled rows (default from config)")
	f.Uint64Var(&opts.seed, "seed", 0, "seed for random and stratified sampling")
	f.StringVar(&opts.stratifyBy, "stratify-by", "", "column used as stratum key")
	f.IntVar(&opts.maxRows, "max-rows", 0, "rows read per workbook sheet (0 = all)")
	f.IntVar(&opts.maxCols, "max-cols", 0, "columns read per workbook row (0 = all)")
	f.StringSliceVar(&opts.sheets, "sheet", nil, "load only the named workbook sheets")
	f.StringVar(&opts.documentID, "document-id", "", "document id recorded in audit logs")
	f.StringVarP(&opts.output, "output", "o", "json", "output format: json or prompt")

	return cmd
}

func runBuild(ctx context.Context, cmd *cobra.Command, a *app, opts *buildOptions, args []string) error {
	if opts.output != "json" && opts.output != "prompt" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	sheets, err := loadSheets(cmd, args, sheet.LoadOptions{
		MaxRows: opts.maxRows,
		MaxCols: opts.maxCols,
		Sheets:  opts.sheets,
	})
	if err != nil {
		return err
	}

	systemPrompt, err := readTextFile(opts.systemPrompt)
	if err != nil {
		return err
	}
	tools, err := readTextFile(opts.toolsFile)
	if err != nil {
		return err
	}
	var msgs []conversation.Message
	if opts.messagesFile != "" {
		if msgs, err = loadMessages(opts.messagesFile); err != nil {
			return err
		}
	}

	workbook := opts.workbook || len(sheets) > 1 || opts.activeSheet != ""

	// Retrieval needs an index only when there is something to retrieve for.
	var r *retrieval
	if opts.query != "" || workbook {
		if r, err = a.newRetrieval(); err != nil {
			return err
		}
	}
	asm, err := a.newAssembler(r)
	if err != nil {
		return err
	}

	var dlpOpts *assembler.DLPOptions
	if opts.documentID != "" {
		dlpOpts = &assembler.DLPOptions{DocumentID: opts.documentID}
	}
	override := opts.sampling(cmd, asm.Config().Sampling)

	if workbook {
		out, err := asm.BuildWorkbookContext(ctx, assembler.WorkbookRequest{
			Sheets:          sheets,
			ActiveSheet:     opts.activeSheet,
			Query:           opts.query,
			SystemPrompt:    systemPrompt,
			ToolDefinitions: tools,
			Messages:        msgs,
			Sampling:        override,
			DLP:             dlpOpts,
		})
		if err != nil {
			return fmt.Errorf("failed to build workbook context: %w", err)
		}
		a.logger.Info(ctx, "workbook context built",
			zap.Int("sheets", len(out.Schemas)),
			zap.Int("total_tokens", out.Plan.TotalTokens))
		return writeContext(cmd, opts.output, out.PromptContext, out)
	}

	out, err := asm.BuildContext(ctx, assembler.Request{
		Sheet:           sheets[0],
		Query:           opts.query,
		SystemPrompt:    systemPrompt,
		ToolDefinitions: tools,
		Messages:        msgs,
		Sampling:        override,
		DLP:             dlpOpts,
	})
	if err != nil {
		return fmt.Errorf("failed to build context: %w", err)
	}
	a.logger.Info(ctx, "context built", zap.Int("total_tokens", out.Plan.TotalTokens))
	return writeContext(cmd, opts.output, out.PromptContext, out)
}

// sampling returns the sampling override built from the flags that were set,
// or nil when none was.
func (o *buildOptions) sampling(cmd *cobra.Command, base assembler.SamplingOptions) *assembler.SamplingOptions {
	f := cmd.Flags()
	if !f.Changed("strategy") && !f.Changed("size") && !f.Changed("seed") && !f.Changed("stratify-by") {
		return nil
	}
	out := base
	if f.Changed("strategy") {
		out.Strategy = sampling.Strategy(o.strategy)
	}
	if f.Changed("size") {
		out.Size = o.size
	}
	if f.Changed("seed") {
		out.Seed = o.seed
	}
	if f.Changed("stratify-by") {
		out.StratifyBy = o.stratifyBy
	}
	return &out
}

func writeContext(cmd *cobra.Command, format, prompt string, v any) error {
	if format == "prompt" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), prompt)
		return err
	}
	return writeJSON(cmd, v)
}
