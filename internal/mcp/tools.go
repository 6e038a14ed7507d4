package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/assembler"
	"github.com/fyrsmithlabs/sheetctx/internal/budget"
	"github.com/fyrsmithlabs/sheetctx/internal/conversation"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
	"github.com/fyrsmithlabs/sheetctx/internal/logging"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
)

// ===== BUILD CONTEXT =====

type buildContextInput struct {
	SheetJSON       string                     `json:"sheet_json" jsonschema:"required,Sheet JSON document: one sheet {name, cells} or a workbook {sheets: [...]}"`
	ActiveSheet     string                     `json:"active_sheet,omitempty" jsonschema:"Active sheet of a workbook (default first sheet)"`
	Query           string                     `json:"query,omitempty" jsonschema:"User query used for retrieval"`
	SystemPrompt    string                     `json:"system_prompt,omitempty" jsonschema:"System prompt placed before the sheet context"`
	ToolDefinitions string                     `json:"tool_definitions,omitempty" jsonschema:"Tool definitions counted against the budget"`
	Messages        []conversation.Message     `json:"messages,omitempty" jsonschema:"Conversation so far"`
	Sampling        *assembler.SamplingOptions `json:"sampling,omitempty" jsonschema:"Overrides the configured row sampling"`
	DocumentID      string                     `json:"document_id,omitempty" jsonschema:"Document id recorded in audit logs"`
}

type buildContextOutput struct {
	PromptContext  string             `json:"prompt_context"`
	Sheets         int                `json:"sheets"`
	Plan           budget.Plan        `json:"plan"`
	Classification dlp.Classification `json:"classification"`
	Redacted       bool               `json:"redacted"`
}

// ===== DATA PROTECTION =====

type textInput struct {
	Text string `json:"text" jsonschema:"required,Text to scan"`
}

type classifyOutput struct {
	Classification dlp.Classification `json:"classification"`
	Findings       []dlp.Finding      `json:"findings"`
}

type redactOutput struct {
	Text           string             `json:"text"`
	Changed        bool               `json:"changed"`
	Classification dlp.Classification `json:"classification"`
	Findings       []dlp.Finding      `json:"findings"`
}

// ===== CONVERSATION =====

type trimInput struct {
	Messages               []conversation.Message `json:"messages" jsonschema:"required,Conversation to trim"`
	MaxTokens              int                    `json:"max_tokens,omitempty" jsonschema:"Model context window (default from config)"`
	ReserveForOutputTokens int                    `json:"reserve_for_output_tokens,omitempty" jsonschema:"Tokens held back for the reply"`
	SummaryTokens          int                    `json:"summary_tokens,omitempty" jsonschema:"Cap of the summary replacing dropped turns"`
	KeepLastMessages       int                    `json:"keep_last_messages,omitempty" jsonschema:"Cap on recent non-system messages kept"`
}

type trimOutput struct {
	Messages []conversation.Message `json:"messages"`
	Report   conversation.TrimReport `json:"report"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "build_context",
		Description: "Assemble a token-bounded, redacted LLM context for a spreadsheet",
	}, s.buildContext)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "classify_text",
		Description: "Report the kinds of sensitive data found in text without revealing them",
	}, s.classifyText)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "redact_text",
		Description: "Replace sensitive data in text with typed placeholders",
	}, s.redactText)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "trim_conversation",
		Description: "Fit a conversation into a token budget, keeping tool calls paired with their results",
	}, s.trimConversation)
}

func (s *Server) buildContext(ctx context.Context, _ *mcp.CallToolRequest, args buildContextInput) (res *mcp.CallToolResult, out buildContextOutput, err error) {
	defer s.observe(ctx, "build_context", time.Now(), &err)

	sheets, err := sheet.ParseDocument([]byte(args.SheetJSON), sheet.LoadOptions{})
	if err != nil {
		return nil, buildContextOutput{}, err
	}

	var dlpOpts *assembler.DLPOptions
	if args.DocumentID != "" {
		dlpOpts = &assembler.DLPOptions{DocumentID: args.DocumentID}
		ctx = logging.WithDocumentID(ctx, args.DocumentID)
	}

	var built *assembler.Context
	if len(sheets) > 1 || args.ActiveSheet != "" {
		wb, err := s.assembler.BuildWorkbookContext(ctx, assembler.WorkbookRequest{
			Sheets:          sheets,
			ActiveSheet:     args.ActiveSheet,
			Query:           args.Query,
			SystemPrompt:    args.SystemPrompt,
			ToolDefinitions: args.ToolDefinitions,
			Messages:        args.Messages,
			Sampling:        args.Sampling,
			DLP:             dlpOpts,
		})
		if err != nil {
			return nil, buildContextOutput{}, fmt.Errorf("build workbook context failed: %w", err)
		}
		built = &wb.Context
	} else {
		built, err = s.assembler.BuildContext(ctx, assembler.Request{
			Sheet:           sheets[0],
			Query:           args.Query,
			SystemPrompt:    args.SystemPrompt,
			ToolDefinitions: args.ToolDefinitions,
			Messages:        args.Messages,
			Sampling:        args.Sampling,
			DLP:             dlpOpts,
		})
		if err != nil {
			return nil, buildContextOutput{}, fmt.Errorf("build context failed: %w", err)
		}
	}

	out = buildContextOutput{
		PromptContext:  built.PromptContext,
		Sheets:         len(sheets),
		Plan:           built.Plan,
		Classification: built.Classification,
		Redacted:       built.Redacted,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: out.PromptContext},
		},
	}, out, nil
}

func (s *Server) classifyText(ctx context.Context, _ *mcp.CallToolRequest, args textInput) (res *mcp.CallToolResult, out classifyOutput, err error) {
	defer s.observe(ctx, "classify_text", time.Now(), &err)

	scan, err := s.scan(ctx, args.Text)
	if err != nil {
		return nil, classifyOutput{}, err
	}
	out = classifyOutput{
		Classification: scan.Classification,
		Findings:       nonNil(scan.Findings),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Classification: %s", scan.Classification)},
		},
	}, out, nil
}

func (s *Server) redactText(ctx context.Context, _ *mcp.CallToolRequest, args textInput) (res *mcp.CallToolResult, out redactOutput, err error) {
	defer s.observe(ctx, "redact_text", time.Now(), &err)

	scan, err := s.scan(ctx, args.Text)
	if err != nil {
		return nil, redactOutput{}, err
	}
	out = redactOutput{
		Text:           scan.Redacted,
		Changed:        scan.Changed(),
		Classification: scan.Classification,
		Findings:       nonNil(scan.Findings),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: out.Text},
		},
	}, out, nil
}

func (s *Server) scan(ctx context.Context, text string) (*dlp.Result, error) {
	if text == "" {
		return nil, errors.New("text is required")
	}
	res, err := s.dlp.Scan(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return res, nil
}

func (s *Server) trimConversation(ctx context.Context, _ *mcp.CallToolRequest, args trimInput) (res *mcp.CallToolResult, out trimOutput, err error) {
	defer s.observe(ctx, "trim_conversation", time.Now(), &err)

	if args.MaxTokens < 0 || args.ReserveForOutputTokens < 0 || args.SummaryTokens < 0 || args.KeepLastMessages < 0 {
		return nil, trimOutput{}, errors.New("token limits must not be negative")
	}
	opts := s.trim
	if args.MaxTokens > 0 {
		opts.MaxTokens = args.MaxTokens
	}
	if args.ReserveForOutputTokens > 0 {
		opts.ReserveForOutputTokens = args.ReserveForOutputTokens
	}
	if args.SummaryTokens > 0 {
		opts.SummaryTokens = args.SummaryTokens
	}
	if args.KeepLastMessages > 0 {
		opts.KeepLastMessages = args.KeepLastMessages
	}

	msgs, report, err := conversation.TrimWithReport(ctx, args.Messages, opts)
	if err != nil {
		return nil, trimOutput{}, fmt.Errorf("trim failed: %w", err)
	}
	out = trimOutput{
		Messages: nonNil(msgs),
		Report:   *report,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Trimmed %d messages to %d (%d tokens)", len(args.Messages), len(msgs), report.TokensAfter)},
		},
	}, out, nil
}

// observe records metrics for a finished tool call and logs its failure.
func (s *Server) observe(ctx context.Context, tool string, start time.Time, errp *error) {
	err := *errp
	s.metrics.Record(ctx, tool, time.Since(start), err)
	if err != nil {
		s.logger.Warn("tool call failed", zap.String("tool", tool), zap.Error(err))
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
