package http

import (
	"github.com/fyrsmithlabs/sheetctx/internal/assembler"
	"github.com/fyrsmithlabs/sheetctx/internal/conversation"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
	"github.com/fyrsmithlabs/sheetctx/internal/telemetry"
)

// DLPRequest carries per-request data protection inputs.
type DLPRequest struct {
	Policy     any                              `json:"policy,omitempty"`
	DocumentID string                           `json:"documentId,omitempty"`
	SheetID    string                           `json:"sheetId,omitempty"`
	Records    []assembler.ClassificationRecord `json:"records,omitempty"`
}

func (r *DLPRequest) options() *assembler.DLPOptions {
	if r == nil {
		return nil
	}
	return &assembler.DLPOptions{
		Policy:     r.Policy,
		DocumentID: r.DocumentID,
		SheetID:    r.SheetID,
		Records:    r.Records,
	}
}

// ContextRequest is the request body for POST /api/v1/context.
type ContextRequest struct {
	Sheet           sheet.Sheet                `json:"sheet"`
	Query           string                     `json:"query"`
	SystemPrompt    string                     `json:"systemPrompt,omitempty"`
	ToolDefinitions string                     `json:"toolDefinitions,omitempty"`
	Messages        []conversation.Message     `json:"messages,omitempty"`
	Sampling        *assembler.SamplingOptions `json:"sampling,omitempty"`
	DLP             *DLPRequest                `json:"dlp,omitempty"`
}

func (r *ContextRequest) toAssembler() assembler.Request {
	return assembler.Request{
		Sheet:           r.Sheet,
		Query:           r.Query,
		SystemPrompt:    r.SystemPrompt,
		ToolDefinitions: r.ToolDefinitions,
		Messages:        r.Messages,
		Sampling:        r.Sampling,
		DLP:             r.DLP.options(),
	}
}

// WorkbookContextRequest is the request body for POST /api/v1/workbook-context.
type WorkbookContextRequest struct {
	Sheets          []sheet.Sheet              `json:"sheets"`
	ActiveSheet     string                     `json:"activeSheet,omitempty"`
	Query           string                     `json:"query"`
	SystemPrompt    string                     `json:"systemPrompt,omitempty"`
	ToolDefinitions string                     `json:"toolDefinitions,omitempty"`
	Messages        []conversation.Message     `json:"messages,omitempty"`
	Sampling        *assembler.SamplingOptions `json:"sampling,omitempty"`
	DLP             *DLPRequest                `json:"dlp,omitempty"`
}

func (r *WorkbookContextRequest) toAssembler() assembler.WorkbookRequest {
	return assembler.WorkbookRequest{
		Sheets:          r.Sheets,
		ActiveSheet:     r.ActiveSheet,
		Query:           r.Query,
		SystemPrompt:    r.SystemPrompt,
		ToolDefinitions: r.ToolDefinitions,
		Messages:        r.Messages,
		Sampling:        r.Sampling,
		DLP:             r.DLP.options(),
	}
}

// TextRequest is the request body for POST /api/v1/classify and
// POST /api/v1/redact.
type TextRequest struct {
	Text string `json:"text"`
}

// ClassifyResponse is the response body for POST /api/v1/classify.
type ClassifyResponse struct {
	Classification dlp.Classification `json:"classification"`
	Findings       []dlp.Finding      `json:"findings"`
}

// RedactResponse is the response body for POST /api/v1/redact.
type RedactResponse struct {
	Text           string             `json:"text"`
	Changed        bool               `json:"changed"`
	Classification dlp.Classification `json:"classification"`
	Findings       []dlp.Finding      `json:"findings"`
}

// TrimRequest is the request body for POST /api/v1/trim. Zero-valued limits
// fall back to the server's configured trim options.
type TrimRequest struct {
	Messages               []conversation.Message `json:"messages"`
	MaxTokens              int                    `json:"maxTokens,omitempty"`
	ReserveForOutputTokens int                    `json:"reserveForOutputTokens,omitempty"`
	SummaryTokens          int                    `json:"summaryTokens,omitempty"`
	KeepLastMessages       int                    `json:"keepLastMessages,omitempty"`
	DisableToolPairing     bool                   `json:"disableToolPairing,omitempty"`
	DropToolGroupsFirst    bool                   `json:"dropToolGroupsFirst,omitempty"`
}

// TrimResponse is the response body for POST /api/v1/trim.
type TrimResponse struct {
	Messages []conversation.Message  `json:"messages"`
	Report   *conversation.TrimReport `json:"report"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version,omitempty"`
	Counts  StatusCounts `json:"counts"`
}

// StatusCounts reports what the retrieval index holds. -1 means unknown.
type StatusCounts struct {
	IndexedSheets int `json:"indexed_sheets"`
	Chunks        int `json:"chunks"`
}
