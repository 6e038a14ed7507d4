// Package logging is the zap setup shared by the sheetctx commands and
// servers.
//
// Entries go to stderr, optionally also to the OpenTelemetry log provider.
// Stdout stays free for command results and the MCP stdio transport.
//
// Every field and message is masked before it reaches a sink: values under
// keys such as cell_value or preview are replaced outright, and other text
// is run through the DLP detectors, so a cell that ends up in an error
// message is still masked. The context carries request, document and sheet
// tags that are copied onto each entry:
//
//	ctx = logging.WithDocumentID(ctx, "doc-42")
//	ctx = logging.WithSheetName(ctx, "Q1 Sales")
//	logger.Info(ctx, "context built", zap.Int("total_tokens", n))
//
// Entries below error level are sampled per message.
package logging
