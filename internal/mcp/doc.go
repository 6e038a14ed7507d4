// Package mcp exposes context assembly, data protection and conversation
// trimming as Model Context Protocol tools over stdio.
//
// Tools:
//   - build_context: assemble the prompt context of a sheet or workbook
//   - classify_text: report the sensitive data kinds found in text
//   - redact_text: replace sensitive spans with typed placeholders
//   - trim_conversation: fit a conversation into a token budget
package mcp
