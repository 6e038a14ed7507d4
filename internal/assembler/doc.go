// Package assembler builds token-bounded, privacy-safe LLM context from a
// spreadsheet.
//
// BuildContext extracts the sheet schema, samples rows from its largest
// table, optionally retrieves relevant row windows through a Retriever, and
// renders the three as compact JSON sections (schema, retrieved, samples).
// The sections are classified by the DLP engine, redacted when the policy
// evaluator asks for it, capped to their planned token allocations and
// packed by priority into what the system prompt, tool definitions and
// conversation history leave of the context window.
//
// BuildWorkbookContext does the same across every sheet of a workbook and
// requires a Retriever.
//
// The only state shared between calls is the Retriever's IndexCache, a
// bounded LRU keyed by sheet content signature. Evicting an entry deletes
// the sheet's chunks from the vector store.
package assembler
