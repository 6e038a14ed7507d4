// Package conversation fits chat histories into a token budget.
//
// Trim keeps system messages, replaces older turns with a single generated
// summary message and keeps as much of the recent tail as fits. Assistant
// tool calls and their results are treated as one unit so a trimmed history
// never contains a tool result without the call that produced it.
package conversation
