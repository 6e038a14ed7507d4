package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sheetctx/internal/conversation"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
)

// maxInputSize caps what is read from a file argument or stdin.
const maxInputSize = 64 << 20

// readInput reads the file named by args[0], or stdin when there is no
// argument or it is "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	var (
		r    io.Reader
		name = "stdin"
	)
	if len(args) == 0 || args[0] == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		r, name = f, args[0]
	}

	content, err := io.ReadAll(io.LimitReader(r, maxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(content) > maxInputSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", name, maxInputSize)
	}
	return content, nil
}

// isWorkbookFile reports whether path names an Excel workbook.
func isWorkbookFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return true
	}
	return false
}

// loadSheets reads the build input as a workbook file or a sheet document.
func loadSheets(cmd *cobra.Command, args []string, opts sheet.LoadOptions) ([]sheet.Sheet, error) {
	if len(args) > 0 && isWorkbookFile(args[0]) {
		return sheet.LoadWorkbook(args[0], opts)
	}
	content, err := readInput(cmd, args)
	if err != nil {
		return nil, err
	}
	return sheet.ParseDocument(content, opts)
}

// loadMessages reads a conversation from a JSON file: either an array of
// messages or an object with a "messages" array.
func loadMessages(path string) ([]conversation.Message, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return parseMessages(content)
}

func parseMessages(content []byte) ([]conversation.Message, error) {
	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return nil, fmt.Errorf("no messages")
	}
	if content[0] == '[' {
		var msgs []conversation.Message
		if err := json.Unmarshal(content, &msgs); err != nil {
			return nil, fmt.Errorf("failed to parse messages: %w", err)
		}
		return msgs, nil
	}
	var wrapped struct {
		Messages []conversation.Message `json:"messages"`
	}
	if err := json.Unmarshal(content, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}
	return wrapped.Messages, nil
}

// readTextFile returns the content of path, or "" when path is empty.
func readTextFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(b), nil
}

// writeJSON writes v as indented JSON to the command's output.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// nonNil keeps empty lists as [] in JSON output.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
