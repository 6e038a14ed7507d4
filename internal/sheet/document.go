package sheet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoSheets is returned when a document holds no sheet.
var ErrNoSheets = errors.New("input has no sheets")

// zipMagic starts every xlsx file.
var zipMagic = []byte("PK\x03\x04")

// document is either one sheet or a workbook with a "sheets" array.
type document struct {
	Sheets []Sheet `json:"sheets"`
	Sheet
}

// ParseDocument decodes a sheet JSON document. Workbook bytes (a zip
// archive) are loaded with LoadWorkbookReader.
func ParseDocument(content []byte, opts LoadOptions) ([]Sheet, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("no input")
	}
	if bytes.HasPrefix(content, zipMagic) {
		return LoadWorkbookReader(bytes.NewReader(content), opts)
	}

	var doc document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sheet JSON: %w", err)
	}
	if len(doc.Sheets) > 0 {
		return doc.Sheets, nil
	}
	if doc.Name == "" && len(doc.Cells) == 0 {
		return nil, ErrNoSheets
	}
	return []Sheet{doc.Sheet}, nil
}
