package sheet

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidRange is returned when A1 range text cannot be parsed.
var ErrInvalidRange = errors.New("invalid range")

var (
	bareSheetName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
	cellLikeName  = regexp.MustCompile(`^(?i)[A-Z]{1,3}[0-9]+$`)
)

// RangeRef is a parsed A1 range.
type RangeRef struct {
	Sheet string
	Rect  Rect
}

// QuoteSheetName returns name as it must appear before "!" in a range.
// Names that are not bare identifiers, or that read like a cell reference,
// are single-quoted with embedded quotes doubled.
func QuoteSheetName(name string) string {
	if bareSheetName.MatchString(name) && !cellLikeName.MatchString(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ColumnName returns the letters for a 0-based column index.
func ColumnName(col int) string {
	if name, err := excelize.ColumnNumberToName(col + 1); err == nil {
		return name
	}
	// Beyond the Excel grid; keep counting in bijective base 26.
	n := col + 1
	var buf []byte
	for n > 0 {
		n--
		buf = append(buf, byte('A'+n%26))
		n /= 26
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// CellName returns the A1 name of a 0-based cell coordinate.
func CellName(row, col int) string {
	if name, err := excelize.CoordinatesToCellName(col+1, row+1); err == nil {
		return name
	}
	return ColumnName(col) + strconv.Itoa(row+1)
}

// FormatRange renders r on the named sheet, e.g. "Sheet1!A1:C3".
// Single-cell rects omit the end cell.
func FormatRange(sheetName string, r Rect) string {
	cells := CellName(r.StartRow, r.StartCol)
	if r.StartRow != r.EndRow || r.StartCol != r.EndCol {
		cells += ":" + CellName(r.EndRow, r.EndCol)
	}
	if sheetName == "" {
		return cells
	}
	return QuoteSheetName(sheetName) + "!" + cells
}

// ParseRange parses A1 range text. The sheet prefix is optional; "$"
// absolute markers are ignored.
func ParseRange(text string) (RangeRef, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return RangeRef{}, fmt.Errorf("%w: empty", ErrInvalidRange)
	}

	var ref RangeRef
	cells := text
	if idx := strings.LastIndex(text, "!"); idx >= 0 {
		name, err := unquoteSheetName(text[:idx])
		if err != nil {
			return RangeRef{}, err
		}
		ref.Sheet = name
		cells = text[idx+1:]
	}

	parts := strings.Split(strings.ReplaceAll(cells, "$", ""), ":")
	if len(parts) > 2 {
		return RangeRef{}, fmt.Errorf("%w: %q", ErrInvalidRange, text)
	}
	c1, r1, err := excelize.CellNameToCoordinates(parts[0])
	if err != nil {
		return RangeRef{}, fmt.Errorf("%w: %q: %v", ErrInvalidRange, text, err)
	}
	c2, r2 := c1, r1
	if len(parts) == 2 {
		c2, r2, err = excelize.CellNameToCoordinates(parts[1])
		if err != nil {
			return RangeRef{}, fmt.Errorf("%w: %q: %v", ErrInvalidRange, text, err)
		}
	}
	ref.Rect = NewRect(r1-1, c1-1, r2-1, c2-1)
	return ref, nil
}

func unquoteSheetName(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty sheet name", ErrInvalidRange)
	}
	if s[0] != '\'' {
		if strings.ContainsAny(s, "' ") {
			return "", fmt.Errorf("%w: sheet name %q must be quoted", ErrInvalidRange, s)
		}
		return s, nil
	}
	if len(s) < 2 || s[len(s)-1] != '\'' {
		return "", fmt.Errorf("%w: unterminated sheet name %q", ErrInvalidRange, s)
	}
	inner := s[1 : len(s)-1]
	if strings.Contains(strings.ReplaceAll(inner, "''", ""), "'") {
		return "", fmt.Errorf("%w: stray quote in sheet name %q", ErrInvalidRange, s)
	}
	return strings.ReplaceAll(inner, "''", "'"), nil
}
