package sheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// LoadOptions bounds how much of each worksheet is read.
type LoadOptions struct {
	// MaxRows caps rows read per sheet. Zero means no limit.
	MaxRows int
	// MaxCols caps columns read per row. Zero means no limit.
	MaxCols int
	// Sheets restricts loading to the named sheets. Empty loads all.
	Sheets []string
}

// LoadWorkbook reads an .xlsx file into sheets.
func LoadWorkbook(path string, opts LoadOptions) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()
	return readWorkbook(f, opts)
}

// LoadWorkbookReader reads an .xlsx stream into sheets.
func LoadWorkbookReader(r io.Reader, opts LoadOptions) ([]Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, opts)
}

func readWorkbook(f *excelize.File, opts LoadOptions) ([]Sheet, error) {
	want := make(map[string]bool, len(opts.Sheets))
	for _, name := range opts.Sheets {
		want[name] = true
	}

	sheetList := f.GetSheetList()
	names := definedNames(f, sheetList)

	var out []Sheet
	for _, name := range sheetList {
		if len(want) > 0 && !want[name] {
			continue
		}
		cells, err := readCells(f, name, opts)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		s := Sheet{Name: name, Cells: cells, NamedRanges: names[name]}
		if tables, err := f.GetTables(name); err == nil {
			for _, t := range tables {
				s.Tables = append(s.Tables, NamedRange{Name: t.Name, Range: QuoteSheetName(name) + "!" + t.Range})
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func readCells(f *excelize.File, name string, opts LoadOptions) ([][]Value, error) {
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if opts.MaxRows > 0 && len(rows) > opts.MaxRows {
		rows = rows[:opts.MaxRows]
	}

	cells := make([][]Value, len(rows))
	for r, row := range rows {
		if opts.MaxCols > 0 && len(row) > opts.MaxCols {
			row = row[:opts.MaxCols]
		}
		cells[r] = make([]Value, len(row))
		for c, raw := range row {
			cells[r][c] = readCell(f, name, r, c, raw)
		}
	}
	return cells, nil
}

func readCell(f *excelize.File, sheetName string, row, col int, raw string) Value {
	ref := CellName(row, col)
	if formula, err := f.GetCellFormula(sheetName, ref); err == nil && formula != "" {
		return Formula("=" + strings.TrimPrefix(formula, "="))
	}
	if raw == "" {
		return Empty()
	}
	typ, err := f.GetCellType(sheetName, ref)
	if err != nil {
		return Text(raw)
	}
	switch typ {
	case excelize.CellTypeBool:
		return Bool(raw == "1" || strings.EqualFold(raw, "true"))
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return Date(t)
		}
		if serial, err := strconv.ParseFloat(raw, 64); err == nil {
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return Date(t)
			}
		}
		return Text(raw)
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return Number(n)
		}
		return Text(raw)
	case excelize.CellTypeError:
		return Opaque(raw)
	default:
		return Text(raw)
	}
}

// definedNames groups workbook defined names by the sheet they refer to.
// Names whose target cannot be parsed are dropped.
func definedNames(f *excelize.File, sheetList []string) map[string][]NamedRange {
	known := make(map[string]bool, len(sheetList))
	for _, name := range sheetList {
		known[name] = true
	}
	out := make(map[string][]NamedRange)
	for _, dn := range f.GetDefinedName() {
		ref, err := ParseRange(strings.TrimPrefix(dn.RefersTo, "="))
		if err != nil || !known[ref.Sheet] {
			continue
		}
		out[ref.Sheet] = append(out[ref.Sheet], NamedRange{
			Name:  dn.Name,
			Range: FormatRange(ref.Sheet, ref.Rect),
		})
	}
	return out
}
