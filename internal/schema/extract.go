package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/region"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
)

// Extractor builds SheetSchemas.
type Extractor struct {
	limits Limits
	logger *zap.Logger
}

// NewExtractor creates an extractor. Zero limit fields take defaults.
func NewExtractor(limits Limits, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{limits: limits.withDefaults(), logger: logger}
}

// Extract is a convenience wrapper around NewExtractor(limits, nil).Extract.
func Extract(ctx context.Context, s sheet.Sheet, limits Limits) (*SheetSchema, error) {
	return NewExtractor(limits, nil).Extract(ctx, s)
}

// analysis is the per-region result of header and column inference.
type analysis struct {
	hasHeader bool
	headers   []string
	columns   []Column
}

// Extract detects regions in s, infers headers and column types, and merges
// them with the sheet's declared tables. Malformed declared tables and named
// ranges are skipped.
func (e *Extractor) Extract(ctx context.Context, s sheet.Sheet) (*SheetSchema, error) {
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	orow, ocol := s.OriginOffset()

	rects, err := region.Detect(ctx, s.Cells, e.limits.MaxScannedCells)
	if err != nil {
		return nil, err
	}

	out := &SheetSchema{
		Name:        s.Name,
		Tables:      []Table{},
		DataRegions: make([]DataRegion, 0, len(rects)),
	}

	implicit := make([]Table, 0, len(rects))
	for _, local := range rects {
		if err := cancel.Check(ctx); err != nil {
			return nil, err
		}
		a, err := e.analyze(ctx, s.Cells, local, ocol, true)
		if err != nil {
			return nil, err
		}
		abs := local.Offset(orow, ocol)
		types := make([]ColumnType, len(a.columns))
		for i, c := range a.columns {
			types[i] = c.Type
		}
		out.DataRegions = append(out.DataRegions, DataRegion{
			Range:       sheet.FormatRange(s.Name, abs),
			Rect:        abs,
			HasHeader:   a.hasHeader,
			Headers:     a.headers,
			ColumnTypes: types,
			RowCount:    abs.Rows(),
			ColumnCount: abs.Cols(),
		})
		implicit = append(implicit, newTable("", s.Name, abs, a))
	}

	explicit, err := e.explicitTables(ctx, s, orow, ocol)
	if err != nil {
		return nil, err
	}

	n := 0
	for _, t := range implicit {
		if containedByAny(explicit, t.Rect) {
			continue
		}
		n++
		t.Name = fmt.Sprintf("Region%d", n)
		explicit = append(explicit, t)
	}
	slices.SortStableFunc(explicit, func(a, b Table) int { return compareRects(a.Rect, b.Rect) })
	out.Tables = explicit

	out.NamedRanges = e.namedRanges(s)

	e.logger.Debug("schema extracted",
		zap.String("sheet.name", s.Name),
		zap.Int("regions", len(out.DataRegions)),
		zap.Int("tables", len(out.Tables)))
	return out, nil
}

func newTable(name, sheetName string, abs sheet.Rect, a analysis) Table {
	rows := abs.Rows()
	if a.hasHeader {
		rows--
	}
	return Table{
		Name:      name,
		Range:     sheet.FormatRange(sheetName, abs),
		HasHeader: a.hasHeader,
		Columns:   a.columns,
		RowCount:  rows,
		Rect:      abs,
	}
}

func containedByAny(tables []Table, r sheet.Rect) bool {
	for _, t := range tables {
		if t.Rect.Contains(r) {
			return true
		}
	}
	return false
}

func compareRects(a, b sheet.Rect) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

// explicitTables parses the sheet's declared tables. Declared ranges are
// absolute; only the part overlapping the cell matrix is analyzed.
func (e *Extractor) explicitTables(ctx context.Context, s sheet.Sheet, orow, ocol int) ([]Table, error) {
	var out []Table
	for _, decl := range s.Tables {
		if err := cancel.Check(ctx); err != nil {
			return nil, err
		}
		ref, err := sheet.ParseRange(decl.Range)
		if err != nil {
			e.logger.Warn("skipping table with malformed range",
				zap.String("sheet.name", s.Name), zap.String("table", decl.Name), zap.Error(err))
			continue
		}
		if ref.Sheet != "" && ref.Sheet != s.Name {
			e.logger.Warn("skipping table declared on another sheet",
				zap.String("sheet.name", s.Name), zap.String("table", decl.Name))
			continue
		}

		abs := ref.Rect
		var a analysis
		if clip, ok := e.clip(s.Cells, abs.Offset(-orow, -ocol)); ok {
			// A header is only recognized when the declared first row is in view.
			a, err = e.analyze(ctx, s.Cells, clip, ocol, clip.StartRow == abs.StartRow-orow)
			if err != nil {
				return nil, err
			}
		}
		name := decl.Name
		if name == "" {
			name = sheet.FormatRange(s.Name, abs)
		}
		t := newTable(name, s.Name, abs, a)
		t.Explicit = true
		if t.Columns == nil {
			t.Columns = []Column{}
		}
		out = append(out, t)
	}
	return out, nil
}

// clip bounds a local rect to the rows present in cells and to the widest
// row among the rows that analysis would read.
func (e *Extractor) clip(cells [][]sheet.Value, local sheet.Rect) (sheet.Rect, bool) {
	if len(cells) == 0 {
		return sheet.Rect{}, false
	}
	rows, ok := local.Intersect(sheet.NewRect(0, 0, len(cells)-1, local.EndCol))
	if !ok {
		return sheet.Rect{}, false
	}
	widest := 0
	last := min(rows.EndRow, rows.StartRow+e.limits.MaxAnalyzedRows)
	for r := rows.StartRow; r <= last; r++ {
		widest = max(widest, len(cells[r]))
	}
	if widest == 0 {
		return sheet.Rect{}, false
	}
	return rows.Intersect(sheet.NewRect(0, 0, len(cells)-1, widest-1))
}

func rowValues(cells [][]sheet.Value, row int, r sheet.Rect) []sheet.Value {
	out := make([]sheet.Value, r.Cols())
	for c := range out {
		out[c] = sheet.At(cells, row, r.StartCol+c)
	}
	return out
}

// analyze infers the header and column types of a local rect. ocol converts
// local columns to absolute column letters for unnamed columns.
func (e *Extractor) analyze(ctx context.Context, cells [][]sheet.Value, r sheet.Rect, ocol int, allowHeader bool) (analysis, error) {
	var a analysis
	first := rowValues(cells, r.StartRow, r)
	if allowHeader {
		var next []sheet.Value
		if r.Rows() > 1 {
			next = rowValues(cells, r.StartRow+1, r)
		}
		a.hasHeader = isHeaderRow(first, next, r.Rows() > 1)
	}

	dataStart := r.StartRow
	if a.hasHeader {
		dataStart++
		a.headers = make([]string, len(first))
	}
	dataEnd := min(r.EndRow, dataStart+e.limits.MaxAnalyzedRows-1)

	a.columns = make([]Column, r.Cols())
	for i := range a.columns {
		if err := cancel.Check(ctx); err != nil {
			return analysis{}, err
		}
		col := r.StartCol + i
		name := sheet.ColumnName(col + ocol)
		if a.hasHeader {
			if h := strings.TrimSpace(first[i].String()); h != "" {
				name = truncateRunes(h, e.limits.MaxHeaderChars)
			}
			a.headers[i] = name
		}

		types := typeSet{}
		var samples []string
		seen := make(map[string]bool)
		for row := dataStart; row <= dataEnd; row++ {
			if err := cancel.Check(ctx); err != nil {
				return analysis{}, err
			}
			v := sheet.At(cells, row, col)
			if v.IsEmpty() {
				continue
			}
			types.add(v)
			if len(samples) < e.limits.MaxSampleValues {
				text := truncateRunes(v.String(), e.limits.MaxSampleValueChars)
				if !seen[text] {
					seen[text] = true
					samples = append(samples, text)
				}
			}
		}
		a.columns[i] = Column{Name: name, Type: types.resolve(), SampleValues: samples}
	}
	return a, nil
}

// namedRanges normalizes declared named ranges for this sheet.
func (e *Extractor) namedRanges(s sheet.Sheet) []NamedRange {
	var out []NamedRange
	for _, nr := range s.NamedRanges {
		ref, err := sheet.ParseRange(nr.Range)
		if err != nil {
			e.logger.Warn("skipping malformed named range",
				zap.String("sheet.name", s.Name), zap.String("named_range", nr.Name), zap.Error(err))
			continue
		}
		name := ref.Sheet
		if name == "" {
			name = s.Name
		}
		out = append(out, NamedRange{Name: nr.Name, Range: sheet.FormatRange(name, ref.Rect)})
	}
	return out
}
