package assembler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
	"github.com/fyrsmithlabs/sheetctx/internal/sampling"
	"github.com/fyrsmithlabs/sheetctx/internal/schema"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
)

// samples is the payload of the samples section.
type samples struct {
	Table   string          `json:"table"`
	Range   string          `json:"range"`
	Columns []string        `json:"columns"`
	Rows    [][]sheet.Value `json:"rows"`
}

// compactJSON encodes v without indentation or HTML escaping.
func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode section: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// primaryTable returns the table with the most data rows, the first on ties.
func primaryTable(sch *schema.SheetSchema) (schema.Table, bool) {
	best := -1
	for i, t := range sch.Tables {
		if best < 0 || t.RowCount > sch.Tables[best].RowCount {
			best = i
		}
	}
	if best < 0 {
		return schema.Table{}, false
	}
	return sch.Tables[best], true
}

// presentData returns the data rows of t (header excluded) clipped to the
// cells actually present in s, in absolute coordinates. A declared table
// may extend far past the matrix; nothing outside it is ever read.
func presentData(s *sheet.Sheet, t schema.Table) (sheet.Rect, bool) {
	if len(s.Cells) == 0 {
		return sheet.Rect{}, false
	}
	orow, ocol := s.OriginOffset()
	first := t.Rect.StartRow
	if t.HasHeader {
		first++
	}
	if first > t.Rect.EndRow {
		return sheet.Rect{}, false
	}
	declared := sheet.Rect{StartRow: first, StartCol: t.Rect.StartCol, EndRow: t.Rect.EndRow, EndCol: t.Rect.EndCol}
	rows, ok := declared.Intersect(sheet.NewRect(orow, t.Rect.StartCol, orow+len(s.Cells)-1, t.Rect.EndCol))
	if !ok {
		return sheet.Rect{}, false
	}
	widest := 0
	for r := rows.StartRow; r <= rows.EndRow; r++ {
		widest = max(widest, len(s.Cells[r-orow]))
	}
	if widest == 0 {
		return sheet.Rect{}, false
	}
	return rows.Intersect(sheet.NewRect(rows.StartRow, ocol, rows.EndRow, ocol+widest-1))
}

// sampleTable selects data rows of the primary table with opts.
func sampleTable(ctx context.Context, s *sheet.Sheet, sch *schema.SheetSchema, opts SamplingOptions) (*samples, error) {
	n, err := sampling.ValidateSize(opts.Size)
	if err != nil {
		return nil, err
	}
	t, ok := primaryTable(sch)
	if !ok || t.RowCount == 0 || n == 0 {
		return nil, nil
	}

	data, ok := presentData(s, t)
	if !ok {
		return nil, nil
	}
	orow, ocol := s.OriginOffset()
	first := data.StartRow
	total := data.Rows()

	var key func(int) string
	if opts.StratifyBy != "" {
		for i, c := range t.Columns {
			if c.Name == opts.StratifyBy {
				col := t.Rect.StartCol + i - ocol
				key = func(r int) string { return s.At(first+r-orow, col).String() }
				break
			}
		}
	}
	idx, err := sampling.Sample(opts.Strategy, total, n, opts.Seed, key)
	if err != nil {
		return nil, err
	}

	out := &samples{
		Table:   t.Name,
		Range:   t.Range,
		Columns: columnNames(t),
		Rows:    make([][]sheet.Value, len(idx)),
	}
	for k, r := range idx {
		if err := cancel.Check(ctx); err != nil {
			return nil, err
		}
		row := make([]sheet.Value, data.Cols())
		for c := range row {
			row[c] = s.At(first+r-orow, data.StartCol+c-ocol)
		}
		out.Rows[k] = row
	}
	return out, nil
}

// redactor applies an engine to structured values, remembering the first
// error so call sites stay linear.
type redactor struct {
	ctx context.Context
	e   *dlp.Engine
	err error
}

func (r *redactor) text(s string) string {
	if r.err != nil || s == "" {
		return s
	}
	out, err := r.e.RedactContext(r.ctx, s)
	if err != nil {
		r.err = err
		return s
	}
	return out
}

func (r *redactor) texts(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = r.text(s)
	}
	return out
}

func (r *redactor) value(v sheet.Value) sheet.Value {
	if v.IsEmpty() {
		return v
	}
	s := v.String()
	red := r.text(s)
	if red == s {
		return v
	}
	if v.Kind() == sheet.KindFormula {
		return sheet.Formula(red)
	}
	return sheet.Text(red)
}

func (r *redactor) schema(in *schema.SheetSchema) *schema.SheetSchema {
	if in == nil {
		return nil
	}
	out := &schema.SheetSchema{Name: r.text(in.Name)}
	out.Tables = make([]schema.Table, len(in.Tables))
	for i, t := range in.Tables {
		t.Name = r.text(t.Name)
		t.Range = r.text(t.Range)
		cols := make([]schema.Column, len(t.Columns))
		for j, c := range t.Columns {
			cols[j] = schema.Column{Name: r.text(c.Name), Type: c.Type, SampleValues: r.texts(c.SampleValues)}
		}
		t.Columns = cols
		out.Tables[i] = t
	}
	if in.NamedRanges != nil {
		out.NamedRanges = make([]schema.NamedRange, len(in.NamedRanges))
		for i, nr := range in.NamedRanges {
			out.NamedRanges[i] = schema.NamedRange{Name: r.text(nr.Name), Range: r.text(nr.Range)}
		}
	}
	out.DataRegions = make([]schema.DataRegion, len(in.DataRegions))
	for i, d := range in.DataRegions {
		d.Range = r.text(d.Range)
		d.Headers = r.texts(d.Headers)
		out.DataRegions[i] = d
	}
	return out
}

func (r *redactor) retrieved(in []RetrievedChunk) []RetrievedChunk {
	if in == nil {
		return nil
	}
	out := make([]RetrievedChunk, len(in))
	for i, c := range in {
		c.Range = r.text(c.Range)
		c.Preview = r.text(c.Preview)
		out[i] = c
	}
	return out
}

func (r *redactor) samples(in *samples) *samples {
	if in == nil {
		return nil
	}
	out := &samples{
		Table:   r.text(in.Table),
		Range:   r.text(in.Range),
		Columns: r.texts(in.Columns),
		Rows:    make([][]sheet.Value, len(in.Rows)),
	}
	for i, row := range in.Rows {
		red := make([]sheet.Value, len(row))
		for j, v := range row {
			red[j] = r.value(v)
		}
		out.Rows[i] = red
	}
	return out
}
