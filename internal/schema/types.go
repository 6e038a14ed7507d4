// Package schema infers table structure from a sheet's cell matrix.
//
// Regions come from region.Detect; each region's first rows are tested for a
// header and every column is typed from a bounded prefix of its data rows.
// Caller-declared tables take precedence over detected regions they contain.
package schema

import "github.com/fyrsmithlabs/sheetctx/internal/sheet"

// ColumnType is the inferred type of a column's data cells.
type ColumnType string

const (
	TypeEmpty   ColumnType = "empty"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
	TypeDate    ColumnType = "date"
	TypeString  ColumnType = "string"
	TypeFormula ColumnType = "formula"
	TypeMixed   ColumnType = "mixed"
)

// DataRegion describes one detected cluster of cells. Rect is absolute
// (origin applied). RowCount and ColumnCount always give the full extent,
// even when column analysis only looked at a prefix of the rows.
type DataRegion struct {
	Range       string       `json:"range"`
	Rect        sheet.Rect   `json:"rect"`
	HasHeader   bool         `json:"hasHeader"`
	Headers     []string     `json:"headers,omitempty"`
	ColumnTypes []ColumnType `json:"columnTypes"`
	RowCount    int          `json:"rowCount"`
	ColumnCount int          `json:"columnCount"`
}

// Column is one column of a table.
type Column struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	SampleValues []string   `json:"sampleValues,omitempty"`
}

// Table is an explicit (caller-declared) or implicit (detected) table.
// RowCount excludes the header row.
type Table struct {
	Name      string     `json:"name"`
	Range     string     `json:"range"`
	Explicit  bool       `json:"explicit,omitempty"`
	HasHeader bool       `json:"hasHeader"`
	Columns   []Column   `json:"columns"`
	RowCount  int        `json:"rowCount"`
	Rect      sheet.Rect `json:"-"`
}

// NamedRange is a normalized caller-declared named range.
type NamedRange struct {
	Name  string `json:"name"`
	Range string `json:"range"`
}

// SheetSchema is the result of one extraction. It is not modified after
// Extract returns.
type SheetSchema struct {
	Name        string       `json:"name"`
	Tables      []Table      `json:"tables"`
	NamedRanges []NamedRange `json:"namedRanges,omitempty"`
	DataRegions []DataRegion `json:"dataRegions"`
}

// Limits bounds the work done per extraction.
type Limits struct {
	// MaxScannedCells bounds the region detection window.
	MaxScannedCells int `koanf:"max_scanned_cells"`
	// MaxAnalyzedRows bounds the data rows read per column for typing and samples.
	MaxAnalyzedRows int `koanf:"max_analyzed_rows"`
	// MaxSampleValues bounds distinct sample values kept per column.
	MaxSampleValues int `koanf:"max_sample_values"`
	// MaxSampleValueChars truncates each sample value.
	MaxSampleValueChars int `koanf:"max_sample_value_chars"`
	// MaxHeaderChars truncates header names.
	MaxHeaderChars int `koanf:"max_header_chars"`
}

// DefaultLimits returns the limits used for zero fields.
func DefaultLimits() Limits {
	return Limits{
		MaxScannedCells:     200_000,
		MaxAnalyzedRows:     1000,
		MaxSampleValues:     3,
		MaxSampleValueChars: 64,
		MaxHeaderChars:      64,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxScannedCells <= 0 {
		l.MaxScannedCells = d.MaxScannedCells
	}
	if l.MaxAnalyzedRows <= 0 {
		l.MaxAnalyzedRows = d.MaxAnalyzedRows
	}
	if l.MaxSampleValues < 0 {
		l.MaxSampleValues = 0
	} else if l.MaxSampleValues == 0 {
		l.MaxSampleValues = d.MaxSampleValues
	}
	if l.MaxSampleValueChars <= 0 {
		l.MaxSampleValueChars = d.MaxSampleValueChars
	}
	if l.MaxHeaderChars <= 0 {
		l.MaxHeaderChars = d.MaxHeaderChars
	}
	return l
}
