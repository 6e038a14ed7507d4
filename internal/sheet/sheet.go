package sheet

// Origin locates a cropped cell matrix inside a larger virtual sheet.
type Origin struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// NamedRange is a caller-declared name bound to A1 range text.
type NamedRange struct {
	Name  string `json:"name"`
	Range string `json:"range"`
}

// Sheet is the input for schema extraction and context assembly. Cells is
// row-major and may be ragged; missing trailing cells are empty.
type Sheet struct {
	Name        string       `json:"name"`
	Cells       [][]Value    `json:"cells"`
	Origin      *Origin      `json:"origin,omitempty"`
	NamedRanges []NamedRange `json:"namedRanges,omitempty"`
	Tables      []NamedRange `json:"tables,omitempty"`
}

// At returns the cell at a local 0-based coordinate, or Empty when the
// coordinate falls outside the (possibly ragged) matrix.
func (s *Sheet) At(row, col int) Value {
	return At(s.Cells, row, col)
}

// OriginOffset returns the origin row and column, zero when unset.
func (s *Sheet) OriginOffset() (int, int) {
	if s.Origin == nil {
		return 0, 0
	}
	return s.Origin.Row, s.Origin.Col
}

// At returns cells[row][col], treating anything out of range as empty.
func At(cells [][]Value, row, col int) Value {
	if row < 0 || row >= len(cells) || col < 0 || col >= len(cells[row]) {
		return Value{}
	}
	return cells[row][col]
}

// FromRows builds a cell matrix from host values via FromAny.
func FromRows(rows [][]any) [][]Value {
	out := make([][]Value, len(rows))
	for i, row := range rows {
		out[i] = make([]Value, len(row))
		for j, x := range row {
			out[i][j] = FromAny(x)
		}
	}
	return out
}
