package sheet

// Rect is a 0-based inclusive cell rectangle. Rects built with NewRect are
// always normalized so that Start <= End on both axes.
type Rect struct {
	StartRow int `json:"startRow"`
	StartCol int `json:"startCol"`
	EndRow   int `json:"endRow"`
	EndCol   int `json:"endCol"`
}

// NewRect returns the normalized rectangle spanning both corners.
func NewRect(r1, c1, r2, c2 int) Rect {
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	if c1 > c2 {
		c1, c2 = c2, c1
	}
	return Rect{StartRow: r1, StartCol: c1, EndRow: r2, EndCol: c2}
}

// Rows returns the number of rows covered.
func (r Rect) Rows() int { return r.EndRow - r.StartRow + 1 }

// Cols returns the number of columns covered.
func (r Rect) Cols() int { return r.EndCol - r.StartCol + 1 }

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.StartRow >= r.StartRow && o.EndRow <= r.EndRow &&
		o.StartCol >= r.StartCol && o.EndCol <= r.EndCol
}

// Overlaps reports whether r and o share at least one cell.
func (r Rect) Overlaps(o Rect) bool {
	return r.StartRow <= o.EndRow && o.StartRow <= r.EndRow &&
		r.StartCol <= o.EndCol && o.StartCol <= r.EndCol
}

// Offset shifts the rectangle by dr rows and dc columns.
func (r Rect) Offset(dr, dc int) Rect {
	return Rect{StartRow: r.StartRow + dr, StartCol: r.StartCol + dc, EndRow: r.EndRow + dr, EndCol: r.EndCol + dc}
}

// Intersect returns the overlap of r and o and whether it is non-empty.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	out := Rect{
		StartRow: max(r.StartRow, o.StartRow),
		StartCol: max(r.StartCol, o.StartCol),
		EndRow:   min(r.EndRow, o.EndRow),
		EndCol:   min(r.EndCol, o.EndCol),
	}
	if out.StartRow > out.EndRow || out.StartCol > out.EndCol {
		return Rect{}, false
	}
	return out, true
}

// Less orders rects by start row, start column, then end row and end column.
func (r Rect) Less(o Rect) bool {
	if r.StartRow != o.StartRow {
		return r.StartRow < o.StartRow
	}
	if r.StartCol != o.StartCol {
		return r.StartCol < o.StartCol
	}
	if r.EndRow != o.EndRow {
		return r.EndRow < o.EndRow
	}
	return r.EndCol < o.EndCol
}
