// Package region finds rectangular clusters of non-empty cells.
package region

import (
	"context"
	"slices"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
)

// DefaultMaxScannedCells bounds the visited bitmap when no limit is given.
const DefaultMaxScannedCells = 200_000

// bitset is a flat visited map addressed by row*cols+col.
type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) test(i int) bool { return b[i>>6]&(1<<(uint(i)&63)) != 0 }

func (b bitset) set(i int) { b[i>>6] |= 1 << (uint(i) & 63) }

// Bounds returns the scan window Detect uses for cells and maxScannedCells:
// the number of rows and columns examined. rows*cols never exceeds the limit.
func Bounds(cells [][]sheet.Value, maxScannedCells int) (rows, cols int) {
	if maxScannedCells <= 0 {
		maxScannedCells = DefaultMaxScannedCells
	}
	rows = min(len(cells), maxScannedCells)
	if rows == 0 {
		return 0, 0
	}
	widest := 0
	for _, row := range cells[:rows] {
		widest = max(widest, len(row))
	}
	cols = min(widest, max(1, maxScannedCells/rows))
	return rows, cols
}

// Detect returns the bounding rectangles of the 4-connected clusters of
// non-empty cells in the scan window, sorted by start row then start column.
// Missing trailing cells of ragged rows count as empty. The context is
// polled at every dequeued cell and every outer iteration.
func Detect(ctx context.Context, cells [][]sheet.Value, maxScannedCells int) ([]sheet.Rect, error) {
	rows, cols := Bounds(cells, maxScannedCells)
	if rows == 0 || cols == 0 {
		return nil, cancel.Check(ctx)
	}

	filled := func(r, c int) bool {
		return c < len(cells[r]) && !cells[r][c].IsEmpty()
	}

	visited := newBitset(rows * cols)
	var (
		out   []sheet.Rect
		queue []int
	)
	for idx := 0; idx < rows*cols; idx++ {
		if err := cancel.Check(ctx); err != nil {
			return nil, err
		}
		if visited.test(idx) {
			continue
		}
		r, c := idx/cols, idx%cols
		if !filled(r, c) {
			continue
		}

		visited.set(idx)
		queue = append(queue[:0], idx)
		box := sheet.Rect{StartRow: r, StartCol: c, EndRow: r, EndCol: c}
		for head := 0; head < len(queue); head++ {
			if err := cancel.Check(ctx); err != nil {
				return nil, err
			}
			cur := queue[head]
			cr, cc := cur/cols, cur%cols
			box.StartRow = min(box.StartRow, cr)
			box.EndRow = max(box.EndRow, cr)
			box.StartCol = min(box.StartCol, cc)
			box.EndCol = max(box.EndCol, cc)

			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nr, nc := cr+d[0], cc+d[1]
				if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
					continue
				}
				n := nr*cols + nc
				if visited.test(n) || !filled(nr, nc) {
					continue
				}
				visited.set(n)
				queue = append(queue, n)
			}
		}
		out = append(out, box)
	}

	slices.SortFunc(out, func(a, b sheet.Rect) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return out, nil
}
