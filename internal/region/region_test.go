package region

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
)

func grid(rows ...string) [][]sheet.Value {
	out := make([][]sheet.Value, len(rows))
	for r, row := range rows {
		out[r] = make([]sheet.Value, len(row))
		for c, ch := range row {
			if ch != '.' {
				out[r][c] = sheet.Text(string(ch))
			}
		}
	}
	return out
}

func TestDetect(t *testing.T) {
	ctx := context.Background()

	t.Run("empty matrix", func(t *testing.T) {
		rects, err := Detect(ctx, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, rects)
	})

	t.Run("single block", func(t *testing.T) {
		rects, err := Detect(ctx, grid("xxx", "xxx", "xxx"), 0)
		require.NoError(t, err)
		assert.Equal(t, []sheet.Rect{sheet.NewRect(0, 0, 2, 2)}, rects)
	})

	t.Run("separate blocks sorted", func(t *testing.T) {
		rects, err := Detect(ctx, grid(
			"...xx",
			"xx.xx",
			"xx...",
			".....",
			"..x..",
		), 0)
		require.NoError(t, err)
		assert.Equal(t, []sheet.Rect{
			sheet.NewRect(0, 3, 1, 4),
			sheet.NewRect(1, 0, 2, 1),
			sheet.NewRect(4, 2, 4, 2),
		}, rects)
	})

	t.Run("diagonal cells are not connected", func(t *testing.T) {
		rects, err := Detect(ctx, grid("x.", ".x"), 0)
		require.NoError(t, err)
		assert.Len(t, rects, 2)
	})

	t.Run("snake shape is one region", func(t *testing.T) {
		rects, err := Detect(ctx, grid(
			"xxxx",
			"...x",
			"xxxx",
			"x...",
		), 0)
		require.NoError(t, err)
		assert.Equal(t, []sheet.Rect{sheet.NewRect(0, 0, 3, 3)}, rects)
	})

	t.Run("ragged rows", func(t *testing.T) {
		rects, err := Detect(ctx, grid("xxxx", "x", "", "..xx"), 0)
		require.NoError(t, err)
		assert.Equal(t, []sheet.Rect{
			sheet.NewRect(0, 0, 1, 3),
			sheet.NewRect(3, 2, 3, 3),
		}, rects)
	})

	t.Run("scan window is bounded", func(t *testing.T) {
		cells := make([][]sheet.Value, 1000)
		for i := range cells {
			cells[i] = make([]sheet.Value, 1000)
		}
		cells[0][0] = sheet.Number(1)
		cells[999][999] = sheet.Number(2)

		rows, cols := Bounds(cells, 5000)
		assert.Equal(t, 1000, rows)
		assert.Equal(t, 5, cols)
		assert.LessOrEqual(t, rows*cols, 5000)

		rects, err := Detect(ctx, cells, 5000)
		require.NoError(t, err)
		assert.Equal(t, []sheet.Rect{sheet.NewRect(0, 0, 0, 0)}, rects)
	})
}

func TestDetectCoversEveryCell(t *testing.T) {
	cells := grid(
		"x.x.x.x",
		"xx..xxx",
		"..x....",
		"x.xxx.x",
		"xx..x.x",
	)
	rects, err := Detect(context.Background(), cells, 0)
	require.NoError(t, err)

	for r, row := range cells {
		for c, v := range row {
			if v.IsEmpty() {
				continue
			}
			covered := false
			for _, rect := range rects {
				if rect.Contains(sheet.NewRect(r, c, r, c)) {
					covered = true
					break
				}
			}
			assert.True(t, covered, "cell %d,%d not covered", r, c)
		}
	}
}

func TestDetectCancelled(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()

	_, err := Detect(ctx, grid("xx", "xx"), 0)
	assert.ErrorIs(t, err, cancel.ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
}
