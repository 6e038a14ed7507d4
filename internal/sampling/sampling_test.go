package sampling

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSortedDistinct(t *testing.T, got []int, total int) {
	t.Helper()
	assert.True(t, slices.IsSorted(got), "indices not sorted: %v", got)
	for i := 1; i < len(got); i++ {
		assert.NotEqual(t, got[i-1], got[i])
	}
	for _, idx := range got {
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, total)
	}
}

func TestValidateSize(t *testing.T) {
	n, err := ValidateSize(5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	for _, bad := range []float64{-1, 2.5, math.NaN(), math.Inf(1)} {
		_, err := ValidateSize(bad)
		assert.ErrorIs(t, err, ErrInvalidSampleSize)
	}
}

func TestHeadTail(t *testing.T) {
	got, err := Head(10, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)

	got, err = Tail(10, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8, 9}, got)

	got, err = Head(2, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got)

	_, err = Tail(10, -1)
	assert.ErrorIs(t, err, ErrInvalidSampleSize)
}

func TestSystematic(t *testing.T) {
	got, err := Systematic(100, 10, 42)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assertSortedDistinct(t, got, 100)
	for i := 1; i < len(got); i++ {
		assert.InDelta(t, 10, got[i]-got[i-1], 1)
	}

	again, err := Systematic(100, 10, 42)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestRandom(t *testing.T) {
	got, err := Random(1_000_000_000, 50, 7)
	require.NoError(t, err)
	require.Len(t, got, 50)
	assertSortedDistinct(t, got, 1_000_000_000)

	again, err := Random(1_000_000_000, 50, 7)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	other, err := Random(1_000_000_000, 50, 8)
	require.NoError(t, err)
	assert.NotEqual(t, got, other)

	all, err := Random(4, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, all)
}

func TestStratified(t *testing.T) {
	// 90 rows of "a", 9 of "b", 1 of "c".
	key := func(i int) string {
		switch {
		case i < 90:
			return "a"
		case i < 99:
			return "b"
		default:
			return "c"
		}
	}

	t.Run("every stratum represented", func(t *testing.T) {
		got, err := Stratified(100, 10, 3, key)
		require.NoError(t, err)
		require.Len(t, got, 10)
		assertSortedDistinct(t, got, 100)

		counts := map[string]int{}
		for _, idx := range got {
			counts[key(idx)]++
		}
		assert.Equal(t, 1, counts["c"])
		assert.GreaterOrEqual(t, counts["b"], 1)
		assert.Greater(t, counts["a"], counts["b"])
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := Stratified(100, 10, 3, key)
		require.NoError(t, err)
		b, err := Stratified(100, 10, 3, key)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("fewer samples than strata", func(t *testing.T) {
		got, err := Stratified(100, 2, 3, key)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("many strata", func(t *testing.T) {
		got, err := Stratified(10_000, 100, 1, func(i int) string { return string(rune('a' + i%500)) })
		require.NoError(t, err)
		assert.Len(t, got, 100)
		assertSortedDistinct(t, got, 10_000)
	})
}

func TestAllocate(t *testing.T) {
	assert.Equal(t, []int{7, 2, 1}, allocate([]int{90, 9, 1}, 10))
	// Equal fractions go to the first discovered stratum.
	assert.Equal(t, []int{2, 1}, allocate([]int{5, 5}, 3))
	// Small strata are capped and the surplus moves on.
	assert.Equal(t, []int{1, 5}, allocate([]int{1, 9}, 6))
}

func TestSample(t *testing.T) {
	got, err := Sample(StrategyTail, 5, 2, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got)

	_, err = Sample("bogus", 5, 2, 0, nil)
	assert.Error(t, err)
}
