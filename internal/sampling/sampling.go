// Package sampling selects bounded subsets of row indices.
//
// Every strategy returns sorted, distinct indices in [0, total) and runs in
// time and memory proportional to the sample size, except Stratified, which
// makes two passes over the keys but only keeps per-stratum counters.
package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// ErrInvalidSampleSize is returned for negative, fractional or non-finite sizes.
var ErrInvalidSampleSize = errors.New("invalid sample size")

// Strategy names a sampling strategy.
type Strategy string

const (
	StrategyHead       Strategy = "head"
	StrategyTail       Strategy = "tail"
	StrategySystematic Strategy = "systematic"
	StrategyRandom     Strategy = "random"
	StrategyStratified Strategy = "stratified"
)

// ValidateSize converts a caller-supplied sample size to an int.
func ValidateSize(n float64) (int, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSampleSize, n)
	}
	return int(n), nil
}

func checkSize(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleSize, n)
	}
	return nil
}

func span(start, count int) []int {
	out := make([]int, count)
	for i := range out {
		out[i] = start + i
	}
	return out
}

// Head returns the first n indices.
func Head(total, n int) ([]int, error) {
	if err := checkSize(n); err != nil {
		return nil, err
	}
	return span(0, min(n, max(total, 0))), nil
}

// Tail returns the last n indices.
func Tail(total, n int) ([]int, error) {
	if err := checkSize(n); err != nil {
		return nil, err
	}
	total = max(total, 0)
	k := min(n, total)
	return span(total-k, k), nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Systematic returns n evenly spaced indices. The seed picks the offset
// within the first interval.
func Systematic(total, n int, seed uint64) ([]int, error) {
	if err := checkSize(n); err != nil {
		return nil, err
	}
	total = max(total, 0)
	if n >= total {
		return span(0, total), nil
	}
	if n == 0 {
		return []int{}, nil
	}
	step := float64(total) / float64(n)
	offset := newRand(seed).Float64() * step
	out := make([]int, n)
	for i := range out {
		idx := int(offset + float64(i)*step)
		out[i] = min(idx, total-1)
	}
	return out, nil
}

// Random returns n distinct indices chosen uniformly with the seeded PRNG.
func Random(total, n int, seed uint64) ([]int, error) {
	if err := checkSize(n); err != nil {
		return nil, err
	}
	total = max(total, 0)
	if n >= total {
		return span(0, total), nil
	}
	return floyd(newRand(seed), total, n), nil
}

// floyd picks k distinct values from [0, total) in O(k).
func floyd(rng *rand.Rand, total, k int) []int {
	chosen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for j := total - k; j < total; j++ {
		t := rng.IntN(j + 1)
		if _, ok := chosen[t]; ok {
			t = j
		}
		chosen[t] = struct{}{}
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Stratified samples n indices so that every stratum is represented when
// n is at least the number of strata. The rest of the allocation is
// proportional to stratum size, with remainders going to the largest
// fractional parts and ties to the stratum discovered first. key returns
// the stratum of an index.
func Stratified(total, n int, seed uint64, key func(int) string) ([]int, error) {
	if err := checkSize(n); err != nil {
		return nil, err
	}
	total = max(total, 0)
	if n >= total {
		return span(0, total), nil
	}
	if n == 0 {
		return []int{}, nil
	}

	// First pass: discover strata in order and count members.
	order := make(map[string]int)
	var sizes []int
	for i := 0; i < total; i++ {
		k := key(i)
		s, ok := order[k]
		if !ok {
			s = len(sizes)
			order[k] = s
			sizes = append(sizes, 0)
		}
		sizes[s]++
	}

	alloc := allocate(sizes, n)

	// Pick member ordinals per stratum, then map them back in a second pass.
	rng := newRand(seed)
	picks := make([]map[int]struct{}, len(sizes))
	for s, k := range alloc {
		if k == 0 {
			continue
		}
		set := make(map[int]struct{}, k)
		for _, ord := range floyd(rng, sizes[s], k) {
			set[ord] = struct{}{}
		}
		picks[s] = set
	}

	out := make([]int, 0, n)
	seen := make([]int, len(sizes))
	for i := 0; i < total; i++ {
		s := order[key(i)]
		if _, ok := picks[s][seen[s]]; ok {
			out = append(out, i)
		}
		seen[s]++
	}
	return out, nil
}

// allocate splits n across strata of the given sizes.
func allocate(sizes []int, n int) []int {
	total := 0
	for _, s := range sizes {
		total += s
	}
	alloc := make([]int, len(sizes))
	remaining := n
	if n >= len(sizes) {
		for i := range alloc {
			alloc[i] = 1
		}
		remaining -= len(sizes)
	}
	if remaining == 0 {
		return alloc
	}

	// Proportional share of what is left, capped by each stratum's room.
	type frac struct {
		idx  int
		part float64
	}
	fracs := make([]frac, 0, len(sizes))
	given := 0
	for i, s := range sizes {
		room := s - alloc[i]
		exact := float64(remaining) * float64(s) / float64(total)
		whole := min(int(exact), room)
		alloc[i] += whole
		given += whole
		if whole < room {
			fracs = append(fracs, frac{idx: i, part: exact - float64(whole)})
		}
	}
	slices.SortStableFunc(fracs, func(a, b frac) int {
		switch {
		case a.part > b.part:
			return -1
		case a.part < b.part:
			return 1
		}
		return a.idx - b.idx
	})
	left := remaining - given
	for left > 0 {
		progress := false
		for _, f := range fracs {
			if left == 0 {
				break
			}
			if alloc[f.idx] < sizes[f.idx] {
				alloc[f.idx]++
				left--
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	return alloc
}

// Sample dispatches to the named strategy. key is only used by Stratified
// and may be nil otherwise.
func Sample(strategy Strategy, total, n int, seed uint64, key func(int) string) ([]int, error) {
	switch strategy {
	case StrategyHead, "":
		return Head(total, n)
	case StrategyTail:
		return Tail(total, n)
	case StrategySystematic:
		return Systematic(total, n, seed)
	case StrategyRandom:
		return Random(total, n, seed)
	case StrategyStratified:
		if key == nil {
			return Random(total, n, seed)
		}
		return Stratified(total, n, seed, key)
	default:
		return nil, fmt.Errorf("unknown sampling strategy %q", strategy)
	}
}
