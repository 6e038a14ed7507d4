// Package tokens estimates LLM token counts for text.
package tokens

import (
	"unicode/utf8"
)

// Estimator converts text to an approximate token count. Implementations
// must be safe for concurrent use and return non-negative counts.
type Estimator interface {
	Count(text string) int
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(text string) int

// Count calls f.
func (f EstimatorFunc) Count(text string) int { return f(text) }

// Heuristic estimates one token per CharsPerToken runes, rounded up.
type Heuristic struct {
	CharsPerToken int
}

// Count implements Estimator.
func (h Heuristic) Count(text string) int {
	per := h.CharsPerToken
	if per <= 0 {
		per = defaultCharsPerToken
	}
	n := utf8.RuneCountInString(text)
	return (n + per - 1) / per
}

// defaultCharsPerToken approximates BPE tokenizers on English text.
const defaultCharsPerToken = 4

// Default returns the estimator used when none is injected.
func Default() Estimator {
	return Heuristic{CharsPerToken: defaultCharsPerToken}
}

// Or returns est, or Default() when est is nil.
func Or(est Estimator) Estimator {
	if est == nil {
		return Default()
	}
	return est
}

// Count is a nil-safe, never-negative Estimator call.
func Count(est Estimator, text string) int {
	return max(0, Or(est).Count(text))
}

// Truncate returns the longest prefix of text that, with suffix appended,
// fits in maxTokens, along with its estimated cost. Text that already fits
// is returned unchanged with no suffix. When not even the bare suffix fits
// the result is empty.
//
// The search is a binary search over byte offsets snapped back to rune
// boundaries; every candidate is strictly shorter than text.
func Truncate(est Estimator, text string, maxTokens int, suffix string) (string, int) {
	est = Or(est)
	if maxTokens <= 0 {
		return "", 0
	}
	if n := Count(est, text); n <= maxTokens {
		return text, n
	}
	if Count(est, suffix) > maxTokens {
		return "", 0
	}

	lo, hi := 0, len(text)-1
	for lo < hi {
		mid := snap(text, lo+(hi-lo+1)/2)
		if mid <= lo {
			// No rune boundary between lo and the midpoint; narrow from above.
			hi = snap(text, hi)
			if hi <= lo {
				break
			}
			mid = hi
		}
		if Count(est, text[:mid]+suffix) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	lo = snap(text, lo)
	out := text[:lo] + suffix
	return out, Count(est, out)
}

// snap moves i back to the start of the rune containing it.
func snap(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
