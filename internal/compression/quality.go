package compression

import (
	"math"
	"strings"
	"unicode"
)

// retentionScore blends how close the output came to the target ratio with
// the share of the original's recurring keywords that survived.
func retentionScore(original, compressed string, targetRatio float64) float64 {
	if len(original) == 0 || len(compressed) == 0 {
		return 0
	}
	ratio := float64(len(original)) / float64(len(compressed))
	ratioScore := 1.0
	if ratio < targetRatio {
		ratioScore = ratio / targetRatio
	}
	return 0.4*ratioScore + 0.6*math.Pow(keywordRetention(original, compressed), 0.8)
}

// keywordRetention is the fraction of words occurring at least twice in
// original that also appear in compressed.
func keywordRetention(original, compressed string) float64 {
	counts := make(map[string]int)
	for _, w := range words(original) {
		counts[w]++
	}
	kept := make(map[string]struct{})
	for _, w := range words(compressed) {
		kept[w] = struct{}{}
	}
	total, hit := 0, 0
	for w, n := range counts {
		if n < 2 {
			continue
		}
		total++
		if _, ok := kept[w]; ok {
			hit++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(hit) / float64(total)
}

// words lowercases and strips punctuation, dropping words of two bytes or less.
func words(s string) []string {
	var out []string
	for _, f := range strings.Fields(s) {
		w := normalizeWord(f)
		if len(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}
