package compression

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
)

// ExtractiveCompressor implements extractive summarization using sentence scoring
type ExtractiveCompressor struct {
	config Config
}

// NewExtractiveCompressor creates a new extractive compressor
func NewExtractiveCompressor(config Config) *ExtractiveCompressor {
	return &ExtractiveCompressor{
		config: config.withDefaults(),
	}
}

// Compress implements the Compressor interface. A zero targetRatio uses the
// configured default.
func (c *ExtractiveCompressor) Compress(ctx context.Context, content string, targetRatio float64) (*Result, error) {
	if targetRatio == 0 {
		targetRatio = c.config.TargetRatio
	}
	if targetRatio <= 1 || math.IsNaN(targetRatio) || math.IsInf(targetRatio, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, targetRatio)
	}
	return c.CompressTo(ctx, content, int(float64(len(content))/targetRatio))
}

// CompressTo keeps the highest scoring sentences whose joined length stays
// within targetLength bytes. When no sentence fits, the single best sentence
// is returned so the output is never empty for non-empty input; callers that
// need a hard cap truncate afterwards.
func (c *ExtractiveCompressor) CompressTo(ctx context.Context, content string, targetLength int) (*Result, error) {
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}

	sentences := c.splitIntoSentences(content)
	if len(sentences) == 0 || len(content) <= targetLength {
		return &Result{
			Content:          content,
			OriginalSize:     len(content),
			CompressedSize:   len(content),
			CompressionRatio: 1.0,
			SentencesKept:    len(sentences),
			SentencesTotal:   len(sentences),
			QualityScore:     1.0,
		}, nil
	}

	scores := c.scoreSentences(sentences)
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	selected := c.selectSentences(sentences, scores, targetLength)
	compressed := strings.Join(selected, " ")

	res := &Result{
		Content:        compressed,
		OriginalSize:   len(content),
		CompressedSize: len(compressed),
		SentencesKept:  len(selected),
		SentencesTotal: len(sentences),
	}
	if res.CompressedSize > 0 {
		res.CompressionRatio = float64(res.OriginalSize) / float64(res.CompressedSize)
	}
	target := 1.0
	if targetLength > 0 {
		target = float64(len(content)) / float64(targetLength)
	}
	res.QualityScore = retentionScore(content, compressed, target)
	return res, nil
}

// splitIntoSentences splits text on sentence terminators and line breaks.
func (c *ExtractiveCompressor) splitIntoSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if len(strings.TrimSpace(current.String())) > c.config.MinSentenceLength {
				flush()
			}
		}
	}
	flush()
	return sentences
}

// scoreSentences assigns importance scores to sentences
func (c *ExtractiveCompressor) scoreSentences(sentences []string) []float64 {
	scores := make([]float64, len(sentences))
	wordFreq := c.calculateWordFrequency(sentences)

	for i, sentence := range sentences {
		score := 0.0

		// Earlier sentences carry the setup of a conversation.
		score += 0.3 / (float64(i) + 1.0)

		fields := strings.Fields(sentence)
		lengthScore := math.Min(float64(len(fields))/20.0, 1.0)
		if len(fields) > 20 {
			lengthScore = math.Max(1.0-(float64(len(fields))-20.0)/50.0, 0.1)
		}
		score += lengthScore * 0.4

		freqScore := 0.0
		for _, f := range fields {
			if freq := wordFreq[normalizeWord(f)]; freq > 1 {
				freqScore += 1.0 / float64(freq)
			}
		}
		if len(fields) > 0 {
			freqScore /= float64(len(fields))
		}
		score += freqScore * 0.3

		scores[i] = score
	}

	return scores
}

// calculateWordFrequency calculates word frequencies across all sentences
func (c *ExtractiveCompressor) calculateWordFrequency(sentences []string) map[string]int {
	freq := make(map[string]int)
	for _, sentence := range sentences {
		for _, w := range words(sentence) {
			freq[w]++
		}
	}
	return freq
}

// selectSentences picks sentences by descending score (ties to the earlier
// sentence) until targetLength is reached, then restores document order.
func (c *ExtractiveCompressor) selectSentences(sentences []string, scores []float64, targetLength int) []string {
	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return a - b
	})

	var picked []int
	length := 0
	for _, idx := range order {
		n := len(sentences[idx])
		if len(picked) > 0 {
			n++ // joining space
		}
		if length+n <= targetLength {
			picked = append(picked, idx)
			length += n
		}
	}
	if len(picked) == 0 && len(order) > 0 {
		picked = append(picked, order[0])
	}

	slices.Sort(picked)
	out := make([]string, len(picked))
	for i, idx := range picked {
		out[i] = sentences[idx]
	}
	return out
}
