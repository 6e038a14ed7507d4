package compression

import (
	"context"
	"errors"
)

// ErrInvalidRatio is returned when a target ratio is not greater than 1.
var ErrInvalidRatio = errors.New("compression: target ratio must be > 1.0")

// Compressor reduces content to roughly 1/targetRatio of its size.
type Compressor interface {
	Compress(ctx context.Context, content string, targetRatio float64) (*Result, error)
}

// Result is the outcome of one compression.
type Result struct {
	// Compressed content
	Content string

	OriginalSize     int
	CompressedSize   int
	CompressionRatio float64

	// SentencesKept of SentencesTotal were selected.
	SentencesKept  int
	SentencesTotal int

	// Quality score (0.0 to 1.0, higher is better)
	QualityScore float64
}

// Config holds configuration for compression operations
type Config struct {
	// Target compression ratio (original/compressed) used when a caller
	// passes a zero ratio.
	TargetRatio float64

	// MinSentenceLength is the shortest run of text, in bytes, that a
	// sentence terminator may close. Defaults to 10.
	MinSentenceLength int
}

func (c Config) withDefaults() Config {
	if c.TargetRatio <= 1 {
		c.TargetRatio = 2
	}
	if c.MinSentenceLength <= 0 {
		c.MinSentenceLength = 10
	}
	return c
}
