// Package compression shrinks free text by extractive summarization.
//
// Content is split into sentences (and lines, so transcripts without
// punctuation still split), each sentence is scored by position, length
// and inverse term frequency, and the best sentences that fit the target
// length are kept in their original order. No external service is called
// and the output is a pure function of the input.
//
// # Usage
//
//	c := compression.NewExtractiveCompressor(compression.Config{TargetRatio: 3})
//	res, err := c.Compress(ctx, transcript, 3)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%d -> %d bytes (%.1fx)\n", res.OriginalSize, res.CompressedSize, res.CompressionRatio)
//
// CompressTo targets an absolute length instead of a ratio, which is what
// token-budgeted callers want.
package compression
