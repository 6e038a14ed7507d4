// Package reranker reorders retrieved sheet chunks by query relevance.
package reranker

import (
	"context"
)

// Document is one retrieval candidate.
type Document struct {
	ID      string  // chunk id, also the tie-breaker
	Content string  // redacted chunk text
	Score   float32 // similarity from the vector search
}

// ScoredDocument is a Document after re-ranking.
type ScoredDocument struct {
	Document
	// RerankerScore is the reranker's own relevance score in [0, 1].
	RerankerScore float32
	// CombinedScore orders the results.
	CombinedScore float32
	// OriginalRank is the 0-based position in the input.
	OriginalRank int
}

// Reranker reorders candidates for a query.
type Reranker interface {
	// Rerank returns at most topK documents sorted by descending
	// CombinedScore, then ascending ID. topK <= 0 returns all of them.
	// The output depends only on the inputs.
	Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error)
}
