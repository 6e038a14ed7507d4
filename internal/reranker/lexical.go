package reranker

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
)

// ErrNilContext is returned when a nil context is passed to Rerank.
var ErrNilContext = errors.New("context cannot be nil")

// DefaultOverlapWeight splits the combined score evenly between vector
// similarity and term overlap.
const DefaultOverlapWeight = 0.5

// LexicalReranker boosts chunks that contain the query's terms. Hash
// embeddings only approximate meaning, so column names and cell values that
// literally match the query are a strong signal.
type LexicalReranker struct {
	overlapWeight float32
}

// NewLexicalReranker creates a LexicalReranker. overlapWeight outside [0, 1]
// falls back to DefaultOverlapWeight.
func NewLexicalReranker(overlapWeight float32) *LexicalReranker {
	if overlapWeight < 0 || overlapWeight > 1 {
		overlapWeight = DefaultOverlapWeight
	}
	return &LexicalReranker{overlapWeight: overlapWeight}
}

// Rerank scores each document as
//
//	(1-w)*Score + w*overlap
//
// where overlap is the share of distinct query terms found in the document.
// A query without terms keeps the vector ranking.
func (r *LexicalReranker) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 || topK > len(docs) {
		topK = len(docs)
	}

	queryTerms := uniqueTerms(query)
	w := r.overlapWeight
	if len(queryTerms) == 0 {
		w = 0
	}

	out := make([]ScoredDocument, len(docs))
	for i, doc := range docs {
		overlap := termOverlap(queryTerms, doc.Content)
		out[i] = ScoredDocument{
			Document:      doc,
			RerankerScore: overlap,
			CombinedScore: (1-w)*doc.Score + w*overlap,
			OriginalRank:  i,
		}
	}

	slices.SortStableFunc(out, func(a, b ScoredDocument) int {
		if c := cmp.Compare(b.CombinedScore, a.CombinedScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out[:topK], nil
}

// terms splits text into lowercase letter/digit runs, dropping stopwords and
// terms shorter than three runes.
func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

func uniqueTerms(text string) []string {
	t := terms(text)
	slices.Sort(t)
	return slices.Compact(t)
}

// termOverlap is the share of queryTerms present in content.
func termOverlap(queryTerms []string, content string) float32 {
	if len(queryTerms) == 0 {
		return 0
	}
	present := make(map[string]struct{})
	for _, t := range terms(content) {
		present[t] = struct{}{}
	}
	matched := 0
	for _, q := range queryTerms {
		if _, ok := present[q]; ok {
			matched++
		}
	}
	return float32(matched) / float32(len(queryTerms))
}

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"from": true, "was": true, "are": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "you": true, "she": true, "they": true, "what": true,
	"which": true, "who": true, "when": true, "where": true, "why": true,
	"how": true, "show": true, "list": true, "all": true, "per": true,
}
