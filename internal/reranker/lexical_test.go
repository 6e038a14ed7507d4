package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(docs []ScoredDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestLexicalReranker_Rerank(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		docs    []Document
		topK    int
		wantIDs []string
	}{
		{
			name:    "empty documents",
			query:   "revenue",
			docs:    []Document{},
			topK:    10,
			wantIDs: []string{},
		},
		{
			name:  "term overlap beats small similarity gap",
			query: "revenue by region",
			docs: []Document{
				{ID: "c1", Content: "Product | Units | Price", Score: 0.9},
				{ID: "c2", Content: "Region | Revenue\nNorth | 120", Score: 0.8},
				{ID: "c3", Content: "Region | Manager", Score: 0.85},
			},
			topK:    10,
			wantIDs: []string{"c2", "c3", "c1"},
		},
		{
			name:  "topK limits results",
			query: "email",
			docs: []Document{
				{ID: "a", Content: "email", Score: 0.1},
				{ID: "b", Content: "email", Score: 0.2},
				{ID: "c", Content: "phone", Score: 0.3},
			},
			topK:    2,
			wantIDs: []string{"b", "a"},
		},
		{
			name:  "ties break by id",
			query: "total",
			docs: []Document{
				{ID: "z", Content: "total", Score: 0.5},
				{ID: "m", Content: "total", Score: 0.5},
			},
			topK:    0,
			wantIDs: []string{"m", "z"},
		},
		{
			name:  "stopword query keeps vector order",
			query: "what are the",
			docs: []Document{
				{ID: "low", Content: "what are the", Score: 0.2},
				{ID: "high", Content: "unrelated", Score: 0.7},
			},
			topK:    5,
			wantIDs: []string{"high", "low"},
		},
	}

	r := NewLexicalReranker(DefaultOverlapWeight)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Rerank(context.Background(), tt.query, tt.docs, tt.topK)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids(got))
		})
	}
}

func TestLexicalReranker_Scores(t *testing.T) {
	r := NewLexicalReranker(0.5)
	got, err := r.Rerank(context.Background(), "revenue region", []Document{
		{ID: "c1", Content: "Revenue by month", Score: 0.4},
	}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.InDelta(t, 0.5, got[0].RerankerScore, 1e-6)
	assert.InDelta(t, 0.45, got[0].CombinedScore, 1e-6)
	assert.Equal(t, 0, got[0].OriginalRank)
	assert.Equal(t, float32(0.4), got[0].Score)
}

func TestLexicalReranker_Errors(t *testing.T) {
	r := NewLexicalReranker(0.5)

	//nolint:staticcheck // nil context is the case under test
	_, err := r.Rerank(nil, "q", nil, 1)
	assert.ErrorIs(t, err, ErrNilContext)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Rerank(ctx, "q", []Document{{ID: "a"}}, 1)
	assert.Error(t, err)
}

func TestNewLexicalReranker_WeightBounds(t *testing.T) {
	assert.Equal(t, float32(DefaultOverlapWeight), NewLexicalReranker(-1).overlapWeight)
	assert.Equal(t, float32(DefaultOverlapWeight), NewLexicalReranker(2).overlapWeight)
	assert.Equal(t, float32(1), NewLexicalReranker(1).overlapWeight)
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"umsatz", "größe", "q3_total"}, terms("Umsatz, Größe! Q3_total of"))
	assert.Equal(t, []string{"region", "revenue"}, uniqueTerms("revenue Region revenue"))
}
