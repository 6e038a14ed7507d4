package embeddings

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
)

// DefaultHashDimension is the HashEmbedder width when none is configured.
const DefaultHashDimension = 256

// HashEmbedder embeds text by hashing words and character trigrams into a
// fixed number of signed buckets, then L2-normalizing. It is deterministic
// and never returns a zero vector.
type HashEmbedder struct {
	dim     int
	metrics *Metrics
}

// NewHashEmbedder returns a HashEmbedder of the given width.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

// WithMetrics records generation metrics on m.
func (h *HashEmbedder) WithMetrics(m *Metrics) *HashEmbedder {
	h.metrics = m
	return h
}

// Dimension implements Provider.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Close implements Provider.
func (h *HashEmbedder) Close() error { return nil }

// EmbedDocuments implements vectorstore.Embedder.
func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) (out [][]float32, err error) {
	start := time.Now()
	defer func() { h.metrics.RecordGeneration(ctx, "hash", "embed_documents", time.Since(start), len(texts), err) }()

	out = make([][]float32, len(texts))
	for i, t := range texts {
		if err := cancel.Check(ctx); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

// EmbedQuery implements vectorstore.Embedder.
func (h *HashEmbedder) EmbedQuery(ctx context.Context, text string) (v []float32, err error) {
	start := time.Now()
	defer func() { h.metrics.RecordGeneration(ctx, "hash", "embed_query", time.Since(start), 1, err) }()

	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, h.dim)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		h.add(v, w, 1)
		if r := []rune(w); len(r) > 3 {
			for i := 0; i+3 <= len(r); i++ {
				h.add(v, "#"+string(r[i:i+3]), 0.5)
			}
		}
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		v[0] = 1
		return v
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	sum := xxhash.Sum64String(feature)
	if sum>>63 == 1 {
		weight = -weight
	}
	v[sum%uint64(h.dim)] += weight
}
