package assembler

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
	"github.com/fyrsmithlabs/sheetctx/internal/reranker"
	"github.com/fyrsmithlabs/sheetctx/internal/schema"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
	"github.com/fyrsmithlabs/sheetctx/internal/vectorstore"
)

// Chunk metadata keys.
const (
	MetaSignature = "signature"
	MetaSheet     = "sheet"
	MetaTable     = "table"
	MetaRange     = "range"
)

// RetrievedChunk is one retrieved row window.
type RetrievedChunk struct {
	Range   string  `json:"range"`
	Score   float32 `json:"score"`
	Preview string  `json:"preview"`

	id      string
	content string
}

// Retriever indexes sheets and finds the row windows most relevant to a
// query. Index returns a key scoping later Retrieve calls to that sheet
// version.
type Retriever interface {
	Index(ctx context.Context, s *sheet.Sheet, sch *schema.SheetSchema) (string, error)
	Retrieve(ctx context.Context, query string, topK int, keys []string) ([]RetrievedChunk, error)
}

// StoreRetriever implements Retriever on a vector store. Chunks are
// redacted before they are embedded, so the store never holds sensitive
// text.
type StoreRetriever struct {
	store    vectorstore.Store
	embedder vectorstore.Embedder
	cache    *IndexCache
	dlp      *dlp.Engine
	reranker reranker.Reranker
	cfg      RetrievalConfig
	logger   *zap.Logger
}

// NewStoreRetriever creates a StoreRetriever. engine may be nil for the
// default DLP engine.
func NewStoreRetriever(store vectorstore.Store, embedder vectorstore.Embedder, engine *dlp.Engine, cfg RetrievalConfig, logger *zap.Logger) (*StoreRetriever, error) {
	if store == nil || embedder == nil {
		return nil, fmt.Errorf("%w: retriever requires a vector store and an embedder", ErrMissingCollaborator)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = dlp.Default()
	}
	d := DefaultConfig().Retrieval
	if cfg.ChunkRows <= 0 {
		cfg.ChunkRows = d.ChunkRows
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = d.PreviewChars
	}
	cache, err := NewIndexCache(cfg.IndexCacheSize, store, logger)
	if err != nil {
		return nil, err
	}
	r := &StoreRetriever{
		store:    store,
		embedder: embedder,
		cache:    cache,
		dlp:      engine,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.Rerank {
		r.reranker = reranker.NewLexicalReranker(reranker.DefaultOverlapWeight)
	}
	return r, nil
}

// Cache returns the retriever's index cache.
func (r *StoreRetriever) Cache() *IndexCache { return r.cache }

// Index chunks every table of s into row windows and upserts them under the
// sheet's signature. Sheets whose signature is already cached are skipped.
func (r *StoreRetriever) Index(ctx context.Context, s *sheet.Sheet, sch *schema.SheetSchema) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "StoreRetriever.Index")
	defer span.End()

	if err := cancel.Check(ctx); err != nil {
		return "", err
	}
	sig, err := Signature(s)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("sheet.signature", sig))
	if _, ok := r.cache.Get(sig); ok {
		return sig, nil
	}

	chunks, err := r.chunk(ctx, s, sch, sig)
	if err != nil {
		return "", err
	}
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vectors, err := r.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return "", fmt.Errorf("embed sheet chunks: %w", cancel.Wrap(err))
		}
		if len(vectors) != len(chunks) {
			return "", fmt.Errorf("embed sheet chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
		}
		for i := range chunks {
			chunks[i].Vector = vectors[i]
		}
		if err := r.store.Upsert(ctx, chunks); err != nil {
			return "", fmt.Errorf("store sheet chunks: %w", cancel.Wrap(err))
		}
	}
	if err := cancel.Check(ctx); err != nil {
		return "", err
	}

	r.cache.Add(sig, IndexEntry{SheetName: s.Name, Chunks: len(chunks), IndexedAt: time.Now()})
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	r.logger.Debug("indexed sheet",
		zap.String("sheet", s.Name),
		zap.String("signature", sig),
		zap.Int("chunks", len(chunks)))
	return sig, nil
}

// chunk renders each table's data rows in windows of ChunkRows rows.
func (r *StoreRetriever) chunk(ctx context.Context, s *sheet.Sheet, sch *schema.SheetSchema, sig string) ([]vectorstore.Chunk, error) {
	orow, ocol := s.OriginOffset()
	var out []vectorstore.Chunk
	for _, t := range sch.Tables {
		data, ok := presentData(s, t)
		if !ok {
			continue
		}
		names := columnNames(t)
		for start := data.StartRow; start <= data.EndRow; start += r.cfg.ChunkRows {
			if err := cancel.Check(ctx); err != nil {
				return nil, err
			}
			end := min(start+r.cfg.ChunkRows-1, data.EndRow)
			rect := sheet.Rect{StartRow: start, StartCol: data.StartCol, EndRow: end, EndCol: data.EndCol}
			rng := sheet.FormatRange(s.Name, rect)

			var b strings.Builder
			b.WriteString(rng)
			b.WriteString("\n")
			b.WriteString(strings.Join(names, " | "))
			for row := start; row <= end; row++ {
				b.WriteString("\n")
				for col := rect.StartCol; col <= rect.EndCol; col++ {
					if col > rect.StartCol {
						b.WriteString(" | ")
					}
					b.WriteString(s.At(row-orow, col-ocol).String())
				}
			}
			text, err := r.dlp.RedactContext(ctx, b.String())
			if err != nil {
				return nil, err
			}
			out = append(out, vectorstore.Chunk{
				ID:      sig + "/" + strconv.Itoa(len(out)),
				Content: text,
				Metadata: map[string]string{
					MetaSignature: sig,
					MetaSheet:     s.Name,
					MetaTable:     t.Name,
					MetaRange:     rng,
				},
			})
		}
	}
	return out, nil
}

// Retrieve embeds query and returns the topK best chunks across the given
// index keys, ordered by descending score then chunk id.
func (r *StoreRetriever) Retrieve(ctx context.Context, query string, topK int, keys []string) ([]RetrievedChunk, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "StoreRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK), attribute.Int("keys", len(keys)))

	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 || strings.TrimSpace(query) == "" || len(keys) == 0 {
		return nil, nil
	}
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", cancel.Wrap(err))
	}

	var all []RetrievedChunk
	for _, key := range keys {
		matches, err := r.store.Query(ctx, vec, topK, map[string]string{MetaSignature: key})
		if err != nil {
			return nil, fmt.Errorf("query sheet chunks: %w", cancel.Wrap(err))
		}
		for _, m := range matches {
			all = append(all, RetrievedChunk{
				Range:   m.Metadata[MetaRange],
				Score:   m.Score,
				Preview: preview(m.Content, r.cfg.PreviewChars),
				id:      m.ID,
				content: m.Content,
			})
		}
	}
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	if r.reranker != nil {
		return r.rerank(ctx, query, all, topK)
	}
	slices.SortFunc(all, func(a, b RetrievedChunk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	if len(all) > topK {
		all = all[:topK]
	}
	return all, nil
}

// rerank reorders candidates with the reranker. Scores become the combined
// scores.
func (r *StoreRetriever) rerank(ctx context.Context, query string, all []RetrievedChunk, topK int) ([]RetrievedChunk, error) {
	byID := make(map[string]RetrievedChunk, len(all))
	docs := make([]reranker.Document, len(all))
	for i, c := range all {
		byID[c.id] = c
		docs[i] = reranker.Document{ID: c.id, Content: c.content, Score: c.Score}
	}
	scored, err := r.reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		return nil, fmt.Errorf("rerank chunks: %w", err)
	}
	out := make([]RetrievedChunk, len(scored))
	for i, d := range scored {
		c := byID[d.ID]
		c.Score = d.CombinedScore
		out[i] = c
	}
	return out, nil
}

// preview returns at most n runes of text.
func preview(text string, n int) string {
	if n <= 0 {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

func columnNames(t schema.Table) []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
