package vectorstore

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("sheetctx.vectorstore.chromem")

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps everything
	// in memory.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// Collection is the collection name.
	// Default: "sheetctx_chunks"
	Collection string `koanf:"collection"`

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 256
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "sheetctx_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 256
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go has no id listing, so the store keeps its own id set. It is
// rebuilt from the collection when a persistent store is reopened.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	config     ChromemConfig
	logger     *zap.Logger

	mu  sync.RWMutex
	ids map[string]struct{}
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore creates a new ChromemStore. The embedder may be nil when
// every upserted chunk carries its own vector.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	db := chromem.NewDB()
	if config.Path != "" {
		path, err := expandChromemPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = path
	}

	s := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
		ids:      make(map[string]struct{}),
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}
	s.collection = collection

	if err := s.loadIDs(); err != nil {
		return nil, err
	}
	ChunksStored.Add(float64(len(s.ids)))

	logger.Info("ChromemStore initialized",
		zap.String("path", config.Path),
		zap.Bool("persistent", config.Path != ""),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
		zap.Int("chunks", len(s.ids)),
	)
	return s, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc adapts the Embedder for chunks upserted without vectors.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if s.embedder == nil {
			return nil, fmt.Errorf("%w: no embedder configured", ErrEmbeddingFailed)
		}
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// loadIDs recovers the id set of a reopened collection by querying every
// document with an arbitrary unit vector.
func (s *ChromemStore) loadIDs() error {
	n := s.collection.Count()
	if n == 0 {
		return nil
	}
	unit := make([]float32, s.config.VectorSize)
	unit[0] = 1
	res, err := s.collection.QueryEmbedding(context.Background(), unit, n, nil, nil)
	if err != nil {
		return fmt.Errorf("listing stored chunks: %w", err)
	}
	for _, r := range res {
		s.ids[r.ID] = struct{}{}
	}
	return nil
}

// Upsert implements Store.
func (s *ChromemStore) Upsert(ctx context.Context, chunks []Chunk) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer endSpan(span, &err)
	defer func() { recordOperation("upsert", err) }()

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))
	if len(chunks) == 0 {
		return ErrEmptyDocuments
	}
	if err := cancel.Check(ctx); err != nil {
		return err
	}

	vectors, err := s.vectorsFor(ctx, chunks)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("%w: chunk %d has no id", ErrInvalidConfig, i)
		}
		if len(vectors[i]) != s.config.VectorSize {
			return fmt.Errorf("%w: chunk %q has %d dimensions, want %d", ErrDimensionMismatch, c.ID, len(vectors[i]), s.config.VectorSize)
		}
		docs[i] = chromem.Document{ID: c.ID, Content: c.Content, Metadata: c.Metadata, Embedding: vectors[i]}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding %d chunks: %w", len(docs), cancel.Wrap(err))
	}

	s.mu.Lock()
	added := 0
	for _, d := range docs {
		if _, ok := s.ids[d.ID]; !ok {
			s.ids[d.ID] = struct{}{}
			added++
		}
	}
	s.mu.Unlock()
	ChunksStored.Add(float64(added))

	s.logger.Debug("chunks upserted", zap.Int("count", len(docs)), zap.Int("new", added))
	return nil
}

// vectorsFor returns one vector per chunk, embedding the ones that lack one
// in a single batch.
func (s *ChromemStore) vectorsFor(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	var missing []int
	var texts []string
	for i, c := range chunks {
		if len(c.Vector) > 0 {
			vectors[i] = c.Vector
			continue
		}
		missing = append(missing, i)
		texts = append(texts, c.Content)
	}
	if len(missing) == 0 {
		return vectors, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: %d chunks without vectors and no embedder configured", ErrEmbeddingFailed, len(missing))
	}
	embedded, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, cancel.Wrap(err))
	}
	if len(embedded) != len(missing) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(embedded), len(missing))
	}
	for k, i := range missing {
		vectors[i] = embedded[k]
	}
	return vectors, nil
}

// Query implements Store. The whole collection is ranked so that ties at
// the topK boundary resolve by id rather than by scheduling order.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) (matches []Match, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer endSpan(span, &err)
	defer func() { recordOperation("query", err) }()

	span.SetAttributes(attribute.Int("top_k", topK), attribute.Int("filter_keys", len(filter)))
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	if len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}
	if isZero(vector) {
		return nil, fmt.Errorf("%w: zero query vector", ErrInvalidConfig)
	}

	n := s.collection.Count()
	if n == 0 {
		return nil, nil
	}
	res, err := s.collection.QueryEmbedding(ctx, vector, n, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", cancel.Wrap(err))
	}

	matches = make([]Match, 0, len(res))
	for _, r := range res {
		if math.IsNaN(float64(r.Similarity)) {
			continue
		}
		matches = append(matches, Match{ID: r.ID, Score: r.Similarity, Content: r.Content, Metadata: r.Metadata})
	}
	slices.SortFunc(matches, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	span.SetAttributes(attribute.Int("result_count", len(matches)))
	return matches, nil
}

// List implements Store.
func (s *ChromemStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.ids {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete implements Store.
func (s *ChromemStore) Delete(ctx context.Context, ids ...string) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer endSpan(span, &err)

	span.SetAttributes(attribute.Int("id_count", len(ids)))
	if len(ids) == 0 {
		return nil
	}
	defer func() { recordOperation("delete", err) }()
	if err := cancel.Check(ctx); err != nil {
		return err
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting %d chunks: %w", len(ids), err)
	}

	s.mu.Lock()
	removed := 0
	for _, id := range ids {
		if _, ok := s.ids[id]; ok {
			delete(s.ids, id)
			removed++
		}
	}
	s.mu.Unlock()
	ChunksStored.Sub(float64(removed))
	return nil
}

// DeleteByPrefix implements Store.
func (s *ChromemStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	ids, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if err := s.Delete(ctx, ids...); err != nil {
		return 0, err
	}
	s.logger.Debug("chunks deleted by prefix", zap.String("prefix", prefix), zap.Int("count", len(ids)))
	return len(ids), nil
}

// Count returns the number of stored chunks.
func (s *ChromemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
