package assembler

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/embeddings"
	"github.com/fyrsmithlabs/sheetctx/internal/schema"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
	"github.com/fyrsmithlabs/sheetctx/internal/vectorstore"
)

// countingEmbedder counts document batches sent to the wrapped embedder.
type countingEmbedder struct {
	*embeddings.HashEmbedder
	batches atomic.Int32
}

func (e *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	return e.HashEmbedder.EmbedDocuments(ctx, texts)
}

func newRetriever(t *testing.T, cfg RetrievalConfig) (*StoreRetriever, *vectorstore.ChromemStore, *countingEmbedder) {
	t.Helper()
	emb := &countingEmbedder{HashEmbedder: embeddings.NewHashEmbedder(0)}
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{VectorSize: embeddings.DefaultHashDimension}, nil, zap.NewNop())
	require.NoError(t, err)
	r, err := NewStoreRetriever(store, emb, nil, cfg, zap.NewNop())
	require.NoError(t, err)
	return r, store, emb
}

func revenueSheet() sheet.Sheet {
	return sheet.Sheet{
		Name: "Revenue",
		Cells: sheet.FromRows([][]any{
			{"Region", "Revenue", "Quarter"},
			{"North", 120, "Q1"},
			{"South", 80, "Q1"},
			{"North", 140, "Q2"},
			{"South", 95, "Q2"},
			{"West", 60, "Q2"},
		}),
	}
}

func staffSheet() sheet.Sheet {
	return sheet.Sheet{
		Name: "Staff",
		Cells: sheet.FromRows([][]any{
			{"Employee", "Team", "Years"},
			{"Ann", "Finance", 4},
			{"Bob", "Engineering", 7},
			{"Cid", "Contact cid@example.com", 2},
		}),
	}
}

func extract(t *testing.T, s sheet.Sheet) *schema.SheetSchema {
	t.Helper()
	sch, err := schema.Extract(context.Background(), s, schema.Limits{})
	require.NoError(t, err)
	return sch
}

func TestStoreRetriever_IndexChunks(t *testing.T) {
	ctx := context.Background()
	r, store, emb := newRetriever(t, RetrievalConfig{ChunkRows: 2})
	s := revenueSheet()

	key, err := r.Index(ctx, &s, extract(t, s))
	require.NoError(t, err)
	sig, err := Signature(&s)
	require.NoError(t, err)
	assert.Equal(t, sig, key)

	ids, err := store.List(ctx, key+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{key + "/0", key + "/1", key + "/2"}, ids)
	assert.Equal(t, int32(1), emb.batches.Load())

	entry, ok := r.Cache().Get(key)
	require.True(t, ok)
	assert.Equal(t, "Revenue", entry.SheetName)
	assert.Equal(t, 3, entry.Chunks)

	// Unchanged content is not re-embedded.
	again, err := r.Index(ctx, &s, extract(t, s))
	require.NoError(t, err)
	assert.Equal(t, key, again)
	assert.Equal(t, int32(1), emb.batches.Load())
}

func TestStoreRetriever_HugeDeclaredTable(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRetriever(t, RetrievalConfig{})
	s := revenueSheet()
	s.Tables = []sheet.NamedRange{{Name: "Revenue", Range: "Revenue!A1:XFD1048576"}}

	sch := extract(t, s)
	require.Len(t, sch.Tables, 1)
	assert.Equal(t, 1048575, sch.Tables[0].RowCount)

	key, err := r.Index(ctx, &s, sch)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count())

	chunks, err := r.Retrieve(ctx, "West", 5, []string{key})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Revenue!A2:C6", chunks[0].Range)
}

func TestStoreRetriever_RedactsBeforeEmbedding(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRetriever(t, RetrievalConfig{})
	s := staffSheet()

	key, err := r.Index(ctx, &s, extract(t, s))
	require.NoError(t, err)

	chunks, err := r.Retrieve(ctx, "engineering team", 5, []string{key})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Staff!A2:C4", chunks[0].Range)
	assert.NotContains(t, chunks[0].Preview, "cid@example.com")
	assert.Contains(t, chunks[0].Preview, "[REDACTED_EMAIL]")
	assert.Equal(t, 1, store.Count())
}

func TestStoreRetriever_Retrieve(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRetriever(t, RetrievalConfig{ChunkRows: 1, PreviewChars: 12})
	rev, staff := revenueSheet(), staffSheet()

	revKey, err := r.Index(ctx, &rev, extract(t, rev))
	require.NoError(t, err)
	staffKey, err := r.Index(ctx, &staff, extract(t, staff))
	require.NoError(t, err)

	chunks, err := r.Retrieve(ctx, "Engineering", 2, []string{revKey, staffKey})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Staff!A3:C3", chunks[0].Range)
	assert.GreaterOrEqual(t, chunks[0].Score, chunks[1].Score)
	assert.LessOrEqual(t, len([]rune(chunks[0].Preview)), 12)

	// Scoped to one sheet version.
	only, err := r.Retrieve(ctx, "Engineering", 10, []string{revKey})
	require.NoError(t, err)
	require.Len(t, only, 5)
	for _, c := range only {
		assert.True(t, strings.HasPrefix(c.Range, "Revenue!"), c.Range)
	}

	none, err := r.Retrieve(ctx, " ", 3, []string{revKey})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreRetriever_Rerank(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRetriever(t, RetrievalConfig{ChunkRows: 1, Rerank: true})
	rev := revenueSheet()

	key, err := r.Index(ctx, &rev, extract(t, rev))
	require.NoError(t, err)

	chunks, err := r.Retrieve(ctx, "West", 3, []string{key})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Revenue!A6:C6", chunks[0].Range)
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i-1].Score, chunks[i].Score)
	}

	again, err := r.Retrieve(ctx, "West", 3, []string{key})
	require.NoError(t, err)
	assert.Equal(t, chunks, again)
}

func TestIndexCache_EvictionDeletesChunks(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRetriever(t, RetrievalConfig{IndexCacheSize: 1})
	rev, staff := revenueSheet(), staffSheet()

	revKey, err := r.Index(ctx, &rev, extract(t, rev))
	require.NoError(t, err)
	require.Positive(t, store.Count())

	staffKey, err := r.Index(ctx, &staff, extract(t, staff))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Cache().Len())

	ids, err := store.List(ctx, revKey+"/")
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = store.List(ctx, staffKey+"/")
	require.NoError(t, err)
	assert.NotEmpty(t, ids)

	assert.True(t, r.Cache().Remove(staffKey))
	assert.Zero(t, store.Count())
}

func TestIndexCache_Errors(t *testing.T) {
	_, err := NewIndexCache(4, nil, nil)
	assert.ErrorIs(t, err, ErrMissingCollaborator)
	_, err = NewStoreRetriever(nil, embeddings.NewHashEmbedder(0), nil, RetrievalConfig{}, nil)
	assert.ErrorIs(t, err, ErrMissingCollaborator)
}

func TestSignature(t *testing.T) {
	a, b := revenueSheet(), revenueSheet()
	sa, err := Signature(&a)
	require.NoError(t, err)
	sb, err := Signature(&b)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
	assert.Len(t, sa, 32)

	b.Cells[1][1] = sheet.Number(121)
	sb, err = Signature(&b)
	require.NoError(t, err)
	assert.NotEqual(t, sa, sb)
}

func TestBuildWorkbookContext(t *testing.T) {
	r, _, _ := newRetriever(t, RetrievalConfig{ChunkRows: 1})
	a := newAssembler(t, Config{Retrieval: RetrievalConfig{TopK: 3}}, WithRetriever(r))
	ctx := context.Background()
	req := WorkbookRequest{
		Sheets:      []sheet.Sheet{revenueSheet(), staffSheet()},
		ActiveSheet: "Staff",
		Query:       "Engineering",
	}

	out, err := a.BuildWorkbookContext(ctx, req)
	require.NoError(t, err)

	require.Len(t, out.Schemas, 2)
	assert.Equal(t, "Revenue", out.Schemas[0].Name)
	assert.Equal(t, "Staff", out.Schema.Name)
	require.Len(t, out.Retrieved, 3)
	assert.Equal(t, "Staff!A3:C3", out.Retrieved[0].Range)
	require.Len(t, out.SampledRows, 3)
	assert.Equal(t, "Ann", out.SampledRows[0][0].String())

	assert.True(t, strings.HasPrefix(out.PromptContext, "## schema\n[{\"name\":\"Revenue\""))
	assert.Contains(t, out.PromptContext, "## retrieved\n[{\"range\":\"Staff!A3:C3\"")
	assert.True(t, out.Redacted)
	assert.NotContains(t, out.PromptContext, "cid@example.com")

	again, err := a.BuildWorkbookContext(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, out.PromptContext, again.PromptContext)

	req.ActiveSheet = "Missing"
	_, err = a.BuildWorkbookContext(ctx, req)
	assert.ErrorIs(t, err, ErrSheetNotFound)

	_, err = a.BuildWorkbookContext(ctx, WorkbookRequest{})
	assert.ErrorIs(t, err, ErrSheetNotFound)

	cctx, cancelFn := context.WithCancel(ctx)
	cancelFn()
	_, err = a.BuildWorkbookContext(cctx, WorkbookRequest{Sheets: []sheet.Sheet{revenueSheet()}})
	assert.True(t, cancel.IsAborted(err))
}
