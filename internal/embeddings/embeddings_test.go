package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedder(0)
	assert.Equal(t, DefaultHashDimension, h.Dimension())

	docs, err := h.EmbedDocuments(ctx, []string{
		"Quarterly revenue by region",
		"revenue by region, quarterly",
		"Employee headcount and salaries",
		"",
	})
	require.NoError(t, err)
	require.Len(t, docs, 4)
	for _, v := range docs {
		assert.Len(t, v, DefaultHashDimension)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	}

	// Word order and case do not matter; unrelated text scores lower.
	assert.InDelta(t, 1.0, dot(docs[0], docs[1]), 1e-5)
	assert.Greater(t, dot(docs[0], docs[1]), dot(docs[0], docs[2]))

	q, err := h.EmbedQuery(ctx, "Quarterly revenue by region")
	require.NoError(t, err)
	assert.Equal(t, docs[0], q)
}

func TestHashEmbedder_Cancelled(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()

	_, err := NewHashEmbedder(8).EmbedDocuments(ctx, []string{"a"})
	assert.True(t, cancel.IsAborted(err))
	_, err = NewHashEmbedder(8).EmbedQuery(ctx, "a")
	assert.True(t, cancel.IsAborted(err))
}

func teiServer(t *testing.T, handler func(req teiRequest) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(req)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestService_EmbedDocuments(t *testing.T) {
	srv := teiServer(t, func(req teiRequest) (int, any) {
		inputs, ok := req.Inputs.([]any)
		if !ok {
			return http.StatusOK, [][]float32{{0.5, 0.5}}
		}
		out := make([][]float32, len(inputs))
		for i := range inputs {
			out[i] = []float32{float32(i), 1}
		}
		return http.StatusOK, out
	})

	svc, err := NewService(Config{BaseURL: srv.URL + "/", Model: "bge-small", APIKey: "secret"}, zap.NewNop())
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vectors)

	v, err := svc.Embedder().EmbedQuery(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, v)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_Errors(t *testing.T) {
	srv := teiServer(t, func(teiRequest) (int, any) {
		return http.StatusServiceUnavailable, map[string]string{"error": "loading"}
	})
	svc, err := NewService(Config{BaseURL: srv.URL, APIKey: "secret"}, nil)
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "a")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "status 503")

	short := teiServer(t, func(teiRequest) (int, any) { return http.StatusOK, [][]float32{{1}} })
	svc, err = NewService(Config{BaseURL: short.URL, APIKey: "secret"}, nil)
	require.NoError(t, err)
	_, err = svc.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	for _, bad := range []string{"", "localhost:8080"} {
		_, err := NewService(Config{BaseURL: bad}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig, bad)
	}
}

func TestService_Cancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	svc, err := NewService(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	ctx, cancelFn := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelFn()
	_, err = svc.EmbedQuery(ctx, "a")
	assert.True(t, cancel.IsAborted(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Dimension: 64}, nil)
	require.NoError(t, err)
	assert.Equal(t, 64, p.Dimension())
	assert.IsType(t, &HashEmbedder{}, p)
	assert.NoError(t, p.Close())

	p, err = NewProvider(ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-base-en-v1.5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension())

	_, err = NewProvider(ProviderConfig{Provider: "fastembed"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, 1024, detectDimensionFromModel("bge-LARGE"))
	assert.Equal(t, 384, detectDimensionFromModel("all-MiniLM-L6-v2"))
}

func TestMetrics_RecordGeneration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newMetrics(mp.Meter(embeddingsInstrumentationName), zap.NewNop())
	ctx := context.Background()

	h := NewHashEmbedder(8).WithMetrics(m)
	_, err := h.EmbedDocuments(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	m.RecordGeneration(ctx, "hash", "embed_query", time.Millisecond, 1, errors.New("boom"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch data := met.Data.(type) {
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					counts[met.Name] += dp.Count
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					counts[met.Name] += dp.Count
				}
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					counts[met.Name] += uint64(dp.Value)
				}
			}
		}
	}
	assert.Equal(t, uint64(2), counts["sheetctx.embedding.generation_duration_seconds"])
	assert.Equal(t, uint64(2), counts["sheetctx.embedding.batch_size"])
	assert.Equal(t, uint64(1), counts["sheetctx.embedding.errors_total"])
}
