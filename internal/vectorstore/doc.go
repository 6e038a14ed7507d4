// Package vectorstore stores embedded sheet chunks for retrieval.
//
// Store is the collaborator interface the assembler consumes: upsert chunks
// with precomputed (or embedder-computed) vectors, query by vector, and
// list or delete chunks by id prefix so a whole indexed sheet can be
// evicted at once. ChromemStore implements it on chromem-go, either purely
// in memory or persisted to a directory.
//
// # Usage
//
//	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{VectorSize: 256}, embedder, logger)
//	if err != nil {
//	    return err
//	}
//	err = store.Upsert(ctx, []vectorstore.Chunk{{ID: "sig/0", Content: "Region1 rows 1-25 ..."}})
//	matches, err := store.Query(ctx, queryVector, 5, nil)
//	n, err := store.DeleteByPrefix(ctx, "sig/")
//
// Query results are ordered by descending score, ties by ascending id, so
// identical stores answer identical queries identically.
//
// # Observability
//
// Every operation opens an OpenTelemetry span and is counted in the
// Prometheus collectors in metrics.go.
package vectorstore
