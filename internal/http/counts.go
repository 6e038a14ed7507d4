package http

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/sheetctx/internal/vectorstore"
)

// CountIndexed counts indexed sheet versions and chunks in the store.
//
// Chunk ids have the form "<signature>/<n>", so the number of distinct
// signatures is the number of indexed sheet versions.
//
// Returns (-1, -1) if store is nil or listing fails.
func CountIndexed(ctx context.Context, store vectorstore.Store) (sheets int, chunks int) {
	if store == nil {
		return -1, -1
	}

	ids, err := store.List(ctx, "")
	if err != nil {
		return -1, -1
	}

	seen := make(map[string]struct{})
	for _, id := range ids {
		sig, _, ok := strings.Cut(id, "/")
		if !ok {
			continue
		}
		seen[sig] = struct{}{}
		chunks++
	}
	return len(seen), chunks
}
