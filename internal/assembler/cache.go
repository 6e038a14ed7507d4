package assembler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
	"github.com/fyrsmithlabs/sheetctx/internal/vectorstore"
)

// evictTimeout bounds the chunk deletion run from an eviction callback,
// which has no caller context.
const evictTimeout = 30 * time.Second

// Signature returns the content signature of a sheet: a hex BLAKE3 digest
// of its canonical JSON form. Equal sheets always share a signature.
func Signature(s *sheet.Sheet) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("sheet signature: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}

// IndexEntry describes one indexed sheet version.
type IndexEntry struct {
	SheetName string
	Chunks    int
	IndexedAt time.Time
}

// IndexCache is a bounded LRU of indexed sheet versions keyed by signature.
// Evicting or removing an entry synchronously deletes every chunk stored
// under the "<signature>/" id prefix. It is safe for concurrent use;
// concurrent adds of the same key are last-write-wins.
type IndexCache struct {
	cache  *lru.Cache[string, IndexEntry]
	store  vectorstore.Store
	logger *zap.Logger
}

// NewIndexCache creates a cache holding at most size entries.
func NewIndexCache(size int, store vectorstore.Store, logger *zap.Logger) (*IndexCache, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: index cache requires a vector store", ErrMissingCollaborator)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = DefaultConfig().Retrieval.IndexCacheSize
	}
	c := &IndexCache{store: store, logger: logger}
	cache, err := lru.NewWithEvict(size, c.evict)
	if err != nil {
		return nil, fmt.Errorf("create index cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

func (c *IndexCache) evict(signature string, entry IndexEntry) {
	ctx, cancelFn := context.WithTimeout(context.Background(), evictTimeout)
	defer cancelFn()

	n, err := c.store.DeleteByPrefix(ctx, signature+"/")
	if err != nil {
		c.logger.Warn("failed to delete evicted sheet chunks",
			zap.String("signature", signature),
			zap.String("sheet", entry.SheetName),
			zap.Error(err))
		return
	}
	c.logger.Debug("evicted sheet index",
		zap.String("signature", signature),
		zap.String("sheet", entry.SheetName),
		zap.Int("chunks", n))
}

// Get returns the entry for signature and marks it recently used.
func (c *IndexCache) Get(signature string) (IndexEntry, bool) {
	return c.cache.Get(signature)
}

// Add records an indexed sheet version. It reports whether an older entry
// was evicted to make room.
func (c *IndexCache) Add(signature string, entry IndexEntry) bool {
	return c.cache.Add(signature, entry)
}

// Remove drops an entry and its chunks.
func (c *IndexCache) Remove(signature string) bool {
	return c.cache.Remove(signature)
}

// Len returns the number of cached entries.
func (c *IndexCache) Len() int {
	return c.cache.Len()
}

// Purge drops every entry and its chunks.
func (c *IndexCache) Purge() {
	c.cache.Purge()
}
