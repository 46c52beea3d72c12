package collection

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"monolite/bsonvalue"
	"monolite/page"
)

// docKey identifies one decoded document by its physical location,
// packed into one integer (page id in the high bits, slot in the low
// 16), matching the key the cache is invalidated under on update/delete.
func docKey(id page.ID, slot uint16) uint64 {
	return uint64(id)<<16 | uint64(slot)
}

// docCache is a bounded, purely-accelerating cache of decoded documents
// above the Pager's page cache. A miss always falls back to decoding
// the record from the page; it is never consulted for correctness.
type docCache struct {
	cache *ristretto.Cache[uint64, bsonvalue.Value]
}

func newDocCache(maxCost int64) (*docCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[uint64, bsonvalue.Value]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("collection: create document cache: %w", err)
	}
	return &docCache{cache: c}, nil
}

func (c *docCache) get(id page.ID, slot uint16) (bsonvalue.Value, bool) {
	if c == nil {
		return bsonvalue.Value{}, false
	}
	return c.cache.Get(docKey(id, slot))
}

func (c *docCache) set(id page.ID, slot uint16, doc bsonvalue.Value, cost int64) {
	if c == nil {
		return
	}
	c.cache.Set(docKey(id, slot), doc, cost)
}

func (c *docCache) invalidate(id page.ID, slot uint16) {
	if c == nil {
		return
	}
	c.cache.Del(docKey(id, slot))
}

func (c *docCache) close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
