// Package vectorcache memoizes embedding vectors. Embeddings are
// deterministic per (model, text), so a hit can be returned without an
// encode call.
package vectorcache

import (
	"encoding/hex"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"lukechampine.com/blake3"
)

// Cache is a TTL-bounded memo keyed by blake3(model, text).
type Cache struct {
	inner *ttlcache.Cache[string, []float32]
}

// New builds a cache holding at most capacity vectors for at most ttl each.
func New(ttl time.Duration, capacity uint64) *Cache {
	inner := ttlcache.New(
		ttlcache.WithTTL[string, []float32](ttl),
		ttlcache.WithCapacity[string, []float32](capacity),
	)
	go inner.Start()
	return &Cache{inner: inner}
}

func key(model, text string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Get(model, text string) ([]float32, bool) {
	item := c.inner.Get(key(model, text))
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (c *Cache) Set(model, text string, vec []float32) {
	c.inner.Set(key(model, text), vec, ttlcache.DefaultTTL)
}

// Len reports the number of cached vectors.
func (c *Cache) Len() int {
	return c.inner.Len()
}

// Stop ends the background expiry loop.
func (c *Cache) Stop() {
	c.inner.Stop()
}
