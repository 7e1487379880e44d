package narrative

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"autodash-backend/internal/dataset"
	"autodash-backend/internal/models"
)

// Cache memoizes generated narratives. A narrative is derived data: it is
// keyed by a fingerprint of the chart spec plus the table version, so a
// change to either yields a fresh entry and stale text simply expires.
type Cache struct {
	generator *Generator
	entries   *gocache.Cache
}

// NewCache wraps a generator with a memoizing layer.
func NewCache(g *Generator, ttl, cleanupInterval time.Duration) *Cache {
	return &Cache{
		generator: g,
		entries:   gocache.New(ttl, cleanupInterval),
	}
}

// Narrate returns the cached sentence for this spec and table version, or
// generates and stores it.
func (c *Cache) Narrate(spec models.ChartSpec, t *dataset.Table, version int) string {
	key := Fingerprint(spec, version)
	if cached, found := c.entries.Get(key); found {
		return cached.(string)
	}
	text := c.generator.Narrate(spec, t)
	c.entries.Set(key, text, gocache.DefaultExpiration)
	return text
}

// Flush drops every cached narrative.
func (c *Cache) Flush() {
	c.entries.Flush()
}

// Fingerprint derives a stable cache key from the chart spec and the data
// version.
func Fingerprint(spec models.ChartSpec, version int) string {
	payload, _ := json.Marshal(spec)
	hash := sha256.Sum256(append(payload, []byte(fmt.Sprintf("|v%d", version))...))
	return hex.EncodeToString(hash[:])
}
