package taxonomy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores parsed FactsDocument values on disk, keyed by CIK and a
// content hash of the raw facts JSON. A cache hit lets the Filing Fetcher
// skip re-parsing a multi-megabyte facts document across incremental runs
// when the filings facts endpoint returns unchanged bytes (spec §4.7:
// the Extractor's input is re-fetched every run, but its parse step is not
// required to be).
type Cache struct {
	dir string
	log zerolog.Logger
}

// NewCache creates a Cache rooted at dir, creating it if absent.
func NewCache(dir string, log zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("taxonomy: create cache dir %s: %w", dir, err)
	}
	return &Cache{dir: dir, log: log.With().Str("component", "taxonomy_cache").Logger()}, nil
}

// HashBody returns the cache key component derived from a facts document's
// raw bytes. Callers pass this alongside the CIK so a cache entry is
// invalidated the moment the fetched body changes.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached FactsDocument for (cik, bodyHash), or ok=false on a
// miss. A corrupt or unreadable cache entry is treated as a miss; the
// Extractor's caller always has the raw body to fall back on.
func (c *Cache) Get(cik, bodyHash string) (*FactsDocument, bool) {
	data, err := os.ReadFile(c.path(cik, bodyHash))
	if err != nil {
		return nil, false
	}
	var doc FactsDocument
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		c.log.Warn().Err(err).Str("cik", cik).Msg("discarding corrupt cache entry")
		return nil, false
	}
	return &doc, true
}

// Put writes doc to the cache under (cik, bodyHash), replacing any stale
// entry for that CIK first (only the most recent facts body is worth
// keeping per security).
func (c *Cache) Put(cik, bodyHash string, doc *FactsDocument) error {
	data, err := msgpack.Marshal(doc)
	if err != nil {
		return fmt.Errorf("taxonomy: encode cache entry for %s: %w", cik, err)
	}
	c.evictStale(cik, bodyHash)
	tmp := c.path(cik, bodyHash) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("taxonomy: write cache entry for %s: %w", cik, err)
	}
	return os.Rename(tmp, c.path(cik, bodyHash))
}

// evictStale removes any cache file for cik whose hash no longer matches
// bodyHash, so the cache directory never accumulates one entry per
// historical fetch of the same security.
func (c *Cache) evictStale(cik, bodyHash string) {
	matches, err := filepath.Glob(filepath.Join(c.dir, cik+"-*.msgpack"))
	if err != nil {
		return
	}
	current := c.path(cik, bodyHash)
	for _, m := range matches {
		if m != current {
			os.Remove(m)
		}
	}
}

func (c *Cache) path(cik, bodyHash string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s-%s.msgpack", cik, bodyHash))
}
