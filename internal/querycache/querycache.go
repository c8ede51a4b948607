// Package querycache implements the query cache (component K): a
// three-tier cache of query results (L1 LRU memory, L2 larger in-memory
// LRU, optional L3 SQLite on disk), keyed by a deterministic hash of the query
// text, result count, and filter expression.
//
// Grounded on the teacher's internal/embed.CachedEmbedder LRU-cache shape,
// generalized to three tiers the way internal/embedcache generalizes the
// embedding cache, and keyed with lukechampine.com/blake3 per spec.md
// §4.10's cache_key derivation (wired the way the example pack's
// nmxmxh-inos_v1 and gloudx-ues modules carry the same dependency).
package querycache

import (
	"container/list"
	"encoding/binary"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"lukechampine.com/blake3"
)

// Result is one cached entry: an ordered list of result IDs plus the
// timestamp it was written.
type Result struct {
	IDs       []string
	Timestamp time.Time
}

// CacheKey derives the deterministic lookup key for a query:
// blake3(text || k_as_LE_u64 || filters) rendered as hex.
func CacheKey(text string, k int, filters string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(text))
	var kBuf [8]byte
	binary.LittleEndian.PutUint64(kBuf[:], uint64(k))
	h.Write(kBuf[:])
	h.Write([]byte(filters))
	return hex.EncodeToString(h.Sum(nil))
}

// Config bounds L1/L2 entry counts and names the L3 directory.
type Config struct {
	L1MaxEntries int
	L2MaxEntries int
	// L3Dir, if non-empty, enables the on-disk tier: one SQLite database
	// (querycache.db) under this directory.
	L3Dir string
}

// DefaultConfig sizes L1/L2 the way the teacher sizes its single-tier
// embedding cache, with L3 disabled by default.
func DefaultConfig() Config {
	return Config{L1MaxEntries: 500, L2MaxEntries: 2000}
}

// Cache is the three-tier query result cache.
type Cache struct {
	cfg Config

	mu  sync.Mutex
	l1  *lruTier
	l2  *lruTier
	l3  *sqliteL3
}

// Close releases the L3 SQLite handle, if L3 is enabled.
func (c *Cache) Close() error {
	if c.l3 == nil {
		return nil
	}
	return c.l3.close()
}

type lruTier struct {
	maxEntries int
	ll         *list.List
	index      map[string]*list.Element
}

type lruItem struct {
	key    string
	result Result
}

func newLRUTier(maxEntries int) *lruTier {
	return &lruTier{maxEntries: maxEntries, ll: list.New(), index: make(map[string]*list.Element)}
}

func (t *lruTier) get(key string) (Result, bool) {
	el, ok := t.index[key]
	if !ok {
		return Result{}, false
	}
	t.ll.MoveToFront(el)
	return el.Value.(*lruItem).result, true
}

// put returns the evicted item, if eviction was necessary.
func (t *lruTier) put(key string, result Result) *lruItem {
	if el, ok := t.index[key]; ok {
		el.Value.(*lruItem).result = result
		t.ll.MoveToFront(el)
		return nil
	}

	el := t.ll.PushFront(&lruItem{key: key, result: result})
	t.index[key] = el

	if t.maxEntries > 0 && t.ll.Len() > t.maxEntries {
		back := t.ll.Back()
		t.ll.Remove(back)
		old := back.Value.(*lruItem)
		delete(t.index, old.key)
		return old
	}
	return nil
}

// New builds a three-tier cache. L3 is enabled when cfg.L3Dir is set,
// backed by a SQLite database in that directory.
func New(cfg Config) (*Cache, error) {
	c := &Cache{
		cfg: cfg,
		l1:  newLRUTier(cfg.L1MaxEntries),
		l2:  newLRUTier(cfg.L2MaxEntries),
	}

	if cfg.L3Dir != "" {
		if err := os.MkdirAll(cfg.L3Dir, 0o755); err != nil {
			return nil, err
		}
		l3, err := openSQLiteL3(cfg.L3Dir)
		if err != nil {
			return nil, err
		}
		c.l3 = l3
	}

	return c, nil
}

// Get walks L1 -> L2 -> L3, promoting on any lower-tier hit.
func (c *Cache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.l1.get(key); ok {
		return r, true
	}
	if r, ok := c.l2.get(key); ok {
		c.promoteToL1(key, r)
		return r, true
	}
	if c.l3 != nil {
		if r, ok := c.l3.get(key); ok {
			c.promoteToL2(key, r)
			c.promoteToL1(key, r)
			return r, true
		}
	}
	return Result{}, false
}

// Set writes through every enabled tier.
func (c *Cache) Set(key string, result Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.promoteToL1(key, result)
	c.promoteToL2(key, result)
	if c.l3 != nil {
		return c.l3.set(key, result)
	}
	return nil
}

func (c *Cache) promoteToL1(key string, r Result) {
	if evicted := c.l1.put(key, r); evicted != nil {
		c.l2.put(evicted.key, evicted.result)
	}
}

func (c *Cache) promoteToL2(key string, r Result) {
	c.l2.put(key, r)
}
