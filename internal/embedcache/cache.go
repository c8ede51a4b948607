// Package embedcache implements the embedding cache (component H): a
// stable-ID-keyed, three-tier cache of fixed-width vectors (L1 hot memory,
// L2 warm compressed memory, L3 cold frozen disk), with promotion on read
// and demotion on eviction.
//
// Grounded on the teacher's internal/embed.CachedEmbedder (single-tier LRU
// over a sha256 cache key) generalized to three tiers, and on
// original_source/lapce-ai's frozen_tier.rs (FrozenMetadata index,
// atomic-rename save) and optimized_embedder_wrapper.rs (promotion and
// demotion thresholds) for the tiers the teacher never had.
package embedcache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/standardbeagle/corecache/internal/codec"
)

// CacheEntry is one L1-resident, uncompressed vector plus the bookkeeping
// needed to locate and invalidate it.
type CacheEntry struct {
	StableID   uint64
	FilePath   string
	Embedding  []float32
	LastAccess time.Time
}

// Stats tracks hit/miss counters across all three tiers, exposed as part
// of the public monitoring contract (spec.md's hit-rate requirement).
type Stats struct {
	mu                   sync.Mutex
	L1Hits, L1Misses     uint64
	L2Hits, L2Misses     uint64
	L3Hits, L3Misses     uint64
	CacheMisses          uint64 // misses every tier; caller must generate
}

func (s *Stats) recordL1(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.L1Hits++
	} else {
		s.L1Misses++
	}
}

func (s *Stats) recordL2(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.L2Hits++
	} else {
		s.L2Misses++
	}
}

func (s *Stats) recordL3(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.L3Hits++
	} else {
		s.L3Misses++
	}
}

func (s *Stats) recordFullMiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CacheMisses++
}

// Snapshot is a point-in-time copy of Stats, safe to read without holding
// the cache's internal lock.
type Snapshot struct {
	L1Hits, L1Misses uint64
	L2Hits, L2Misses uint64
	L3Hits, L3Misses uint64
	CacheMisses      uint64
}

// HitRate returns the overall hit rate across all tiers, in [0, 1].
func (s Snapshot) HitRate() float64 {
	hits := s.L1Hits + s.L2Hits + s.L3Hits
	total := hits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Config bounds each tier's capacity and the promotion/demotion
// thresholds governing when an entry moves between tiers.
type Config struct {
	L1MaxEntries int
	L1MaxBytes   int64
	L2MaxEntries int
	L2MaxBytes   int64

	// L3Dir is the directory the frozen tier persists blobs and its index
	// under. Empty disables L3 entirely (get/put degrade to L1+L2 only).
	L3Dir string
	// L3MaxBytes caps the frozen tier's total blob size.
	L3MaxBytes int64

	// PromotionThreshold is the minimum number of accesses within
	// DemotionTimeout before a frozen (L3) entry is promoted back up to
	// L2 on top of the promote-on-hit path that get() always performs;
	// reserved for a future access-frequency policy, currently unused
	// beyond validation bounds.
	PromotionThreshold int
	DemotionTimeout    time.Duration
}

// DefaultConfig mirrors the teacher's single-tier default of 1000 entries
// for L1, with L2/L3 sized up proportionally per
// optimized_embedder_wrapper.rs's OptimizerConfig defaults.
func DefaultConfig() Config {
	return Config{
		L1MaxEntries:       1000,
		L1MaxBytes:         64 << 20,
		L2MaxEntries:       4000,
		L2MaxBytes:         256 << 20,
		L3MaxBytes:         2 << 30,
		PromotionThreshold: 2,
		DemotionTimeout:    5 * time.Minute,
	}
}

// Cache is the three-tier embedding cache. All operations are keyed by
// stable ID; FilePath on each entry enables InvalidateFile.
type Cache struct {
	cfg   Config
	codec *codec.Codec
	stats Stats

	mu  sync.Mutex
	l1  *tier
	l2  *tier
	l3  *frozenTier
}

// tier is a bounded, LRU-ordered map shared by L1 and L2; the only
// difference between the two is what they store (raw vs compressed) and
// their capacity, both supplied by the caller.
type tier struct {
	maxEntries int
	maxBytes   int64
	curBytes   int64
	ll         *list.List
	index      map[uint64]*list.Element
}

type tierItem struct {
	stableID uint64
	filePath string
	raw      []float32          // populated in L1
	compressed *codec.CompressedEmbedding // populated in L2
	size     int64
}

func newTier(maxEntries int, maxBytes int64) *tier {
	return &tier{maxEntries: maxEntries, maxBytes: maxBytes, ll: list.New(), index: make(map[uint64]*list.Element)}
}

func (t *tier) get(id uint64) (*tierItem, bool) {
	el, ok := t.index[id]
	if !ok {
		return nil, false
	}
	t.ll.MoveToFront(el)
	return el.Value.(*tierItem), true
}

// put inserts or replaces id's entry and evicts from the back until both
// capacity bounds are satisfied, returning the evicted items (for
// demotion to the next tier down).
func (t *tier) put(item *tierItem) []*tierItem {
	if el, ok := t.index[item.stableID]; ok {
		t.curBytes -= el.Value.(*tierItem).size
		t.ll.Remove(el)
		delete(t.index, item.stableID)
	}

	el := t.ll.PushFront(item)
	t.index[item.stableID] = el
	t.curBytes += item.size

	var evicted []*tierItem
	for (t.maxEntries > 0 && t.ll.Len() > t.maxEntries) || (t.maxBytes > 0 && t.curBytes > t.maxBytes) {
		back := t.ll.Back()
		if back == nil {
			break
		}
		old := back.Value.(*tierItem)
		t.ll.Remove(back)
		delete(t.index, old.stableID)
		t.curBytes -= old.size
		evicted = append(evicted, old)
	}
	return evicted
}

func (t *tier) remove(id uint64) (*tierItem, bool) {
	el, ok := t.index[id]
	if !ok {
		return nil, false
	}
	t.ll.Remove(el)
	delete(t.index, id)
	old := el.Value.(*tierItem)
	t.curBytes -= old.size
	return old, true
}

func (t *tier) removeByFile(path string) []*tierItem {
	var removed []*tierItem
	for id, el := range t.index {
		if el.Value.(*tierItem).filePath == path {
			removed = append(removed, el.Value.(*tierItem))
			t.ll.Remove(el)
			delete(t.index, id)
			t.curBytes -= el.Value.(*tierItem).size
		}
	}
	return removed
}

// New builds a three-tier cache. L3 is disabled (get/put only touch L1/L2)
// when cfg.L3Dir is empty.
func New(cfg Config, c *codec.Codec) (*Cache, error) {
	cache := &Cache{
		cfg:   cfg,
		codec: c,
		l1:    newTier(cfg.L1MaxEntries, cfg.L1MaxBytes),
		l2:    newTier(cfg.L2MaxEntries, cfg.L2MaxBytes),
	}
	if cfg.L3Dir != "" {
		l3, err := openFrozenTier(cfg.L3Dir, cfg.L3MaxBytes)
		if err != nil {
			return nil, err
		}
		cache.l3 = l3
	}
	return cache, nil
}

// Get implements the §4.7 get algorithm: L1 -> L2 (promote) -> L3
// (decompress, verify, promote) -> absent.
func (c *Cache) Get(ctx context.Context, stableID uint64) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.l1.get(stableID); ok {
		c.stats.recordL1(true)
		return item.raw, true, nil
	}
	c.stats.recordL1(false)

	if item, ok := c.l2.get(stableID); ok {
		c.stats.recordL2(true)
		vec, err := c.codec.Decompress(item.compressed)
		if err != nil {
			return nil, false, err
		}
		c.promoteToL1(stableID, item.filePath, vec)
		return vec, true, nil
	}
	c.stats.recordL2(false)

	if c.l3 != nil {
		ce, filePath, ok, err := c.l3.get(ctx, stableID)
		if err != nil {
			return nil, false, err
		}
		if ok {
			c.stats.recordL3(true)
			vec, err := c.codec.Decompress(ce)
			if err != nil {
				return nil, false, err
			}
			c.promoteToL2(stableID, filePath, ce)
			c.promoteToL1(stableID, filePath, vec)
			return vec, true, nil
		}
		c.stats.recordL3(false)
	}

	c.stats.recordFullMiss()
	return nil, false, nil
}

// Put always writes through to L1; demotion to L2/L3 happens lazily as L1
// evicts, matching spec.md's "L2/L3 are populated on demotion" rule.
func (c *Cache) Put(stableID uint64, filePath string, embedding []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := &tierItem{stableID: stableID, filePath: filePath, raw: embedding, size: int64(4 * len(embedding))}
	evicted := c.l1.put(item)
	for _, old := range evicted {
		if err := c.demoteToL2(old); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) promoteToL1(stableID uint64, filePath string, vec []float32) {
	item := &tierItem{stableID: stableID, filePath: filePath, raw: vec, size: int64(4 * len(vec))}
	evicted := c.l1.put(item)
	for _, old := range evicted {
		_ = c.demoteToL2(old)
	}
}

func (c *Cache) promoteToL2(stableID uint64, filePath string, ce *codec.CompressedEmbedding) {
	item := &tierItem{stableID: stableID, filePath: filePath, compressed: ce, size: int64(ce.CompressedSize)}
	evicted := c.l2.put(item)
	for _, old := range evicted {
		_ = c.demoteToL3(old)
	}
}

func (c *Cache) demoteToL2(old *tierItem) error {
	ce, err := c.codec.Compress(old.raw, old.stableID)
	if err != nil {
		return err
	}
	item := &tierItem{stableID: old.stableID, filePath: old.filePath, compressed: ce, size: int64(ce.CompressedSize)}
	evicted := c.l2.put(item)
	for _, e := range evicted {
		if err := c.demoteToL3(e); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) demoteToL3(old *tierItem) error {
	if c.l3 == nil {
		return nil
	}
	return c.l3.put(old.stableID, old.filePath, old.compressed)
}

// InvalidateFile removes every entry whose stored FilePath equals path,
// across all tiers.
func (c *Cache) InvalidateFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.l1.removeByFile(path)
	c.l2.removeByFile(path)
	if c.l3 != nil {
		return c.l3.removeByFile(path)
	}
	return nil
}

// Remove deletes stableID from every tier, used for change-detector
// "deleted" IDs.
func (c *Cache) Remove(stableID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.l1.remove(stableID)
	c.l2.remove(stableID)
	if c.l3 != nil {
		return c.l3.remove(stableID)
	}
	return nil
}

// Freeze explicitly persists every current L1/L2 entry to L3, for callers
// that want a durable snapshot outside the normal demotion path (e.g.
// before process shutdown).
func (c *Cache) Freeze() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.l3 == nil {
		return nil
	}
	for _, el := range c.l1.index {
		item := el.Value.(*tierItem)
		ce, err := c.codec.Compress(item.raw, item.stableID)
		if err != nil {
			return err
		}
		if err := c.l3.put(item.stableID, item.filePath, ce); err != nil {
			return err
		}
	}
	for _, el := range c.l2.index {
		item := el.Value.(*tierItem)
		if err := c.l3.put(item.stableID, item.filePath, item.compressed); err != nil {
			return err
		}
	}
	return c.l3.saveIndex()
}

// Stats returns a point-in-time snapshot of hit/miss counters.
func (c *Cache) Stats() Snapshot {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	return Snapshot{
		L1Hits: c.stats.L1Hits, L1Misses: c.stats.L1Misses,
		L2Hits: c.stats.L2Hits, L2Misses: c.stats.L2Misses,
		L3Hits: c.stats.L3Hits, L3Misses: c.stats.L3Misses,
		CacheMisses: c.stats.CacheMisses,
	}
}

// Fingerprint derives the cache key for an external embedder call:
// sha256(model_id || 0x00 || input_text) rendered as hex, per spec.md §4.7.
// This is the key under which a generation result is cached, independent
// of the stable-ID keying the three tiers use internally.
func Fingerprint(modelID, text string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
