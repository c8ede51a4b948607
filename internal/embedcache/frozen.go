package embedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/corecache/internal/codec"
)

// FrozenMetadata is the per-entry index record persisted alongside the
// frozen tier's blobs, grounded on original_source/lapce-ai's
// FrozenMetadata (frozen_tier.rs).
type FrozenMetadata struct {
	DiskPath         string    `json:"disk_path"`
	FilePath         string    `json:"file_path"`
	OriginalSize     int       `json:"original_size"`
	CompressedSize   int       `json:"compressed_size"`
	CRC32            uint32    `json:"crc32"`
	Dimension        int       `json:"dimension"`
	LastAccess       time.Time `json:"last_access"`
	CompressionMethod string   `json:"compression_method"`
}

type frozenIndex struct {
	Entries map[string]FrozenMetadata `json:"entries"` // keyed by hex path_hash
}

// frozenTier is the L3 cold, disk-backed cache. One blob file per entry
// under dir, indexed by a 64-bit hash of the stable ID.
type frozenTier struct {
	dir      string
	maxBytes int64

	mu    sync.Mutex
	index frozenIndex
	size  int64
}

func pathHash(stableID uint64) string {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(stableID >> (8 * i))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(buf[:]))
}

func openFrozenTier(dir string, maxBytes int64) (*frozenTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("embedcache: create frozen tier dir: %w", err)
	}

	ft := &frozenTier{dir: dir, maxBytes: maxBytes, index: frozenIndex{Entries: make(map[string]FrozenMetadata)}}

	indexPath := filepath.Join(dir, "frozen_index")
	data, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing index is an empty frozen tier, per spec.md §4.7.
			return ft, nil
		}
		return nil, fmt.Errorf("embedcache: read frozen index: %w", err)
	}
	if err := json.Unmarshal(data, &ft.index); err != nil {
		// A corrupted index degrades to empty rather than failing Open;
		// the frozen tier is a cache, not a source of truth.
		ft.index = frozenIndex{Entries: make(map[string]FrozenMetadata)}
		return ft, nil
	}
	for _, meta := range ft.index.Entries {
		ft.size += int64(meta.CompressedSize)
	}
	return ft, nil
}

func (ft *frozenTier) get(ctx context.Context, stableID uint64) (*codec.CompressedEmbedding, string, bool, error) {
	ft.mu.Lock()
	key := pathHash(stableID)
	meta, ok := ft.index.Entries[key]
	ft.mu.Unlock()
	if !ok {
		return nil, "", false, nil
	}

	data, err := os.ReadFile(meta.DiskPath)
	if err != nil {
		return nil, "", false, fmt.Errorf("embedcache: read frozen blob %s: %w", meta.DiskPath, err)
	}

	ce := &codec.CompressedEmbedding{
		ID:             stableID,
		Bytes:          data,
		OriginalSize:   meta.OriginalSize,
		CompressedSize: meta.CompressedSize,
		Dimension:      meta.Dimension,
		Checksum:       meta.CRC32,
	}

	ft.mu.Lock()
	meta.LastAccess = time.Now()
	ft.index.Entries[key] = meta
	ft.mu.Unlock()

	return ce, meta.FilePath, true, nil
}

func (ft *frozenTier) put(stableID uint64, filePath string, ce *codec.CompressedEmbedding) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	key := pathHash(stableID)
	diskPath := filepath.Join(ft.dir, key+".frozen")

	if old, existed := ft.index.Entries[key]; existed {
		ft.size -= int64(old.CompressedSize)
	}

	if err := os.WriteFile(diskPath, ce.Bytes, 0o644); err != nil {
		return fmt.Errorf("embedcache: write frozen blob: %w", err)
	}

	ft.index.Entries[key] = FrozenMetadata{
		DiskPath:          diskPath,
		FilePath:          filePath,
		OriginalSize:      ce.OriginalSize,
		CompressedSize:    ce.CompressedSize,
		CRC32:             ce.Checksum,
		Dimension:         ce.Dimension,
		LastAccess:        time.Now(),
		CompressionMethod: "zstd",
	}
	ft.size += int64(ce.CompressedSize)

	if err := ft.evictLocked(); err != nil {
		return err
	}
	return ft.saveIndexLocked()
}

// evictLocked removes the least-recently-accessed entries until ft.size is
// back under ft.maxBytes. Caller must hold ft.mu.
func (ft *frozenTier) evictLocked() error {
	if ft.maxBytes <= 0 || ft.size <= ft.maxBytes {
		return nil
	}

	type kv = struct {
		key  string
		meta FrozenMetadata
	}
	entries := make([]kv, 0, len(ft.index.Entries))
	for k, m := range ft.index.Entries {
		entries = append(entries, kv{k, m})
	}
	sortByLastAccess(entries)

	for _, e := range entries {
		if ft.size <= ft.maxBytes {
			break
		}
		if err := os.Remove(e.meta.DiskPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("embedcache: evict frozen blob: %w", err)
		}
		delete(ft.index.Entries, e.key)
		ft.size -= int64(e.meta.CompressedSize)
	}
	return nil
}

func sortByLastAccess(entries []struct {
	key  string
	meta FrozenMetadata
}) {
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].meta.LastAccess.After(entries[j].meta.LastAccess) {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

func (ft *frozenTier) remove(stableID uint64) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.removeKeyLocked(pathHash(stableID))
}

func (ft *frozenTier) removeByFile(path string) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	var toRemove []string
	for key, meta := range ft.index.Entries {
		if meta.FilePath == path {
			toRemove = append(toRemove, key)
		}
	}
	for _, key := range toRemove {
		if err := ft.removeKeyLocked(key); err != nil {
			return err
		}
	}
	return nil
}

func (ft *frozenTier) removeKeyLocked(key string) error {
	meta, ok := ft.index.Entries[key]
	if !ok {
		return nil
	}
	if err := os.Remove(meta.DiskPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("embedcache: remove frozen blob: %w", err)
	}
	delete(ft.index.Entries, key)
	ft.size -= int64(meta.CompressedSize)
	return ft.saveIndexLocked()
}

// saveIndex persists the index atomically: write to a temp file, then
// rename over the real path, so a crash mid-write never leaves a partial
// index behind.
func (ft *frozenTier) saveIndex() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.saveIndexLocked()
}

func (ft *frozenTier) saveIndexLocked() error {
	data, err := json.Marshal(ft.index)
	if err != nil {
		return fmt.Errorf("embedcache: marshal frozen index: %w", err)
	}

	indexPath := filepath.Join(ft.dir, "frozen_index")
	tmpPath := indexPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("embedcache: write frozen index temp file: %w", err)
	}
	if err := os.Rename(tmpPath, indexPath); err != nil {
		return fmt.Errorf("embedcache: rename frozen index: %w", err)
	}
	return nil
}
