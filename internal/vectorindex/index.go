// Package vectorindex implements the vector index (component J): a
// persistent approximate-nearest-neighbor index over (id, embedding,
// metadata) rows, named per spec.md §4.9's table-oriented operation set.
//
// Grounded on the teacher's internal/store.HNSWStore (coder/hnsw wrapper,
// lazy deletion, atomic gob-encoded metadata save), generalized here to
// multiple named tables and an explicit has_index/create_ann_index split
// so a process restart can tell a persisted index apart from a fresh one.
package vectorindex

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/coder/hnsw"
)

// Row is one (id, embedding, metadata) record as stored by InsertBatch.
type Row struct {
	ID        uint64
	Embedding []float32
	Metadata  map[string]string
}

// ScoredResult is one query hit.
type ScoredResult struct {
	ID       uint64
	Metadata map[string]string
	Score    float32
}

// Filter narrows a query to rows whose metadata matches every key/value
// pair exactly.
type Filter map[string]string

func (f Filter) matches(meta map[string]string) bool {
	for k, v := range f {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// DimensionMismatchError reports a row or query vector whose width
// disagrees with the table it was inserted into.
type DimensionMismatchError struct {
	Expected, Got int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vectorindex: dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Table is one named ANN index plus its row metadata.
type Table struct {
	mu   sync.RWMutex
	name string
	dim  int

	graph *hnsw.Graph[uint64]
	meta  map[uint64]map[string]string

	hasANNIndex bool

	// kwIndex is the bleve-backed keyword/structural filter index over
	// row metadata (component L's auxiliary filter per spec.md §3).
	// Rebuilt in memory on open; not persisted, since it is a derived
	// index over meta.
	kwIndex bleve.Index
}

type tablePersisted struct {
	Name        string
	Dim         int
	Meta        map[uint64]map[string]string
	HasANNIndex bool
}

// Index manages every table in one process, keyed by name, and persists
// each under dir.
type Index struct {
	dir string

	mu     sync.RWMutex
	tables map[string]*Table
}

// New opens an Index rooted at dir, creating it if absent.
func New(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vectorindex: create dir: %w", err)
	}
	return &Index{dir: dir, tables: make(map[string]*Table)}, nil
}

// CreateTable creates a new empty table named name with vector width dim.
// Returns an error if the table already exists in this process; use
// OpenTable to load a table persisted by a previous run.
func (ix *Index) CreateTable(name string, dim int) (*Table, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.tables[name]; exists {
		return nil, fmt.Errorf("vectorindex: table %q already exists", name)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 32
	graph.Ml = 0.25
	graph.EfSearch = 64

	kwIndex, err := newKeywordIndex()
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create keyword index: %w", err)
	}

	t := &Table{name: name, dim: dim, graph: graph, meta: make(map[uint64]map[string]string), kwIndex: kwIndex}
	ix.tables[name] = t
	return t, nil
}

// OpenTable loads a previously-persisted table from disk, or returns the
// already-open in-memory table if this process already holds it.
func (ix *Index) OpenTable(name string) (*Table, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if t, exists := ix.tables[name]; exists {
		return t, nil
	}

	metaPath := ix.metaPath(name)
	metaFile, err := os.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open table %q: %w", name, err)
	}
	defer metaFile.Close()

	var persisted tablePersisted
	if err := gob.NewDecoder(metaFile).Decode(&persisted); err != nil {
		return nil, fmt.Errorf("vectorindex: decode table %q metadata: %w", name, err)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 32
	graph.Ml = 0.25
	graph.EfSearch = 64

	indexPath := ix.indexPath(name)
	if f, err := os.Open(indexPath); err == nil {
		defer f.Close()
		if err := graph.Import(bufio.NewReader(f)); err != nil {
			return nil, fmt.Errorf("vectorindex: import table %q graph: %w", name, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("vectorindex: open table %q graph: %w", name, err)
	}

	kwIndex, err := newKeywordIndex()
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create keyword index: %w", err)
	}

	t := &Table{
		name:        name,
		dim:         persisted.Dim,
		graph:       graph,
		meta:        persisted.Meta,
		hasANNIndex: persisted.HasANNIndex,
		kwIndex:     kwIndex,
	}
	if t.meta == nil {
		t.meta = make(map[uint64]map[string]string)
	}
	for id, meta := range t.meta {
		t.indexKeywordLocked(id, meta)
	}
	ix.tables[name] = t
	return t, nil
}

// HasIndex reports whether table has a usable ANN index persisted to
// disk, without fully opening it - a process restart consults this before
// deciding whether create_ann_index needs to run again.
func (ix *Index) HasIndex(name string) bool {
	ix.mu.RLock()
	if t, exists := ix.tables[name]; exists {
		ix.mu.RUnlock()
		t.mu.RLock()
		defer t.mu.RUnlock()
		return t.hasANNIndex
	}
	ix.mu.RUnlock()

	metaFile, err := os.Open(ix.metaPath(name))
	if err != nil {
		return false
	}
	defer metaFile.Close()

	var persisted tablePersisted
	if err := gob.NewDecoder(metaFile).Decode(&persisted); err != nil {
		return false
	}
	return persisted.HasANNIndex
}

// Save persists table's graph and metadata atomically (temp file + rename).
func (ix *Index) Save(name string) error {
	ix.mu.RLock()
	t, exists := ix.tables[name]
	ix.mu.RUnlock()
	if !exists {
		return fmt.Errorf("vectorindex: save: unknown table %q", name)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	indexPath := ix.indexPath(name)
	tmpIndexPath := indexPath + ".tmp"
	f, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("vectorindex: create index temp file: %w", err)
	}
	if err := t.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("vectorindex: export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("vectorindex: close index temp file: %w", err)
	}
	if err := os.Rename(tmpIndexPath, indexPath); err != nil {
		return fmt.Errorf("vectorindex: rename index file: %w", err)
	}

	metaPath := ix.metaPath(name)
	tmpMetaPath := metaPath + ".tmp"
	metaFile, err := os.Create(tmpMetaPath)
	if err != nil {
		return fmt.Errorf("vectorindex: create meta temp file: %w", err)
	}
	persisted := tablePersisted{Name: t.name, Dim: t.dim, Meta: t.meta, HasANNIndex: t.hasANNIndex}
	if err := gob.NewEncoder(metaFile).Encode(persisted); err != nil {
		metaFile.Close()
		os.Remove(tmpMetaPath)
		return fmt.Errorf("vectorindex: encode metadata: %w", err)
	}
	if err := metaFile.Close(); err != nil {
		os.Remove(tmpMetaPath)
		return fmt.Errorf("vectorindex: close meta temp file: %w", err)
	}
	return os.Rename(tmpMetaPath, metaPath)
}

func (ix *Index) indexPath(name string) string { return filepath.Join(ix.dir, name+".hnsw") }
func (ix *Index) metaPath(name string) string  { return filepath.Join(ix.dir, name+".meta") }

// InsertBatch inserts every row or none: rows are validated against the
// table's dimension up front, before any row is added to the graph, so a
// single bad row never leaves the table half-updated.
func (t *Table) InsertBatch(ctx context.Context, rows []Row) error {
	for _, r := range rows {
		if len(r.Embedding) != t.dim {
			return &DimensionMismatchError{Expected: t.dim, Got: len(r.Embedding)}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range rows {
		vec := make([]float32, len(r.Embedding))
		copy(vec, r.Embedding)
		normalizeInPlace(vec)

		t.graph.Add(hnsw.MakeNode(r.ID, vec))
		t.meta[r.ID] = r.Metadata
		t.indexKeywordLocked(r.ID, r.Metadata)
	}
	return nil
}

// DeleteByID removes id if present. Deleting an id that is not present,
// or deleting it twice, is a no-op - the operation is idempotent.
func (t *Table) DeleteByID(id uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Lazy deletion: drop the metadata entry so the id no longer
	// surfaces in query results, without touching the graph structure
	// (coder/hnsw has no safe node-removal path for interior nodes).
	delete(t.meta, id)
	t.deleteKeywordLocked(id)
	return nil
}

// CreateANNIndex marks the table as having a built ANN index. coder/hnsw
// builds its graph incrementally on every Add, so there is no separate
// build step to run here; this records that a usable index now exists,
// which HasIndex/Save persist across restarts.
func (t *Table) CreateANNIndex() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hasANNIndex = true
	return nil
}

// Query returns the k nearest rows to embedding, optionally restricted to
// rows matching filter, ordered by descending score and then by ascending
// ID to make ties deterministic.
func (t *Table) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]ScoredResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(embedding) != t.dim {
		return nil, &DimensionMismatchError{Expected: t.dim, Got: len(embedding)}
	}
	if t.graph.Len() == 0 {
		return nil, nil
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)
	normalizeInPlace(query)

	// Adaptive probe: widen the candidate pool for harder queries (larger
	// k, or a filter that will reject most candidates) rather than
	// always searching exactly k.
	probe := k * 4
	if filter != nil {
		probe *= 4
	}
	if probe < k {
		probe = k
	}
	if probe > t.graph.Len() {
		probe = t.graph.Len()
	}

	nodes := t.graph.Search(query, probe)

	results := make([]ScoredResult, 0, len(nodes))
	for _, node := range nodes {
		meta, ok := t.meta[node.Key]
		if !ok {
			continue // lazily deleted
		}
		if filter != nil && !filter.matches(meta) {
			continue
		}
		distance := t.graph.Distance(query, node.Value)
		results = append(results, ScoredResult{ID: node.Key, Metadata: meta, Score: 1.0 - distance/2.0})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of live (non-deleted) rows.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.meta)
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
