// Package vectorstore re-exports the vector index (internal/vectorindex,
// component J) as a storage-agnostic interface, the way the teacher's
// pkg/indexer wraps internal/store behind an Indexer interface so callers
// depend on a contract rather than the coder/hnsw-backed implementation.
//
// internal/mcp and internal/daemon depend on [Store], not on
// internal/vectorindex directly, so a future on-disk format or ANN
// library swap stays behind this boundary.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/standardbeagle/corecache/internal/vectorindex"
)

// Row is one (id, embedding, metadata) record to insert.
type Row = vectorindex.Row

// ScoredResult is one query hit, ordered by descending score.
type ScoredResult = vectorindex.ScoredResult

// Filter narrows a query to rows whose metadata matches every key/value
// pair exactly.
type Filter = vectorindex.Filter

// DimensionMismatchError reports a row or query vector whose width
// disagrees with the table it was inserted into.
type DimensionMismatchError = vectorindex.DimensionMismatchError

// Store is the contract a vector-search backend must satisfy.
//
// Implementations must be safe for concurrent use. All methods accept a
// context for cancellation; InsertBatch and Query may be long-running on
// large tables.
type Store interface {
	// InsertBatch inserts every row or none: a dimension mismatch in any
	// row must leave the table unchanged.
	InsertBatch(ctx context.Context, rows []Row) error

	// DeleteByID removes id if present. A no-op for an id that is not
	// present, or that has already been deleted.
	DeleteByID(id uint64) error

	// CreateANNIndex marks the table ready for nearest-neighbor search,
	// building whatever index structure the backend needs.
	CreateANNIndex() error

	// Query returns the k nearest rows to embedding, optionally
	// restricted to rows matching filter.
	Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]ScoredResult, error)

	// Count returns the number of live rows.
	Count() int

	// KeywordCandidates runs query against the auxiliary keyword/
	// structural filter index (component L's bleve-backed index over
	// row metadata) and returns matching row IDs.
	KeywordCandidates(query string, limit int) (map[uint64]bool, error)
}

// Manager opens and persists named [Store] tables, one per indexed
// project or symbol kind.
type Manager interface {
	// CreateTable creates a new empty table named name with vector width
	// dim. Returns an error if the table already exists.
	CreateTable(name string, dim int) (Store, error)

	// OpenTable loads a previously-persisted table, or returns the
	// already-open table if this process already holds it.
	OpenTable(name string) (Store, error)

	// HasIndex reports whether table has a usable ANN index without
	// fully opening it.
	HasIndex(name string) bool

	// Save persists table's current state to disk.
	Save(name string) error
}

// index adapts *vectorindex.Index to Manager; *vectorindex.Table already
// satisfies Store without adaptation.
type index struct {
	ix *vectorindex.Index
}

// Open opens a [Manager] backed by internal/vectorindex rooted at dir,
// creating it if absent.
func Open(dir string) (Manager, error) {
	ix, err := vectorindex.New(dir)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open: %w", err)
	}
	return &index{ix: ix}, nil
}

func (m *index) CreateTable(name string, dim int) (Store, error) {
	t, err := m.ix.CreateTable(name, dim)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (m *index) OpenTable(name string) (Store, error) {
	t, err := m.ix.OpenTable(name)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (m *index) HasIndex(name string) bool { return m.ix.HasIndex(name) }

func (m *index) Save(name string) error { return m.ix.Save(name) }
