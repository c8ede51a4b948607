// Package coordinator implements the cached-embedding coordinator
// (component M): the glue between change detection, the embedding cache,
// and the external embedder, producing up-to-date embeddings for a file
// without re-embedding text whose stable ID survived the edit.
//
// Grounded on the teacher's internal/index.Coordinator.HandleEvents/
// handleEvent (internal/index/coordinator.go), which already sequences
// parse -> chunk -> embed -> store per path; this package replaces its
// "re-embed every chunk in the file" step with the cache-first, change-set
// driven algorithm of spec.md §4.11, and its ad hoc hit/miss logging with
// typed, reader-visible Stats counters.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/corecache/internal/changedetect"
	"github.com/standardbeagle/corecache/internal/embedcache"
	"github.com/standardbeagle/corecache/internal/parse"
	"github.com/standardbeagle/corecache/pkg/embedder"
)

// Stats are the hit/miss/reuse/generation counters spec.md §4.11 requires
// to be visible to the test surface. Every field is updated atomically;
// Snapshot returns a stable, non-atomic copy.
type Stats struct {
	hits      atomic.Uint64 // embeddings served from cache, any tier
	misses    atomic.Uint64 // cache misses that required embedder.CreateEmbeddings
	reused    atomic.Uint64 // unchanged stable IDs that reused a cached embedding
	generated atomic.Uint64 // stable IDs whose embedding was freshly generated
}

// Snapshot is a point-in-time, race-free copy of Stats.
type Snapshot struct {
	Hits      uint64
	Misses    uint64
	Reused    uint64
	Generated uint64
}

func (s *Stats) snapshot() Snapshot {
	return Snapshot{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Reused:    s.reused.Load(),
		Generated: s.generated.Load(),
	}
}

// Config wires the three subsystems a Coordinator sits between.
type Config struct {
	Detector *changedetect.Detector
	Cache    *embedcache.Cache
	Embedder embedder.Service
	// ModelHint, if set, is passed to every CreateEmbeddings call.
	ModelHint string
}

// Coordinator runs embed_file_incremental/embed_node against one
// Detector/Cache/Embedder triple. Safe for concurrent use across distinct
// paths; the Detector itself serializes per-path access (see spec.md §5).
type Coordinator struct {
	cfg   Config
	stats Stats

	// mu serializes whole EmbedFileIncremental/EmbedNode calls, so two
	// concurrent calls for different paths never submit overlapping
	// batches out of order relative to their own cache writes. It is held
	// across the embedder call as well, so calls never overlap.
	mu sync.Mutex
}

// New builds a Coordinator from cfg.
func New(cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg}
}

// Stats returns the current hit/miss/reuse/generation counters.
func (co *Coordinator) Stats() Snapshot { return co.stats.snapshot() }

// nodeText finds the node carrying stableID in tree and returns its
// source slice, or false if no such node exists.
func nodeText(tree *parse.Tree, stableID uint64) ([]byte, bool) {
	var text []byte
	var found bool
	tree.Walk(func(id parse.NodeID) bool {
		n := tree.Node(id)
		if n.HasStableID && n.StableID == stableID {
			text = n.Text(tree.Source)
			found = true
			return false
		}
		return true
	})
	return text, found
}

// EmbedFileIncremental runs change detection on (path, tree), fetches
// cached embeddings for every unchanged stable ID, batches the text of
// every modified/added node through the embedder, stores the results,
// evicts deleted ids, and returns the aggregated embeddings alongside the
// change set that produced them.
func (co *Coordinator) EmbedFileIncremental(ctx context.Context, tree *parse.Tree, path string) (map[uint64][]float32, changedetect.ChangeSet, error) {
	co.mu.Lock()
	defer co.mu.Unlock()

	cs := co.cfg.Detector.DetectChanges(path, tree)
	out := make(map[uint64][]float32)

	// Stable IDs whose text must reach the embedder: every unchanged id
	// not actually present in the cache (first run, or an earlier write
	// failure), plus every modified and added id.
	var toEmbed []uint64

	for _, id := range cs.Unchanged {
		vec, ok, err := co.cfg.Cache.Get(ctx, id)
		if err != nil {
			return nil, cs, fmt.Errorf("coordinator: cache get %d: %w", id, err)
		}
		if ok {
			out[id] = vec
			co.stats.hits.Add(1)
			co.stats.reused.Add(1)
			continue
		}
		toEmbed = append(toEmbed, id)
	}
	toEmbed = append(toEmbed, cs.Modified...)
	toEmbed = append(toEmbed, cs.Added...)

	if len(toEmbed) > 0 {
		texts := make([]string, 0, len(toEmbed))
		ids := make([]uint64, 0, len(toEmbed))
		for _, id := range toEmbed {
			text, found := nodeText(tree, id)
			if !found {
				continue
			}
			texts = append(texts, string(text))
			ids = append(ids, id)
		}

		if len(texts) > 0 {
			co.stats.misses.Add(uint64(len(texts)))

			result, err := co.cfg.Embedder.CreateEmbeddings(ctx, texts, co.cfg.ModelHint)
			if err != nil {
				return nil, cs, fmt.Errorf("coordinator: create embeddings: %w", err)
			}
			if len(result.Embeddings) != len(ids) {
				return nil, cs, fmt.Errorf("coordinator: embedder returned %d embeddings for %d texts", len(result.Embeddings), len(ids))
			}

			for i, id := range ids {
				vec := result.Embeddings[i]
				if err := co.cfg.Cache.Put(id, path, vec); err != nil {
					return nil, cs, fmt.Errorf("coordinator: cache put %d: %w", id, err)
				}
				out[id] = vec
				co.stats.generated.Add(1)
			}
		}
	}

	for _, id := range cs.Deleted {
		if err := co.cfg.Cache.Remove(id); err != nil {
			return nil, cs, fmt.Errorf("coordinator: cache remove %d: %w", id, err)
		}
	}

	return out, cs, nil
}

// EmbedNode is the non-incremental single-node variant: cache-first
// lookup by stableID, falling back to a single-text embedder call on
// miss. It does not run change detection and does not touch any other
// stable ID in the file.
func (co *Coordinator) EmbedNode(ctx context.Context, tree *parse.Tree, path string, stableID uint64) ([]float32, error) {
	co.mu.Lock()
	defer co.mu.Unlock()

	if vec, ok, err := co.cfg.Cache.Get(ctx, stableID); err != nil {
		return nil, fmt.Errorf("coordinator: cache get %d: %w", stableID, err)
	} else if ok {
		co.stats.hits.Add(1)
		co.stats.reused.Add(1)
		return vec, nil
	}

	text, found := nodeText(tree, stableID)
	if !found {
		return nil, fmt.Errorf("coordinator: stable id %d not found in tree for %s", stableID, path)
	}

	co.stats.misses.Add(1)
	result, err := co.cfg.Embedder.CreateEmbeddings(ctx, []string{string(text)}, co.cfg.ModelHint)
	if err != nil {
		return nil, fmt.Errorf("coordinator: create embeddings: %w", err)
	}
	if len(result.Embeddings) != 1 {
		return nil, fmt.Errorf("coordinator: embedder returned %d embeddings for 1 text", len(result.Embeddings))
	}

	vec := result.Embeddings[0]
	if err := co.cfg.Cache.Put(stableID, path, vec); err != nil {
		return nil, fmt.Errorf("coordinator: cache put %d: %w", stableID, err)
	}
	co.stats.generated.Add(1)
	return vec, nil
}
