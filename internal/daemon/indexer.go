package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/standardbeagle/corecache/internal/changedetect"
	"github.com/standardbeagle/corecache/internal/codec"
	"github.com/standardbeagle/corecache/internal/config"
	"github.com/standardbeagle/corecache/internal/coordinator"
	"github.com/standardbeagle/corecache/internal/embedcache"
	"github.com/standardbeagle/corecache/internal/langregistry"
	"github.com/standardbeagle/corecache/internal/parse"
	"github.com/standardbeagle/corecache/internal/parserpool"
	"github.com/standardbeagle/corecache/internal/planner"
	"github.com/standardbeagle/corecache/internal/querycache"
	"github.com/standardbeagle/corecache/internal/scanner"
	"github.com/standardbeagle/corecache/internal/symbols"
	"github.com/standardbeagle/corecache/internal/watcher"
	"github.com/standardbeagle/corecache/pkg/embedder"
	"github.com/standardbeagle/corecache/pkg/vectorstore"
)

// project holds every per-root-path resource the indexing pipeline needs:
// one of each component A-M, scoped to a single project so two indexed
// projects never share a vector table or change-detector snapshot.
type project struct {
	root string

	registry  *langregistry.Registry
	pool      *parserpool.Pool
	parser    *parse.Service
	detector  *changedetect.Detector
	cache     *embedcache.Cache
	coord     *coordinator.Coordinator
	store     vectorstore.Store
	qcache    *querycache.Cache
	broadcast *watcher.Broadcaster
	stopWatch func()

	mu        sync.RWMutex
	lastUsed  time.Time
	rowByID   map[uint64]SearchResult  // stable ID -> display metadata, mirrors the vector store's row metadata
	idsByPath map[string][]uint64      // relative path -> stable IDs last inserted for it, so a re-index or delete can retract stale rows
	dimension int
}

func (p *project) touch() {
	p.mu.Lock()
	p.lastUsed = time.Now()
	p.mu.Unlock()
}

// Indexer is the daemon's background indexing engine. It satisfies
// RequestHandler: HandleIndex scans and embeds a project, HandleSearch
// answers symbol queries against it, and GetStatus reports how many
// projects are currently resident.
//
// Grounded on the teacher's internal/daemon handler wiring (one handler
// behind the Unix socket) generalized to hold one [project] per indexed
// root, evicting the least-recently-used root once MaxProjects is
// exceeded - the same LRU policy the teacher's Config.MaxProjects
// documents but never the daemon itself implements beyond a comment.
type Indexer struct {
	cfg      *config.Config
	embedSvc embedder.Service

	manager vectorstore.Manager

	mu       sync.Mutex
	projects map[string]*project
	maxProj  int
}

// NewIndexer builds an Indexer storing vector tables under
// cfg.Persistence.CacheDir, using embedSvc to turn text into embeddings.
func NewIndexer(cfg *config.Config, embedSvc embedder.Service, maxProjects int) (*Indexer, error) {
	dir := filepath.Join(cfg.Persistence.CacheDir, "vectorindex")
	manager, err := vectorstore.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("daemon: open vector store: %w", err)
	}
	if maxProjects <= 0 {
		maxProjects = 5
	}
	return &Indexer{
		cfg:      cfg,
		embedSvc: embedSvc,
		manager:  manager,
		projects: make(map[string]*project),
		maxProj:  maxProjects,
	}, nil
}

// GetStatus implements RequestHandler.
func (ix *Indexer) GetStatus() StatusResult {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	name := "static"
	if info := ix.embedSvc.Info(); info.Name != "" {
		name = info.Name
	}

	return StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		EmbedderName:   name,
		ProjectsLoaded: len(ix.projects),
	}
}

// projectFor returns the resident project for root, opening it (and
// evicting the LRU project if ix.maxProj is exceeded) if necessary.
func (ix *Indexer) projectFor(root string) (*project, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if p, ok := ix.projects[root]; ok {
		return p, nil
	}

	if len(ix.projects) >= ix.maxProj {
		ix.evictLRULocked()
	}

	dim := ix.embedSvc.Dimensions()
	store, err := ix.manager.OpenTable(tableName(root))
	if err != nil {
		store, err = ix.manager.CreateTable(tableName(root), dim)
		if err != nil {
			return nil, fmt.Errorf("daemon: open vector table for %s: %w", root, err)
		}
	}

	registry := langregistry.Default()
	workers := ix.cfg.Performance.IndexWorkers
	if workers <= 0 {
		workers = 4
	}
	pool := parserpool.New(registry, workers)
	cdc := codec.New(codec.WithLevel(ix.cfg.Compression.CompressionLevel))

	cacheCfg := embedcache.DefaultConfig()
	cacheCfg.L3Dir = filepath.Join(ix.cfg.Persistence.CacheDir, "embedcache", tableName(root))
	cache, err := embedcache.New(cacheCfg, cdc)
	if err != nil {
		return nil, fmt.Errorf("daemon: open embed cache for %s: %w", root, err)
	}

	detector := changedetect.New()
	coord := coordinator.New(coordinator.Config{
		Detector: detector,
		Cache:    cache,
		Embedder: ix.embedSvc,
	})

	qcCfg := querycache.DefaultConfig()
	qcCfg.L3Dir = filepath.Join(ix.cfg.Persistence.CacheDir, "querycache", tableName(root))
	qc, err := querycache.New(qcCfg)
	if err != nil {
		return nil, fmt.Errorf("daemon: open query cache for %s: %w", root, err)
	}

	p := &project{
		root:      root,
		registry:  registry,
		pool:      pool,
		parser:    parse.NewService(pool, registry),
		detector:  detector,
		cache:     cache,
		coord:     coord,
		store:     store,
		qcache:    qc,
		lastUsed:  time.Now(),
		rowByID:   make(map[uint64]SearchResult),
		idsByPath: make(map[string][]uint64),
		dimension: dim,
	}
	ix.projects[root] = p
	ix.startWatch(p)
	return p, nil
}

// startWatch attaches a HybridWatcher to p.root and spawns a goroutine that
// re-indexes (or retracts) files as the watcher's broadcaster delivers
// batches, keeping a resident project live between explicit index calls.
// Grounded on the teacher's internal/watcher.Broadcaster fan-out model: one
// subscription per project, dropped silently (via Subscribe's mailbox) if
// this goroutine ever falls behind. A watcher that fails to start leaves
// the project usable via explicit HandleIndex calls; it is not fatal.
func (ix *Indexer) startWatch(p *project) {
	debounce := 500 * time.Millisecond
	if d, err := time.ParseDuration(ix.cfg.Performance.WatchDebounce); err == nil && d > 0 {
		debounce = d
	}

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: debounce,
		IgnorePatterns: ix.cfg.Paths.Exclude,
	}.WithDefaults())
	if err != nil {
		slog.Warn("daemon: file watcher unavailable, project will only update on explicit index", slog.String("root", p.root), slog.String("error", err.Error()))
		return
	}

	b := watcher.NewBroadcaster(w, 32)
	ctx, cancel := context.WithCancel(context.Background())

	batches, unsubscribe := b.Subscribe()
	p.broadcast = b
	p.stopWatch = func() {
		unsubscribe()
		_ = b.Stop()
		cancel()
	}

	// b.Start runs the watcher until Stop or cancel, so it gets its own
	// goroutine; a start failure is logged and ends the watch loop.
	go func() {
		if err := b.Start(ctx, p.root); err != nil && ctx.Err() == nil {
			slog.Warn("daemon: failed to start file watcher", slog.String("root", p.root), slog.String("error", err.Error()))
			cancel()
		}
	}()
	go ix.watchLoop(ctx, p, batches)
}

func (ix *Indexer) watchLoop(ctx context.Context, p *project, batches <-chan watcher.BatchEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batches:
			if !ok {
				return
			}
			ix.applyBatch(ctx, p, batch)
		}
	}
}

// applyBatch re-indexes every created/modified file in batch and retracts
// deleted ones, keeping the vector table and query cache consistent with
// the working tree without requiring another explicit index call.
func (ix *Indexer) applyBatch(ctx context.Context, p *project, batch watcher.BatchEvent) {
	for _, ev := range batch.Events {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case watcher.OpDelete:
			ix.retractPath(p, ev.Path)
		case watcher.OpRename:
			ix.retractPath(p, ev.OldPath)
			ix.reindexPath(ctx, p, ev.Path)
		default:
			ix.reindexPath(ctx, p, ev.Path)
		}
	}
	if err := ix.manager.Save(tableName(p.root)); err != nil {
		slog.Warn("daemon: failed to persist vector table after watch batch", slog.String("root", p.root), slog.String("error", err.Error()))
	}
}

func (ix *Indexer) reindexPath(ctx context.Context, p *project, relPath string) {
	ix.retractPath(p, relPath)
	absPath := filepath.Join(p.root, relPath)
	if _, err := ix.indexFile(ctx, p, absPath, relPath); err != nil {
		slog.Warn("daemon: watch re-index failed", slog.String("path", relPath), slog.String("error", err.Error()))
	}
}

func (ix *Indexer) retractPath(p *project, relPath string) {
	p.mu.Lock()
	ids := p.idsByPath[relPath]
	delete(p.idsByPath, relPath)
	for _, id := range ids {
		delete(p.rowByID, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if err := p.store.DeleteByID(id); err != nil {
			slog.Warn("daemon: failed to retract stale row", slog.String("path", relPath), slog.String("error", err.Error()))
		}
	}
}

func (ix *Indexer) evictLRULocked() {
	var oldestRoot string
	var oldest time.Time
	for root, p := range ix.projects {
		p.mu.RLock()
		last := p.lastUsed
		p.mu.RUnlock()
		if oldestRoot == "" || last.Before(oldest) {
			oldestRoot, oldest = root, last
		}
	}
	if oldestRoot != "" {
		if p := ix.projects[oldestRoot]; p != nil {
			if p.stopWatch != nil {
				p.stopWatch()
			}
			if p.qcache != nil {
				_ = p.qcache.Close()
			}
		}
		delete(ix.projects, oldestRoot)
	}
}

func tableName(root string) string {
	return fmt.Sprintf("project-%x", hashPath(root))
}

func hashPath(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// HandleIndex implements RequestHandler: it scans params.RootPath,
// parses every discoverable source file, extracts symbols, runs them
// through the coordinator for cache-aware embedding, and inserts the
// results into the project's vector table.
func (ix *Indexer) HandleIndex(ctx context.Context, params IndexParams) (IndexResult, error) {
	start := time.Now()

	p, err := ix.projectFor(params.RootPath)
	if err != nil {
		return IndexResult{}, err
	}
	p.touch()

	sc, err := scanner.New()
	if err != nil {
		return IndexResult{}, fmt.Errorf("daemon: new scanner: %w", err)
	}

	opts := &scanner.ScanOptions{
		RootDir:          params.RootPath,
		IncludePatterns:  ix.cfg.Paths.Include,
		ExcludePatterns:  ix.cfg.Paths.Exclude,
		RespectGitignore: true,
	}

	results, err := sc.Scan(ctx, opts)
	if err != nil {
		return IndexResult{}, fmt.Errorf("daemon: scan %s: %w", params.RootPath, err)
	}

	var scanned, indexed, symbolCount int
	for res := range results {
		scanned++
		if res.Error != nil || res.File == nil {
			continue
		}
		if res.File.ContentType != scanner.ContentTypeCode {
			continue
		}

		n, err := ix.indexFile(ctx, p, res.File.AbsPath, res.File.Path)
		if err != nil {
			continue
		}
		if n > 0 {
			indexed++
			symbolCount += n
		}
		if params.Progress != nil {
			params.Progress(scanned, indexed, symbolCount)
		}
	}

	if err := p.store.CreateANNIndex(); err != nil {
		return IndexResult{}, fmt.Errorf("daemon: build ann index: %w", err)
	}
	if err := ix.manager.Save(tableName(params.RootPath)); err != nil {
		return IndexResult{}, fmt.Errorf("daemon: save vector table: %w", err)
	}

	return IndexResult{
		RootPath:     params.RootPath,
		FilesScanned: scanned,
		FilesIndexed: indexed,
		SymbolsFound: symbolCount,
		DurationMS:   time.Since(start).Milliseconds(),
	}, nil
}

// indexFile parses one file, extracts its symbols, embeds them through
// the coordinator, and inserts them into the project's vector table. It
// returns the number of symbols inserted.
func (ix *Indexer) indexFile(ctx context.Context, p *project, absPath, relPath string) (int, error) {
	source, err := os.ReadFile(absPath)
	if err != nil {
		return 0, err
	}
	if len(source) == 0 {
		return 0, nil
	}

	info, err := p.registry.ForPath(relPath)
	if err != nil {
		return 0, nil // unsupported language, not an error
	}

	result, err := p.parser.Parse(ctx, source, info.Tag, nil)
	if err != nil {
		return 0, err
	}

	syms := symbols.Extract(result.Tree, info)
	if len(syms) == 0 {
		return 0, nil
	}

	embeddings, _, err := p.coord.EmbedFileIncremental(ctx, result.Tree, relPath)
	if err != nil {
		return 0, err
	}

	rows := make([]vectorstore.Row, 0, len(syms))
	var ids []uint64
	var flatten func(syms []*symbols.Symbol)
	flatten = func(syms []*symbols.Symbol) {
		for _, sym := range syms {
			vec, ok := embeddings[sym.StableID]
			if ok {
				rows = append(rows, vectorstore.Row{
					ID:        sym.StableID,
					Embedding: vec,
					Metadata: map[string]string{
						"path":     relPath,
						"name":     sym.DisplayName,
						"kind":     string(sym.Kind),
						"language": string(info.Tag),
					},
				})
				ids = append(ids, sym.StableID)
				p.mu.Lock()
				p.rowByID[sym.StableID] = SearchResult{
					FilePath:    relPath,
					DisplayName: sym.DisplayName,
					Kind:        string(sym.Kind),
					StartLine:   int(sym.StartPos.Row) + 1,
					EndLine:     int(sym.EndPos.Row) + 1,
					Language:    string(info.Tag),
				}
				p.mu.Unlock()
			}
			flatten(sym.Children)
		}
	}
	flatten(syms)

	if len(rows) == 0 {
		return 0, nil
	}
	if err := p.store.InsertBatch(ctx, rows); err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.idsByPath[relPath] = ids
	p.mu.Unlock()

	return len(rows), nil
}

// HandleSearch implements RequestHandler: it optimizes the query text
// through the planner, consults the query cache, and falls back to
// embedding the query and running a nearest-neighbor lookup against the
// project's vector table on a miss.
func (ix *Indexer) HandleSearch(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	p, err := ix.projectFor(params.RootPath)
	if err != nil {
		return nil, err
	}
	p.touch()

	optimized := planner.Optimize(params.Query)

	filter := vectorstore.Filter{}
	if params.Language != "" {
		filter["language"] = params.Language
	}

	key := querycache.CacheKey(optimized, params.Limit, fmt.Sprintf("%v", filter))
	if cached, ok := p.qcache.Get(key); ok {
		// Cached results carry no score: a repeated query answers from
		// the symbol metadata alone, scored 0, which is acceptable since
		// relative ordering (not absolute score) is what the cache key
		// already fixed at write time.
		return toSearchResults(p, cached.IDs, nil), nil
	}

	queryResult, err := ix.embedSvc.CreateEmbeddings(ctx, []string{optimized}, "")
	if err != nil {
		return nil, fmt.Errorf("daemon: embed query: %w", err)
	}
	if len(queryResult.Embeddings) != 1 {
		return nil, fmt.Errorf("daemon: embedder returned %d embeddings for 1 query", len(queryResult.Embeddings))
	}

	hits, err := p.store.Query(ctx, queryResult.Embeddings[0], params.Limit, filter)
	if err != nil {
		return nil, fmt.Errorf("daemon: query vector store: %w", err)
	}

	// Hybrid ranking: boost vector hits that also match the keyword/
	// structural filter index (component L's auxiliary index over
	// display name, kind, language, path), the way a BM25-plus-ANN
	// hybrid search ranks combined signal over either alone. A keyword
	// index error just skips the boost; it never fails the search.
	if kw, err := p.store.KeywordCandidates(optimized, len(hits)*4); err == nil {
		for i := range hits {
			if kw[hits[i].ID] {
				hits[i].Score += 0.1
			}
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	}

	ids := make([]string, len(hits))
	scores := make([]float32, len(hits))
	for i, h := range hits {
		ids[i] = strconv.FormatUint(h.ID, 10)
		scores[i] = h.Score
	}
	_ = p.qcache.Set(key, querycache.Result{IDs: ids, Timestamp: time.Now()})

	return toSearchResults(p, ids, scores), nil
}

// StatsSnapshot reports the cache-tier counters for one project, used by
// the CLI's stats command to show how effective the embedding cache and
// coordinator have been for a given root.
type StatsSnapshot struct {
	RootPath       string               `json:"root_path"`
	SymbolCount    int                  `json:"symbol_count"`
	EmbedCache     embedcache.Snapshot  `json:"embed_cache"`
	Coordinator    coordinator.Snapshot `json:"coordinator"`
	ProjectsLoaded int                  `json:"projects_loaded"`
}

// Stats returns cache and coordinator statistics for the project at root.
// Unlike HandleIndex/HandleSearch, it never triggers a scan; it only
// opens (or reuses) the project's resident state.
func (ix *Indexer) Stats(root string) (StatsSnapshot, error) {
	p, err := ix.projectFor(root)
	if err != nil {
		return StatsSnapshot{}, err
	}
	p.touch()

	ix.mu.Lock()
	loaded := len(ix.projects)
	ix.mu.Unlock()

	p.mu.RLock()
	symCount := len(p.rowByID)
	p.mu.RUnlock()

	return StatsSnapshot{
		RootPath:       root,
		SymbolCount:    symCount,
		EmbedCache:     p.cache.Stats(),
		Coordinator:    p.coord.Stats(),
		ProjectsLoaded: loaded,
	}, nil
}

func toSearchResults(p *project, ids []string, scores []float32) []SearchResult {
	out := make([]SearchResult, 0, len(ids))
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, idStr := range ids {
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		meta, ok := p.rowByID[id]
		if !ok {
			continue
		}
		if scores != nil {
			meta.Score = scores[i]
		}
		out = append(out, meta)
	}
	return out
}
