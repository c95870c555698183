// Package engine wires the indexing pipeline (read, extract, chunk, store,
// embed) and the hybrid search path behind one facade. All mutating
// operations keep the lexical index authoritative: vector writes are best
// effort and their absence only degrades search, never indexing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"symdex/internal/chunker"
	"symdex/internal/embedder"
	"symdex/internal/extractor"
	"symdex/internal/searcher"
	"symdex/internal/storage"
	"symdex/internal/vector"
	"symdex/pkg/types"
)

// ErrIndexBusy is returned when a file is already being indexed by another
// request.
var ErrIndexBusy = errors.New("index operation already in progress")

// Environment variables read by ConfigFromEnv.
const (
	EnvDBPath        = "SYMDEX_DB_PATH"
	EnvVectorBackend = "SYMDEX_VECTOR_BACKEND"
	EnvWindowLines   = "SYMDEX_FALLBACK_WINDOW"
)

// Config holds engine construction parameters.
type Config struct {
	// DBPath is the SQLite database file. Empty means ~/.symdex/index.db.
	DBPath string
	// VectorBackend optionally pins the backend: "vec", "vss" or "computed".
	VectorBackend string
	// WindowLines overrides the fallback chunk window size; 0 keeps the
	// default.
	WindowLines int
	// Workers bounds IndexDir concurrency; 0 means runtime.NumCPU().
	Workers int
	// Embedder overrides the environment-selected provider, mainly for
	// tests.
	Embedder embedder.Embedder

	Logger *slog.Logger
}

// ConfigFromEnv builds a Config from the process environment.
func ConfigFromEnv() Config {
	cfg := Config{
		DBPath:        os.Getenv(EnvDBPath),
		VectorBackend: os.Getenv(EnvVectorBackend),
	}
	if v := os.Getenv(EnvWindowLines); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WindowLines = n
		}
	}
	return cfg
}

func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".symdex", "index.db"), nil
}

// DirStats summarizes one IndexDir run.
type DirStats struct {
	FilesIndexed int
	FilesSkipped int
	FilesFailed  int
	Symbols      int
	Chunks       int
	Duration     time.Duration
	Errors       []string
}

// Engine is the indexing and search facade. Safe for concurrent use.
type Engine struct {
	store     *storage.Store
	extractor *extractor.Extractor
	chunker   *chunker.Chunker
	embedder  embedder.Embedder
	keys      *vector.KeyMap
	backend   vector.Backend
	searcher  *searcher.Searcher
	locks     pathLocks
	logger    *slog.Logger
	workers   int

	selfTestPassed bool
}

// Open builds an Engine from cfg. A vector backend that cannot be selected
// is not fatal: the engine comes up in lexical-only mode and logs why.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		var err error
		dbPath, err = defaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create database directory: %v", types.ErrIO, err)
	}

	store, err := storage.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, err
	}

	emb := cfg.Embedder
	if emb == nil {
		emb, err = embedder.NewFromEnv()
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("configure embedder: %w", err)
		}
	}

	keys := vector.NewKeyMap(store.DB())
	backend, err := vector.Select(ctx, store.DB(), store.Path(), keys, emb.Dimension(), cfg.VectorBackend, logger)
	selfTestPassed := err == nil
	if err != nil {
		logger.Warn("no vector backend available, serving lexical-only", "error", err)
		backend = nil
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var chunkOpts []chunker.Option
	if cfg.WindowLines > 0 {
		chunkOpts = append(chunkOpts, chunker.WithWindowLines(cfg.WindowLines))
	}

	e := &Engine{
		store:          store,
		extractor:      extractor.New(logger),
		chunker:        chunker.New(logger, chunkOpts...),
		embedder:       emb,
		keys:           keys,
		backend:        backend,
		logger:         logger,
		workers:        workers,
		selfTestPassed: selfTestPassed,
	}
	e.searcher = searcher.New(store, emb, backend, logger)
	return e, nil
}

// Close releases the store, the embedder and any backend-held handles.
func (e *Engine) Close() error {
	if e.embedder != nil {
		if err := e.embedder.Close(); err != nil {
			e.logger.Warn("closing embedder", "error", err)
		}
	}
	if closer, ok := e.backend.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			e.logger.Warn("closing vector backend", "error", err)
		}
	}
	return e.store.Close()
}

// IndexFile reads, extracts, chunks and stores one file, replacing any
// previous snapshot for the same path. The lexical write is transactional;
// vector upserts follow it and are allowed to fail.
func (e *Engine) IndexFile(ctx context.Context, path string) (*types.IndexResult, error) {
	if !e.locks.tryAcquire(path) {
		return nil, fmt.Errorf("%w: %s", ErrIndexBusy, path)
	}
	defer e.locks.release(path)

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", types.ErrIO, path, err)
	}
	return e.indexContent(ctx, path, content)
}

// IndexFileIfChanged indexes the file only when its content digest differs
// from the stored snapshot. An unchanged file returns Skipped=true and
// leaves the index untouched.
func (e *Engine) IndexFileIfChanged(ctx context.Context, path string) (*types.IndexResult, error) {
	if !e.locks.tryAcquire(path) {
		return nil, fmt.Errorf("%w: %s", ErrIndexBusy, path)
	}
	defer e.locks.release(path)

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", types.ErrIO, path, err)
	}

	digest := chunker.Digest(content)
	existing, err := e.store.GetFile(ctx, path)
	if err != nil && !errors.Is(err, types.ErrNotIndexed) {
		return nil, err
	}
	if existing != nil && existing.Digest == digest {
		return &types.IndexResult{
			Path:        path,
			Digest:      digest,
			SymbolCount: existing.SymbolCount,
			Mode:        existing.Mode,
			Skipped:     true,
		}, nil
	}
	return e.indexContent(ctx, path, content)
}

func (e *Engine) indexContent(ctx context.Context, path string, content []byte) (*types.IndexResult, error) {
	result := e.extractor.Extract(ctx, path, content)
	fc := e.chunker.Chunk(path, content, result)

	removedUIDs, err := e.store.ReplaceFileIndex(ctx, &storage.FileIndex{
		Path:        path,
		Language:    fc.Language,
		Digest:      fc.Digest,
		Mode:        fc.Mode,
		SymbolCount: len(result.Symbols),
		Chunks:      fc.Chunks,
	})
	if err != nil {
		return nil, err
	}
	e.searcher.InvalidateCache()

	e.dropVectors(ctx, removedUIDs)
	e.upsertVectors(ctx, fc.Chunks)

	for _, skip := range fc.Skipped {
		e.logger.Debug("extractor skipped node", "detail", skip.String())
	}

	return &types.IndexResult{
		Path:          path,
		Digest:        fc.Digest,
		ChunksWritten: len(fc.Chunks),
		SymbolCount:   len(result.Symbols),
		Mode:          fc.Mode,
	}, nil
}

// upsertVectors embeds and stores chunk vectors in provider-sized batches.
// Failures are logged, not returned: the chunk rows are already committed
// and lexical search keeps working.
func (e *Engine) upsertVectors(ctx context.Context, chunks []types.Chunk) {
	if e.backend == nil || len(chunks) == 0 {
		return
	}
	for start := 0; start < len(chunks); start += embedder.MaxBatchSize {
		end := start + embedder.MaxBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			e.logger.Warn("embedding batch failed, chunks indexed without vectors",
				"count", len(batch), "error", err)
			continue
		}
		for i, c := range batch {
			if err := e.backend.Upsert(ctx, c.UID, vectors[i]); err != nil {
				e.logger.Warn("vector upsert failed", "uid", c.UID, "error", err)
			}
		}
	}
}

// dropVectors removes vector records and key mappings for chunks that no
// longer exist.
func (e *Engine) dropVectors(ctx context.Context, uids []string) {
	for _, uid := range uids {
		if e.backend != nil {
			if err := e.backend.Delete(ctx, uid); err != nil {
				e.logger.Warn("vector delete failed", "uid", uid, "error", err)
			}
			continue
		}
		if _, _, err := e.keys.Delete(ctx, uid); err != nil {
			e.logger.Warn("key mapping delete failed", "uid", uid, "error", err)
		}
	}
}

// RemoveFile deletes a file's snapshot and its vectors. Returns the number
// of chunks removed.
func (e *Engine) RemoveFile(ctx context.Context, path string) (int, error) {
	if !e.locks.tryAcquire(path) {
		return 0, fmt.Errorf("%w: %s", ErrIndexBusy, path)
	}
	defer e.locks.release(path)

	removedUIDs, err := e.store.DeleteFile(ctx, path)
	if err != nil {
		return 0, err
	}
	e.searcher.InvalidateCache()
	e.dropVectors(ctx, removedUIDs)
	return len(removedUIDs), nil
}

// IndexDir walks root and incrementally indexes every file with a registered
// language; other files are skipped. Per-file failures are recorded in the
// stats, never fatal to the walk.
func (e *Engine) IndexDir(ctx context.Context, root string) (*DirStats, error) {
	start := time.Now()
	files, err := e.discoverFiles(root)
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %v", types.ErrIO, root, err)
	}

	stats := &DirStats{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, path := range files {
		g.Go(func() error {
			res, err := e.IndexFileIfChanged(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.FilesFailed++
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
				e.logger.Warn("indexing file failed", "path", path, "error", err)
				return nil
			}
			if res.Skipped {
				stats.FilesSkipped++
				return nil
			}
			stats.FilesIndexed++
			stats.Symbols += res.SymbolCount
			stats.Chunks += res.ChunksWritten
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// discoverFiles lists indexable files under root: files whose extension has
// a registered language. Hidden directories and dependency trees are
// skipped.
func (e *Engine) discoverFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") ||
				name == "vendor" || name == "node_modules" || name == "__pycache__") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if e.extractor.Supports(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Search runs a hybrid query over the index.
func (e *Engine) Search(ctx context.Context, query string, opts searcher.Options) (*searcher.Response, error) {
	return e.searcher.Search(ctx, query, opts)
}

// GetSymbols lists the extracted symbols of one indexed file, ordered by
// start line. Window chunks are not symbols and do not appear.
func (e *Engine) GetSymbols(ctx context.Context, path string) ([]types.Symbol, error) {
	if _, err := e.store.GetFile(ctx, path); err != nil {
		return nil, err
	}
	return e.store.ListSymbolsByFile(ctx, path)
}

// VectorBackendStatus reports which backend serves vector search, its
// dimension and record count, and whether its startup self-test passed.
func (e *Engine) VectorBackendStatus(ctx context.Context) (*types.BackendStatus, error) {
	status := &types.BackendStatus{
		BackendKind:    "none",
		Dimension:      e.embedder.Dimension(),
		SelfTestPassed: e.selfTestPassed,
	}
	if e.backend == nil {
		return status, nil
	}
	status.BackendKind = string(e.backend.Kind())
	count, err := e.backend.Count(ctx)
	if err != nil {
		return nil, err
	}
	status.RecordCount = int(count)
	return status, nil
}

// ListOrphanVectors reports key mappings whose chunk no longer exists.
// A non-empty result indicates an interrupted delete; re-indexing or
// removing the affected files repairs it.
func (e *Engine) ListOrphanVectors(ctx context.Context) ([]string, error) {
	return e.store.ListOrphanVectorKeys(ctx)
}
