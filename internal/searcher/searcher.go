// Package searcher fuses lexical full-text matches with vector similarity
// into one ranked result list. Either signal can be missing: the engine
// degrades to lexical-only service rather than failing the request, and
// always reports which mode answered.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"symdex/internal/embedder"
	"symdex/internal/storage"
	"symdex/internal/vector"
	"symdex/pkg/types"
)

const (
	// DefaultTopK is the result count when the caller asks for none.
	DefaultTopK = 10
	// DefaultAlpha is the vector signal weight when the caller passes a
	// negative alpha.
	DefaultAlpha = 0.6
	// candidateMultiplier scales topK into the per-signal candidate budget.
	candidateMultiplier = 8

	cacheSize = 128
	cacheTTL  = 5 * time.Minute
)

// Options tunes one search request.
type Options struct {
	// TopK is the maximum number of results; 0 means DefaultTopK.
	TopK int
	// Alpha weighs the vector signal in [0, 1]; 0 disables the vector stage
	// entirely. Negative means DefaultAlpha.
	Alpha float64
	// FilterKinds, when non-empty, keeps only chunks whose symbol kind is in
	// the list. Window chunks carry no kind and are filtered out.
	FilterKinds []types.SymbolKind
}

// Response carries the ranked results and the mode that served them.
type Response struct {
	Results  []types.FusedResult
	ServedBy types.SearchMode
}

type cacheEntry struct {
	response Response
	storedAt time.Time
}

// Searcher answers hybrid queries over one store. Embedder and backend may
// be nil, which pins the searcher to lexical-only service.
type Searcher struct {
	store    *storage.Store
	embedder embedder.Embedder
	backend  vector.Backend
	logger   *slog.Logger
	cache    *lru.Cache[string, cacheEntry]
}

// New builds a Searcher. A nil embedder or backend is allowed.
func New(store *storage.Store, emb embedder.Embedder, backend vector.Backend, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, cacheEntry](cacheSize)
	return &Searcher{
		store:    store,
		embedder: emb,
		backend:  backend,
		logger:   logger,
		cache:    cache,
	}
}

// InvalidateCache drops all cached responses. The engine calls this after
// any index mutation.
func (s *Searcher) InvalidateCache() {
	s.cache.Purge()
}

// Search runs the fusion pipeline: lexical candidates, vector candidates,
// per-id score fusion, kind post-filter, stable rank. A vector-stage failure
// degrades to lexical-only service; a lexical syntax error is sanitized and
// retried once before surfacing. A query whose terms miss the full-text
// index entirely is reported as served by vector candidates alone.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return &Response{ServedBy: types.SearchLexicalOnly}, nil
	}
	opts = withDefaults(opts)

	key := cacheKey(query, opts)
	if entry, ok := s.cache.Get(key); ok && time.Since(entry.storedAt) < cacheTTL {
		resp := entry.response
		return &resp, nil
	}

	budget := opts.TopK * candidateMultiplier

	lexHits, err := s.lexicalStage(ctx, query, budget)
	if err != nil {
		return nil, err
	}

	var neighbors []vector.Neighbor
	servedBy := types.SearchLexicalOnly
	if opts.Alpha > 0 {
		neighbors, err = s.vectorStage(ctx, query, budget)
		if err != nil {
			s.logger.Warn("vector stage failed, serving lexical-only", "error", err)
		} else {
			servedBy = types.SearchHybrid
		}
	}
	if servedBy == types.SearchHybrid && len(lexHits) == 0 && len(neighbors) > 0 {
		servedBy = types.SearchVectorOnly
	}
	alpha := opts.Alpha
	if servedBy == types.SearchLexicalOnly {
		alpha = 0
	}

	results, err := s.fuse(ctx, lexHits, neighbors, alpha)
	if err != nil {
		return nil, err
	}
	results = filterKinds(results, opts.FilterKinds)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	resp := Response{Results: results, ServedBy: servedBy}
	s.cache.Add(key, cacheEntry{response: resp, storedAt: time.Now()})
	return &resp, nil
}

func withDefaults(opts Options) Options {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Alpha < 0 {
		opts.Alpha = DefaultAlpha
	}
	if opts.Alpha > 1 {
		opts.Alpha = 1
	}
	return opts
}

func cacheKey(query string, opts Options) string {
	kinds := make([]string, len(opts.FilterKinds))
	for i, k := range opts.FilterKinds {
		kinds[i] = string(k)
	}
	sort.Strings(kinds)
	return fmt.Sprintf("%s|%d|%.4f|%s", query, opts.TopK, opts.Alpha, strings.Join(kinds, ","))
}

// lexicalStage queries the full-text index, sanitizing and retrying once on
// malformed query syntax.
func (s *Searcher) lexicalStage(ctx context.Context, query string, budget int) ([]storage.LexicalHit, error) {
	hits, err := s.store.SearchLexical(ctx, query, budget)
	if err == nil {
		return hits, nil
	}
	if !errors.Is(err, types.ErrQuerySyntax) {
		return nil, err
	}

	sanitized := SanitizeQuery(query)
	if sanitized == "" || sanitized == query {
		return nil, err
	}
	s.logger.Debug("retrying lexical query after sanitization", "query", query, "sanitized", sanitized)
	hits, retryErr := s.store.SearchLexical(ctx, sanitized, budget)
	if retryErr != nil {
		return nil, fmt.Errorf("%w: after sanitization: %v", types.ErrQuerySyntax, retryErr)
	}
	return hits, nil
}

func (s *Searcher) vectorStage(ctx context.Context, query string, budget int) ([]vector.Neighbor, error) {
	if s.embedder == nil || s.backend == nil {
		return nil, types.ErrBackendUnavailable
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	neighbors, err := s.backend.QueryNearest(ctx, queryVec, budget)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return neighbors, nil
}

// fused accumulates both signals for one candidate before scoring.
type fused struct {
	lexScore float64
	vecScore float64
	lexRank  int // original lexical rank, or missingRank when absent
	hit      *storage.LexicalHit
}

const missingRank = int(^uint(0) >> 1)

// fuse combines the two candidate lists by external id. Lexical-only
// candidates keep their lexical term; vector-only candidates are hydrated
// from the chunk store for source metadata.
func (s *Searcher) fuse(ctx context.Context, lexHits []storage.LexicalHit, neighbors []vector.Neighbor, alpha float64) ([]types.FusedResult, error) {
	byID := make(map[string]*fused, len(lexHits)+len(neighbors))
	order := make([]string, 0, len(lexHits)+len(neighbors))

	for i := range lexHits {
		hit := &lexHits[i]
		byID[hit.UID] = &fused{
			lexScore: 1 / (1 + float64(hit.Rank)),
			lexRank:  hit.Rank,
			hit:      hit,
		}
		order = append(order, hit.UID)
	}
	for _, n := range neighbors {
		f, ok := byID[n.ExternalID]
		if !ok {
			f = &fused{lexRank: missingRank}
			byID[n.ExternalID] = f
			order = append(order, n.ExternalID)
		}
		f.vecScore = 1 / (1 + n.Distance)
	}

	results := make([]types.FusedResult, 0, len(order))
	for _, uid := range order {
		f := byID[uid]
		hybrid := alpha*f.vecScore + (1-alpha)*f.lexScore
		if hybrid == 0 {
			continue
		}

		r := types.FusedResult{
			UID:          uid,
			LexicalScore: f.lexScore,
			VectorScore:  f.vecScore,
			HybridScore:  hybrid,
		}
		if f.hit != nil {
			r.Path = f.hit.Path
			r.StartLine = f.hit.StartLine
			r.EndLine = f.hit.EndLine
			r.Name = f.hit.Name
			r.Kind = types.SymbolKind(f.hit.Kind)
			r.Snippet = f.hit.Snippet
		} else {
			chunk, err := s.store.GetChunkByUID(ctx, uid)
			if err != nil {
				if errors.Is(err, types.ErrNotIndexed) {
					// The vector record outlived its chunk; skip the orphan.
					s.logger.Debug("skipping orphan vector hit", "uid", uid)
					continue
				}
				return nil, err
			}
			r.Path = chunk.Path
			r.StartLine = chunk.StartLine
			r.EndLine = chunk.EndLine
			r.Snippet = firstLines(chunk.Text, 3)
			if chunk.Symbol != nil {
				r.Name = chunk.Symbol.Name
				r.Kind = chunk.Symbol.Kind
			}
		}
		results = append(results, r)
	}

	// Stable sort: descending hybrid score, ties by original lexical rank.
	ranks := make(map[string]int, len(results))
	for _, uid := range order {
		ranks[uid] = byID[uid].lexRank
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].HybridScore != results[j].HybridScore {
			return results[i].HybridScore > results[j].HybridScore
		}
		return ranks[results[i].UID] < ranks[results[j].UID]
	})
	return results, nil
}

func filterKinds(results []types.FusedResult, kinds []types.SymbolKind) []types.FusedResult {
	if len(kinds) == 0 {
		return results
	}
	allowed := make(map[types.SymbolKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	out := results[:0]
	for _, r := range results {
		if allowed[r.Kind] {
			out = append(out, r)
		}
	}
	return out
}

func firstLines(text string, n int) string {
	lines := strings.SplitN(text, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

var (
	ftsOperatorPattern = regexp.MustCompile(`\b(AND|OR|NOT|NEAR)\b`)
	ftsSpecialPattern  = regexp.MustCompile(`[^\pL\pN_\s]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// SanitizeQuery strips FTS5 reserved operators and all punctuation,
// collapsing whitespace, producing a plain-term query safe to retry.
// Punctuation common in code identifiers (".", "/", "::") is a syntax
// error in FTS5, so dotted queries like Store.Get become two bare terms.
func SanitizeQuery(query string) string {
	out := ftsOperatorPattern.ReplaceAllString(query, " ")
	out = ftsSpecialPattern.ReplaceAllString(out, " ")
	out = whitespacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
