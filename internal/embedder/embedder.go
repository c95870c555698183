// Package embedder generates text embeddings for chunk indexing and query
// search. Remote providers (Jina, OpenAI) share one HTTP implementation;
// the local provider is deterministic and needs no network, which keeps the
// engine usable without credentials.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrProviderFailed  = errors.New("embedding provider failed")
	ErrBatchTooLarge   = errors.New("batch size exceeds limit")
	ErrUnknownProvider = errors.New("unknown embedding provider")
	ErrMissingAPIKey   = errors.New("embedding provider requires an api key")
)

// Embedder turns text into fixed-dimension vectors. Implementations are safe
// for concurrent use.
type Embedder interface {
	// Embed generates one embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for up to MaxBatchSize texts, in
	// input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the fixed output dimension of this provider.
	Dimension() int

	// Provider is the provider name ("jina", "openai", "local").
	Provider() string

	// Model is the model identifier sent to the provider.
	Model() string

	// Close releases held resources.
	Close() error
}

// Cache is an LRU of embeddings keyed by content hash. Get returns a copy
// so callers cannot mutate cached vectors.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a cache holding up to maxLen embeddings.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get retrieves a copy of the cached vector for hash.
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a vector; LRU eviction is automatic.
func (c *Cache) Set(hash string, v []float32) {
	c.cache.Add(hash, v)
}

// Len returns the current number of cached vectors.
func (c *Cache) Len() int { return c.cache.Len() }

// Purge empties the cache.
func (c *Cache) Purge() { c.cache.Purge() }

// ContentHash is the cache key for a text.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func validateBatch(texts []string, max int) error {
	if len(texts) == 0 {
		return ErrEmptyText
	}
	if len(texts) > max {
		return ErrBatchTooLarge
	}
	for _, t := range texts {
		if t == "" {
			return ErrEmptyText
		}
	}
	return nil
}
