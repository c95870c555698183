package vector

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"symdex/pkg/types"
)

// ComputedBackend is the always-available fallback: embeddings live as blobs
// in the fallback_vectors table and nearest-neighbor queries scan them with
// a Go cosine loop. Correct for any corpus, linear in corpus size.
type ComputedBackend struct {
	db   *sql.DB
	keys *KeyMap

	mu        sync.Mutex
	dimension int
}

// NewComputedBackend returns a fallback backend over the shared database.
func NewComputedBackend(db *sql.DB, keys *KeyMap) *ComputedBackend {
	return &ComputedBackend{db: db, keys: keys}
}

// Kind reports KindComputed.
func (b *ComputedBackend) Kind() Kind { return KindComputed }

// EnsureTable fixes the dimension on first call. Later calls are idempotent:
// a different dimension is a no-op that leaves the established state intact,
// and the mismatch surfaces on the next upsert or query instead.
func (b *ComputedBackend) EnsureTable(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", types.ErrDimensionMismatch, dimension)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dimension != 0 {
		return nil
	}

	// Adopt the dimension of existing rows so reopening a database keeps
	// the original invariant.
	var existing sql.NullInt64
	if err := b.db.QueryRowContext(ctx,
		`SELECT dimension FROM fallback_vectors LIMIT 1`).Scan(&existing); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("%w: probe dimension: %v", types.ErrIO, err)
	}
	if existing.Valid && int(existing.Int64) != dimension {
		return fmt.Errorf("%w: table holds %d-dimensional vectors, got %d",
			types.ErrDimensionMismatch, existing.Int64, dimension)
	}
	b.dimension = dimension
	return nil
}

func (b *ComputedBackend) establishedDimension() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dimension
}

// Upsert writes or replaces the embedding for externalID. Key allocation and
// the row write commit together, so an interrupted call never leaves a key
// without its vector.
func (b *ComputedBackend) Upsert(ctx context.Context, externalID string, embedding []float32) error {
	if err := checkDimension(b.establishedDimension(), len(embedding)); err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin upsert %s: %v", types.ErrIO, externalID, err)
	}
	defer tx.Rollback()

	id, err := b.keys.getOrCreate(ctx, tx, externalID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO fallback_vectors (internal_id, embedding, dimension) VALUES (?, ?, ?)
		ON CONFLICT(internal_id) DO UPDATE SET embedding = excluded.embedding, dimension = excluded.dimension`,
		id, SerializeVector(embedding), len(embedding))
	if err != nil {
		return fmt.Errorf("%w: upsert vector %s: %v", types.ErrIO, externalID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit upsert %s: %v", types.ErrIO, externalID, err)
	}
	return nil
}

// Delete removes the embedding and key mapping for externalID in one
// transaction. Unknown ids are a no-op.
func (b *ComputedBackend) Delete(ctx context.Context, externalID string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin delete %s: %v", types.ErrIO, externalID, err)
	}
	defer tx.Rollback()

	id, ok, err := b.keys.delete(ctx, tx, externalID)
	if err != nil || !ok {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fallback_vectors WHERE internal_id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete vector %s: %v", types.ErrIO, externalID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete %s: %v", types.ErrIO, externalID, err)
	}
	return nil
}

// QueryNearest scans every stored vector and returns the k closest by cosine
// distance, ascending.
func (b *ComputedBackend) QueryNearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error) {
	if err := checkDimension(b.establishedDimension(), len(embedding)); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT k.external_id, v.embedding
		FROM fallback_vectors v
		JOIN vector_keys k ON k.internal_id = v.internal_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: scan vectors: %v", types.ErrIO, err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var externalID string
		var blob []byte
		if err := rows.Scan(&externalID, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan vector row: %v", types.ErrIO, err)
		}
		stored := DeserializeVector(blob)
		if len(stored) != len(embedding) {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			ExternalID: externalID,
			Distance:   CosineDistance(embedding, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate vectors: %v", types.ErrIO, err)
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// Count returns the number of stored vectors.
func (b *ComputedBackend) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fallback_vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count vectors: %v", types.ErrIO, err)
	}
	return n, nil
}
