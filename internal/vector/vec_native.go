//go:build sqlite_vec
// +build sqlite_vec

package vector

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"symdex/pkg/types"
)

var vecRegisterOnce sync.Once

// VecBackend stores embeddings in a sqlite-vec vec0 virtual table, keyed by
// the KeyMap's internal ids. Requires the cgo driver.
type VecBackend struct {
	db   *sql.DB
	keys *KeyMap

	mu        sync.Mutex
	dimension int
}

// NewVecBackend probes the sqlite-vec extension on the shared database and
// returns ErrBackendUnavailable if it cannot answer vec_version().
func NewVecBackend(ctx context.Context, db *sql.DB, keys *KeyMap) (*VecBackend, error) {
	vecRegisterOnce.Do(sqlite_vec.Auto)

	var version string
	if err := db.QueryRowContext(ctx, `SELECT vec_version()`).Scan(&version); err != nil {
		return nil, fmt.Errorf("%w: sqlite-vec: %v", types.ErrBackendUnavailable, err)
	}
	return &VecBackend{db: db, keys: keys}, nil
}

// Kind reports KindVec.
func (b *VecBackend) Kind() Kind { return KindVec }

// EnsureTable creates the vec0 virtual table at the given dimension. The
// first call fixes the dimension; later calls are no-ops even with another
// dimension, and the mismatch surfaces on the next upsert or query.
func (b *VecBackend) EnsureTable(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", types.ErrDimensionMismatch, dimension)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dimension != 0 {
		return nil
	}

	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(
		internal_id INTEGER PRIMARY KEY,
		embedding float[%d]
	)`, dimension)
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: create vec0 table: %v", types.ErrBackendUnavailable, err)
	}
	b.dimension = dimension
	return nil
}

func (b *VecBackend) establishedDimension() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dimension
}

// Upsert writes or replaces the embedding for externalID. The key allocation
// and the delete-then-insert replace commit as one transaction, so a failure
// mid-replace never loses the previously stored vector.
func (b *VecBackend) Upsert(ctx context.Context, externalID string, embedding []float32) error {
	if err := checkDimension(b.establishedDimension(), len(embedding)); err != nil {
		return err
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("%w: serialize embedding: %v", types.ErrIO, err)
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
	// vec0 virtual tables reject ON CONFLICT; delete then insert.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vec_embeddings WHERE internal_id = ?`, id); err != nil {
		return fmt.Errorf("%w: replace vector %s: %v", types.ErrIO, externalID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vec_embeddings (internal_id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return fmt.Errorf("%w: insert vector %s: %v", types.ErrIO, externalID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit upsert %s: %v", types.ErrIO, externalID, err)
	}
	return nil
}

// Delete removes the embedding and key mapping for externalID in one
// transaction.
func (b *VecBackend) Delete(ctx context.Context, externalID string) error {
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
		`DELETE FROM vec_embeddings WHERE internal_id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete vector %s: %v", types.ErrIO, externalID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete %s: %v", types.ErrIO, externalID, err)
	}
	return nil
}

// QueryNearest returns the k nearest stored vectors by cosine distance.
func (b *VecBackend) QueryNearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error) {
	if err := checkDimension(b.establishedDimension(), len(embedding)); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: serialize query embedding: %v", types.ErrIO, err)
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT k.external_id, v.distance
		FROM vec_embeddings v
		JOIN vector_keys k ON k.internal_id = v.internal_id
		WHERE v.embedding MATCH ?
		ORDER BY v.distance
		LIMIT ?`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("%w: vec query: %v", types.ErrIO, err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.ExternalID, &n.Distance); err != nil {
			return nil, fmt.Errorf("%w: scan neighbor: %v", types.ErrIO, err)
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

// Count returns the number of stored vectors.
func (b *VecBackend) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vec_embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count vectors: %v", types.ErrIO, err)
	}
	return n, nil
}
