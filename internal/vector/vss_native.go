//go:build sqlite_vec
// +build sqlite_vec

package vector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/mattn/go-sqlite3"

	"symdex/pkg/types"
)

const vssDriverName = "sqlite3_vss"

var vssRegisterOnce sync.Once

// vssSearchPaths are probed, in order, for the sqlite-vss loadable
// extensions (vector0 and vss0).
func vssSearchPaths() []string {
	paths := []string{"/usr/local/lib", "/usr/lib", "/opt/homebrew/lib"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".symdex", "lib"))
	}
	return paths
}

func sharedLibExt() string {
	if runtime.GOOS == "darwin" {
		return ".dylib"
	}
	return ".so"
}

// findVSSExtensions locates the vector0 and vss0 shared libraries, which
// must both load for vss0 virtual tables to work.
func findVSSExtensions() (vector0, vss0 string, err error) {
	ext := sharedLibExt()
	for _, dir := range vssSearchPaths() {
		v0 := filepath.Join(dir, "vector0"+ext)
		s0 := filepath.Join(dir, "vss0"+ext)
		if fileExists(v0) && fileExists(s0) {
			return v0, s0, nil
		}
	}
	return "", "", fmt.Errorf("%w: sqlite-vss extensions not found in %v",
		types.ErrBackendUnavailable, vssSearchPaths())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// VSSBackend stores embeddings in a sqlite-vss vss0 virtual table. The
// extension is loaded through a dedicated driver registration, so the
// backend holds its own connection to the shared database file.
type VSSBackend struct {
	db   *sql.DB // extension-enabled handle
	keys *KeyMap

	mu        sync.Mutex
	dimension int
}

// NewVSSBackend probes for the sqlite-vss loadable extensions and opens an
// extension-enabled connection to dbPath. Returns ErrBackendUnavailable when
// the extensions are missing or fail to answer vss_version().
func NewVSSBackend(ctx context.Context, dbPath string, keys *KeyMap) (*VSSBackend, error) {
	vector0, vss0, err := findVSSExtensions()
	if err != nil {
		return nil, err
	}

	vssRegisterOnce.Do(func() {
		sql.Register(vssDriverName, &sqlite3.SQLiteDriver{
			Extensions: []string{vector0, vss0},
		})
	})

	db, err := sql.Open(vssDriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open vss connection: %v", types.ErrBackendUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	var version string
	if err := db.QueryRowContext(ctx, `SELECT vss_version()`).Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite-vss: %v", types.ErrBackendUnavailable, err)
	}
	return &VSSBackend{db: db, keys: keys}, nil
}

// Kind reports KindVSS.
func (b *VSSBackend) Kind() Kind { return KindVSS }

// Close releases the extension-enabled connection.
func (b *VSSBackend) Close() error { return b.db.Close() }

// EnsureTable creates the vss0 virtual table at the given dimension. The
// first call fixes the dimension; later calls are no-ops even with another
// dimension, and the mismatch surfaces on the next upsert or query.
func (b *VSSBackend) EnsureTable(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", types.ErrDimensionMismatch, dimension)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dimension != 0 {
		return nil
	}

	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vss_embeddings USING vss0(embedding(%d))`, dimension)
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: create vss0 table: %v", types.ErrBackendUnavailable, err)
	}
	b.dimension = dimension
	return nil
}

func (b *VSSBackend) establishedDimension() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dimension
}

// Upsert writes or replaces the embedding for externalID. The key allocation
// and rowid replace commit as one transaction on the extension-enabled
// handle, which sees the same database file as the key map.
func (b *VSSBackend) Upsert(ctx context.Context, externalID string, embedding []float32) error {
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
	// vss0 tables are rowid-keyed and reject updates; delete then insert.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vss_embeddings WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("%w: replace vector %s: %v", types.ErrIO, externalID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vss_embeddings (rowid, embedding) VALUES (?, ?)`,
		id, SerializeVector(embedding)); err != nil {
		return fmt.Errorf("%w: insert vector %s: %v", types.ErrIO, externalID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit upsert %s: %v", types.ErrIO, externalID, err)
	}
	return nil
}

// Delete removes the embedding and key mapping for externalID in one
// transaction.
func (b *VSSBackend) Delete(ctx context.Context, externalID string) error {
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
		`DELETE FROM vss_embeddings WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("%w: delete vector %s: %v", types.ErrIO, externalID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete %s: %v", types.ErrIO, externalID, err)
	}
	return nil
}

// QueryNearest returns the k nearest stored vectors, ascending by distance.
// sqlite-vss reports squared L2 distance; lower is still closer.
func (b *VSSBackend) QueryNearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error) {
	if err := checkDimension(b.establishedDimension(), len(embedding)); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT k.external_id, v.distance
		FROM vss_embeddings v
		JOIN vector_keys k ON k.internal_id = v.rowid
		WHERE vss_search(v.embedding, ?)
		LIMIT ?`, SerializeVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("%w: vss query: %v", types.ErrIO, err)
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
func (b *VSSBackend) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vss_embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count vectors: %v", types.ErrIO, err)
	}
	return n, nil
}
