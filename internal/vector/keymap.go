package vector

import (
	"context"
	"database/sql"
	"fmt"

	"symdex/pkg/types"
)

// KeyMap translates external chunk UIDs to the monotonically increasing
// integer rowids the vector tables key on. A UID maps to the same internal
// id for as long as it exists; removing and re-adding a UID may assign a new
// id. Safe for concurrent use; uniqueness is enforced by the database.
type KeyMap struct {
	db *sql.DB
}

// NewKeyMap wraps the given database, which must carry the vector_keys table
// from the storage migrations.
func NewKeyMap(db *sql.DB) *KeyMap {
	return &KeyMap{db: db}
}

// querier is the statement surface shared by *sql.DB and *sql.Tx, so a
// backend can run key allocation inside its own replace transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetOrCreate returns the internal id for externalID, allocating one on
// first sight.
func (m *KeyMap) GetOrCreate(ctx context.Context, externalID string) (int64, error) {
	return m.getOrCreate(ctx, m.db, externalID)
}

func (m *KeyMap) getOrCreate(ctx context.Context, q querier, externalID string) (int64, error) {
	if externalID == "" {
		return 0, fmt.Errorf("%w: empty external id", types.ErrIO)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO vector_keys (external_id) VALUES (?)`, externalID); err != nil {
		return 0, fmt.Errorf("%w: allocate key for %s: %v", types.ErrIO, externalID, err)
	}
	var id int64
	if err := q.QueryRowContext(ctx,
		`SELECT internal_id FROM vector_keys WHERE external_id = ?`, externalID).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: lookup key for %s: %v", types.ErrIO, externalID, err)
	}
	return id, nil
}

// Lookup returns the internal id for externalID, or ok=false if unmapped.
func (m *KeyMap) Lookup(ctx context.Context, externalID string) (int64, bool, error) {
	var id int64
	err := m.db.QueryRowContext(ctx,
		`SELECT internal_id FROM vector_keys WHERE external_id = ?`, externalID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: lookup key for %s: %v", types.ErrIO, externalID, err)
	}
	return id, true, nil
}

// ExternalID resolves an internal id back to its UID.
func (m *KeyMap) ExternalID(ctx context.Context, internalID int64) (string, error) {
	var ext string
	err := m.db.QueryRowContext(ctx,
		`SELECT external_id FROM vector_keys WHERE internal_id = ?`, internalID).Scan(&ext)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: internal id %d", types.ErrOrphanData, internalID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: reverse lookup %d: %v", types.ErrIO, internalID, err)
	}
	return ext, nil
}

// Delete drops the mapping for externalID, returning the internal id it
// held. Deleting an unmapped UID is a no-op with ok=false.
func (m *KeyMap) Delete(ctx context.Context, externalID string) (int64, bool, error) {
	return m.delete(ctx, m.db, externalID)
}

func (m *KeyMap) delete(ctx context.Context, q querier, externalID string) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT internal_id FROM vector_keys WHERE external_id = ?`, externalID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: lookup key for %s: %v", types.ErrIO, externalID, err)
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM vector_keys WHERE external_id = ?`, externalID); err != nil {
		return 0, false, fmt.Errorf("%w: delete key %s: %v", types.ErrIO, externalID, err)
	}
	return id, true, nil
}
