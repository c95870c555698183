//go:build !sqlite_vec
// +build !sqlite_vec

package vector

import (
	"context"
	"database/sql"
	"fmt"

	"symdex/pkg/types"
)

// NewVecBackend is unavailable without the cgo driver; the selector falls
// through to the computed backend.
func NewVecBackend(_ context.Context, _ *sql.DB, _ *KeyMap) (Backend, error) {
	return nil, fmt.Errorf("%w: sqlite-vec requires a cgo build (-tags sqlite_vec)", types.ErrBackendUnavailable)
}
