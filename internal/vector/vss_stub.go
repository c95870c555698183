//go:build !sqlite_vec
// +build !sqlite_vec

package vector

import (
	"context"
	"fmt"

	"symdex/pkg/types"
)

// NewVSSBackend is unavailable without the cgo driver; the selector falls
// through to the computed backend.
func NewVSSBackend(_ context.Context, _ string, _ *KeyMap) (Backend, error) {
	return nil, fmt.Errorf("%w: sqlite-vss requires a cgo build (-tags sqlite_vec)", types.ErrBackendUnavailable)
}
