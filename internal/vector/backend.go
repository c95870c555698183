// Package vector stores and queries chunk embeddings. Three backends share
// one contract: two native SQLite extensions (sqlite-vec and sqlite-vss) and
// a computed fallback that scans blob vectors in Go. A selector probes them
// in platform order and self-tests the winner before use.
package vector

import (
	"context"
	"fmt"

	"symdex/pkg/types"
)

// Kind identifies a vector backend implementation.
type Kind string

const (
	// KindVec is the sqlite-vec extension backend.
	KindVec Kind = "vec"
	// KindVSS is the sqlite-vss extension backend.
	KindVSS Kind = "vss"
	// KindComputed is the pure-Go cosine scan over blob vectors.
	KindComputed Kind = "computed"
)

// Neighbor is one nearest-neighbor hit. Distance is cosine distance: lower
// is closer, zero is identical direction.
type Neighbor struct {
	ExternalID string
	Distance   float64
}

// Backend stores embeddings keyed by external chunk UID. Implementations
// translate UIDs to internal integer rowids through the shared KeyMap.
//
// Dimension discipline: the first EnsureTable call fixes the table dimension;
// any write or query whose vector length differs fails with
// ErrDimensionMismatch and leaves no partial state.
type Backend interface {
	Kind() Kind
	EnsureTable(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, externalID string, embedding []float32) error
	Delete(ctx context.Context, externalID string) error
	QueryNearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error)
	Count(ctx context.Context) (int64, error)
}

// checkDimension enforces the fixed-dimension invariant shared by all
// backends.
func checkDimension(established, got int) error {
	if established == 0 {
		return fmt.Errorf("%w: table dimension not established", types.ErrBackendUnavailable)
	}
	if got != established {
		return fmt.Errorf("%w: got %d, table requires %d", types.ErrDimensionMismatch, got, established)
	}
	return nil
}
