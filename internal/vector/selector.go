package vector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"runtime"

	"symdex/pkg/types"
)

// selfTestID is the sentinel external id inserted, queried and removed by
// the backend self-test. It never collides with chunk UIDs, which are
// generated UUIDs.
const selfTestID = "__symdex_selftest__"

// probeOrder is the platform-aware candidate list, best-first. The computed
// fallback is appended by Select and never listed here.
func probeOrder(goos string) []Kind {
	if goos == "darwin" {
		return []Kind{KindVec, KindVSS}
	}
	return []Kind{KindVSS, KindVec}
}

// Select probes vector backends in platform order and returns the first one
// that constructs, establishes a table at the given dimension, and passes a
// write-query-delete self-test. The computed fallback is the last candidate
// and always succeeds, so Select only fails on real database errors.
//
// override, when non-empty, restricts the native probe to a single kind;
// "computed" skips the native probe entirely.
func Select(ctx context.Context, db *sql.DB, dbPath string, keys *KeyMap, dimension int, override string, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", types.ErrDimensionMismatch, dimension)
	}

	candidates := probeOrder(runtime.GOOS)
	if override != "" {
		switch Kind(override) {
		case KindComputed:
			candidates = nil
		case KindVec, KindVSS:
			candidates = []Kind{Kind(override)}
		default:
			return nil, fmt.Errorf("%w: unknown backend override %q", types.ErrBackendUnavailable, override)
		}
	}

	for _, kind := range candidates {
		backend, err := newNativeBackend(ctx, kind, db, dbPath, keys)
		if err != nil {
			logger.Debug("vector backend unavailable", "kind", kind, "error", err)
			continue
		}
		if err := selfTest(ctx, backend, dimension); err != nil {
			logger.Warn("vector backend failed self-test", "kind", kind, "error", err)
			continue
		}
		logger.Info("vector backend selected", "kind", kind, "dimension", dimension)
		return backend, nil
	}

	fallback := NewComputedBackend(db, keys)
	if err := selfTest(ctx, fallback, dimension); err != nil {
		return nil, fmt.Errorf("computed fallback self-test: %w", err)
	}
	logger.Info("vector backend selected", "kind", KindComputed, "dimension", dimension)
	return fallback, nil
}

func newNativeBackend(ctx context.Context, kind Kind, db *sql.DB, dbPath string, keys *KeyMap) (Backend, error) {
	switch kind {
	case KindVec:
		return NewVecBackend(ctx, db, keys)
	case KindVSS:
		return NewVSSBackend(ctx, dbPath, keys)
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrBackendUnavailable, kind)
	}
}

// selfTest proves a backend can round-trip at the working dimension: insert
// a sentinel vector, find it as the nearest neighbor of itself, and remove
// it. The sentinel is cleaned up on every path.
func selfTest(ctx context.Context, b Backend, dimension int) error {
	if err := b.EnsureTable(ctx, dimension); err != nil {
		return err
	}

	probe := make([]float32, dimension)
	for i := range probe {
		probe[i] = float32(i%7) + 1
	}

	before, err := b.Count(ctx)
	if err != nil {
		return fmt.Errorf("self-test count: %w", err)
	}

	if err := b.Upsert(ctx, selfTestID, probe); err != nil {
		return fmt.Errorf("self-test upsert: %w", err)
	}
	defer b.Delete(ctx, selfTestID)

	after, err := b.Count(ctx)
	if err != nil {
		return fmt.Errorf("self-test count: %w", err)
	}
	if after != before+1 {
		return fmt.Errorf("%w: self-test upsert did not grow the record count", types.ErrBackendUnavailable)
	}

	// k > 1 tolerates pre-existing vectors that tie with the sentinel.
	neighbors, err := b.QueryNearest(ctx, probe, 3)
	if err != nil {
		return fmt.Errorf("self-test query: %w", err)
	}
	for _, n := range neighbors {
		if n.ExternalID == selfTestID {
			return nil
		}
	}
	return fmt.Errorf("%w: self-test query did not return the sentinel", types.ErrBackendUnavailable)
}
