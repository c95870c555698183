package types

import "errors"

// Error taxonomy shared across the engine. Each sentinel marks a recovery
// boundary: parse failures trigger the next extraction tier, backend
// unavailability triggers selector fallback or lexical-only search, and only
// exhausted-fallback conditions surface to the caller.
var (
	// ErrParseFailure marks a syntax-tree parse that could not produce
	// symbols; callers fall through to the next extraction tier.
	ErrParseFailure = errors.New("parse failure")

	// ErrDimensionMismatch is returned when a vector's length does not
	// match the established table dimension. Fatal for the offending call,
	// never for the backend; no partial write occurs.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrBackendUnavailable marks a vector backend that failed to load or
	// failed its self-test.
	ErrBackendUnavailable = errors.New("vector backend unavailable")

	// ErrQuerySyntax is surfaced after a lexical query failed once raw and
	// once more after sanitization.
	ErrQuerySyntax = errors.New("query syntax error")

	// ErrNotIndexed is returned for operations against a path that has no
	// indexed snapshot.
	ErrNotIndexed = errors.New("file not indexed")

	// ErrIO wraps filesystem and database failures.
	ErrIO = errors.New("io error")

	// ErrOrphanData marks vector records whose chunk no longer exists. Never
	// fatal; orphans are reported and purged out of band.
	ErrOrphanData = errors.New("orphaned vector data")
)
