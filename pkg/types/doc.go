// Package types provides the shared domain types for the symdex indexing
// and search engine: symbols, chunks, extraction results, search results,
// and the error taxonomy that marks recovery boundaries between tiers.
//
// A Symbol is a named syntactic unit with a 0-based line span and a byte
// span. A Chunk is the indexable unit: symbol-bounded when extraction
// succeeded, a fixed-size line window otherwise. Chunks carry a UID that is
// the external identifier across the lexical index, the vector backend and
// the key-mapping table.
package types
