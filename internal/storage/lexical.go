package storage

import (
	"context"
	"fmt"
	"strings"

	"symdex/pkg/types"
)

// LexicalHit is one full-text match, ordered best-first by bm25. Rank is the
// zero-based position within the result page.
type LexicalHit struct {
	UID       string
	Path      string
	Name      string
	Kind      string
	Snippet   string
	StartLine int
	EndLine   int
	Rank      int
	BM25      float64
}

// SearchLexical runs an FTS5 query over chunk names, docstrings and bodies.
// The query string is passed to FTS5 verbatim; malformed operator syntax is
// reported as ErrQuerySyntax so the caller can sanitize and retry.
func (s *Store) SearchLexical(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.uid, f.path, c.name, c.kind,
		       snippet(chunks_fts, 2, '', '', ' … ', 16),
		       c.start_line, c.end_line, bm25(chunks_fts)
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		JOIN files f ON f.id = c.file_id
		WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts)
		LIMIT ?`, query, limit)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", types.ErrQuerySyntax, err)
		}
		return nil, fmt.Errorf("%w: lexical search: %v", types.ErrIO, err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.UID, &h.Path, &h.Name, &h.Kind, &h.Snippet,
			&h.StartLine, &h.EndLine, &h.BM25); err != nil {
			return nil, fmt.Errorf("%w: scan lexical hit: %v", types.ErrIO, err)
		}
		h.Rank = len(hits)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		if isFTSSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", types.ErrQuerySyntax, err)
		}
		return nil, fmt.Errorf("%w: lexical search: %v", types.ErrIO, err)
	}
	return hits, nil
}

// isFTSSyntaxError distinguishes malformed query syntax from real storage
// failures. Both bundled drivers surface FTS5 parse problems as plain error
// strings.
func isFTSSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "syntax error near") ||
		strings.Contains(msg, "unterminated string") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "unknown special query")
}
