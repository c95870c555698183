// Package storage persists indexed files and chunks in SQLite, with an FTS5
// table for lexical search and a key-mapping table shared by the vector
// backends. One database file holds everything so re-indexing a file is a
// single transaction.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"symdex/pkg/types"
)

// File is one indexed file snapshot.
type File struct {
	ID          int64
	Path        string
	Language    string
	Digest      string
	Mode        types.ParseMode
	SymbolCount int
	IndexedAt   time.Time
}

// FileIndex is the write-side payload for one file: metadata plus the full
// chunk set that replaces whatever was indexed before.
type FileIndex struct {
	Path        string
	Language    string
	Digest      string
	Mode        types.ParseMode
	SymbolCount int
	Chunks      []types.Chunk
}

// Store wraps the SQLite database. Safe for concurrent use; the connection
// pool is capped at one writer because SQLite serializes writes anyway.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for an in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database %s: %v", types.ErrIO, path, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", types.ErrIO, p, err)
		}
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	logger.Debug("database opened", "path", path, "driver", DriverName, "schema", CurrentSchemaVersion)
	return &Store{db: db, path: path, logger: logger}, nil
}

// DB exposes the underlying handle so vector backends can share the same
// database file and key-mapping table.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// GetFile returns the indexed snapshot for path, or ErrNotIndexed.
func (s *Store) GetFile(ctx context.Context, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, path, language, digest, mode, symbol_count, indexed_at FROM files WHERE path = ?`, path)
	var f File
	var mode string
	if err := row.Scan(&f.ID, &f.Path, &f.Language, &f.Digest, &mode, &f.SymbolCount, &f.IndexedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", types.ErrNotIndexed, path)
		}
		return nil, fmt.Errorf("%w: get file %s: %v", types.ErrIO, path, err)
	}
	f.Mode = types.ParseMode(mode)
	return &f, nil
}

// ListFiles returns all indexed files ordered by path.
func (s *Store) ListFiles(ctx context.Context) ([]File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, language, digest, mode, symbol_count, indexed_at FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %v", types.ErrIO, err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		var mode string
		if err := rows.Scan(&f.ID, &f.Path, &f.Language, &f.Digest, &mode, &f.SymbolCount, &f.IndexedAt); err != nil {
			return nil, fmt.Errorf("%w: scan file: %v", types.ErrIO, err)
		}
		f.Mode = types.ParseMode(mode)
		files = append(files, f)
	}
	return files, rows.Err()
}

// ReplaceFileIndex atomically replaces the indexed snapshot of one file:
// old chunks are deleted, the file row is rewritten, and the new chunk set is
// inserted in a single transaction. It returns the UIDs of the replaced
// chunks so the caller can purge their vectors.
func (s *Store) ReplaceFileIndex(ctx context.Context, fi *FileIndex) (removedUIDs []string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", types.ErrIO, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	removedUIDs, err = deleteFileTx(ctx, tx, fi.Path)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO files (path, language, digest, mode, symbol_count) VALUES (?, ?, ?, ?, ?)`,
		fi.Path, fi.Language, fi.Digest, string(fi.Mode), fi.SymbolCount)
	if err != nil {
		return nil, fmt.Errorf("%w: insert file %s: %v", types.ErrIO, fi.Path, err)
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: file id: %v", types.ErrIO, err)
	}

	for i := range fi.Chunks {
		if err := insertChunkTx(ctx, tx, fileID, &fi.Chunks[i]); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", types.ErrIO, err)
	}
	return removedUIDs, nil
}

// DeleteFile removes a file and all of its chunks, returning the removed
// chunk UIDs. Deleting a file that was never indexed returns ErrNotIndexed.
func (s *Store) DeleteFile(ctx context.Context, path string) (removedUIDs []string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", types.ErrIO, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var fileID int64
	if err = tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&fileID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", types.ErrNotIndexed, path)
		}
		return nil, fmt.Errorf("%w: lookup file %s: %v", types.ErrIO, path, err)
	}

	removedUIDs, err = deleteFileTx(ctx, tx, path)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", types.ErrIO, err)
	}
	return removedUIDs, nil
}

// deleteFileTx removes a file row and its chunks inside an open transaction,
// returning the removed chunk UIDs. Chunks are deleted explicitly so the FTS
// sync triggers fire.
func deleteFileTx(ctx context.Context, tx *sql.Tx, path string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT c.uid FROM chunks c JOIN files f ON f.id = c.file_id WHERE f.path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunk uids for %s: %v", types.ErrIO, path, err)
	}
	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan uid: %v", types.ErrIO, err)
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%w: iterate uids: %v", types.ErrIO, err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE file_id IN (SELECT id FROM files WHERE path = ?)`, path); err != nil {
		return nil, fmt.Errorf("%w: delete chunks for %s: %v", types.ErrIO, path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return nil, fmt.Errorf("%w: delete file %s: %v", types.ErrIO, path, err)
	}
	return uids, nil
}

func insertChunkTx(ctx context.Context, tx *sql.Tx, fileID int64, c *types.Chunk) error {
	var name, kind, parent, signature, docstring string
	var startByte, endByte int
	if c.Symbol != nil {
		name = c.Symbol.Name
		kind = string(c.Symbol.Kind)
		parent = c.Symbol.Parent
		signature = c.Symbol.Signature
		docstring = c.Symbol.Docstring
		startByte = c.Symbol.StartByte
		endByte = c.Symbol.EndByte
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (uid, file_id, name, kind, parent, signature, docstring, body,
			tags, mode, start_line, end_line, start_byte, end_byte)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UID, fileID, name, kind, parent, signature, docstring, c.Text,
		strings.Join(c.Tags, " "), string(c.Mode), c.StartLine, c.EndLine, startByte, endByte)
	if err != nil {
		return fmt.Errorf("%w: insert chunk %s: %v", types.ErrIO, c.UID, err)
	}
	return nil
}

const chunkColumns = `c.uid, f.path, c.name, c.kind, c.parent, c.signature, c.docstring,
	c.body, c.tags, c.mode, c.start_line, c.end_line, c.start_byte, c.end_byte`

func scanChunk(scanner interface{ Scan(...any) error }) (*types.Chunk, error) {
	var c types.Chunk
	var name, kind, parent, signature, docstring, tags, mode string
	var startByte, endByte int
	err := scanner.Scan(&c.UID, &c.Path, &name, &kind, &parent, &signature, &docstring,
		&c.Text, &tags, &mode, &c.StartLine, &c.EndLine, &startByte, &endByte)
	if err != nil {
		return nil, err
	}
	c.Mode = types.ParseMode(mode)
	if tags != "" {
		c.Tags = strings.Split(tags, " ")
	}
	if name != "" && kind != "" {
		c.Symbol = &types.Symbol{
			Name:      name,
			Kind:      types.SymbolKind(kind),
			Parent:    parent,
			Signature: signature,
			Docstring: docstring,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			StartByte: startByte,
			EndByte:   endByte,
		}
	}
	return &c, nil
}

// GetChunkByUID returns one chunk by its external UID.
func (s *Store) GetChunkByUID(ctx context.Context, uid string) (*types.Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks c JOIN files f ON f.id = c.file_id WHERE c.uid = ?`, uid)
	c, err := scanChunk(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: chunk %s", types.ErrNotIndexed, uid)
		}
		return nil, fmt.Errorf("%w: get chunk %s: %v", types.ErrIO, uid, err)
	}
	return c, nil
}

// ListChunksByFile returns a file's chunks ordered by start line.
func (s *Store) ListChunksByFile(ctx context.Context, path string) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks c JOIN files f ON f.id = c.file_id
		 WHERE f.path = ? ORDER BY c.start_line`, path)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks for %s: %v", types.ErrIO, path, err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", types.ErrIO, err)
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// ListSymbolsByFile returns the symbols recorded for a file, ordered by
// start line. Window chunks carry no symbol and are skipped.
func (s *Store) ListSymbolsByFile(ctx context.Context, path string) ([]types.Symbol, error) {
	chunks, err := s.ListChunksByFile(ctx, path)
	if err != nil {
		return nil, err
	}
	symbols := make([]types.Symbol, 0, len(chunks))
	for i := range chunks {
		if chunks[i].Symbol != nil {
			symbols = append(symbols, *chunks[i].Symbol)
		}
	}
	return symbols, nil
}

// CountChunks returns the total number of indexed chunks.
func (s *Store) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count chunks: %v", types.ErrIO, err)
	}
	return n, nil
}

// ListOrphanVectorKeys returns external ids present in the key mapping but
// absent from the chunk index. Orphans indicate an interrupted removal and
// are safe to purge.
func (s *Store) ListOrphanVectorKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id FROM vector_keys
		WHERE external_id NOT IN (SELECT uid FROM chunks)
		ORDER BY external_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list orphan vector keys: %v", types.ErrIO, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan orphan key: %v", types.ErrIO, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
