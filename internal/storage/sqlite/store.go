// Package sqlite implements a storage.Backend that stores a document's
// full and incremental save blobs as rows in a SQLite database instead
// of flat files, using github.com/mattn/go-sqlite3.
//
// Grounded on the teacher's internal/storage/sqlite connection setup
// (sql.Open("sqlite3", ...), busy_timeout/foreign_keys pragmas via
// storage.SQLiteConnString, sentinel-error wrapping via errors.go's
// wrapDBError) and, since no teacher package itself needed a second
// storage backend, on the rest of the retrieval pack's precedent for
// a SQL-blob-store table shape.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/localfirst/crdtdoc/internal/export"
	"github.com/localfirst/crdtdoc/internal/storage"
)

var _ storage.Backend = (*Store)(nil)

// Store is a storage.Backend backed by a single SQLite database file
// holding every document's blobs, keyed by document name.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", storage.SQLiteConnString(path, false))
	if err != nil {
		return nil, wrapDBError("open database", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, wrapDBError("ping database", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS document_blobs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_name    TEXT NOT NULL,
	kind        TEXT NOT NULL CHECK (kind IN ('full', 'increment')),
	seq         INTEGER NOT NULL,
	blob        BLOB NOT NULL,
	manifest    TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_document_blobs_lookup ON document_blobs (doc_name, kind, seq);
`
	if _, err := db.Exec(schema); err != nil {
		return wrapDBError("create schema", err)
	}
	return nil
}

// SaveFull inserts blob as name's full save and deletes any increments
// recorded before it, in one transaction.
func (s *Store) SaveFull(ctx context.Context, name string, blob []byte, manifest *export.Manifest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_blobs WHERE doc_name = ?`, name); err != nil {
		return wrapDBError("clear prior blobs", err)
	}
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO document_blobs (doc_name, kind, seq, blob, manifest) VALUES (?, 'full', 0, ?, ?)`,
		name, blob, manifestJSON); err != nil {
		return wrapDBError("insert full blob", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapDBError("commit transaction", err)
	}
	return nil
}

// AppendIncremental inserts blob as the next increment for name.
func (s *Store) AppendIncremental(ctx context.Context, name string, blob []byte, manifest *export.Manifest) error {
	var nextSeq int
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM document_blobs WHERE doc_name = ? AND kind = 'increment'`, name)
	if err := row.Scan(&nextSeq); err != nil {
		return wrapDBError("compute next sequence", err)
	}
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO document_blobs (doc_name, kind, seq, blob, manifest) VALUES (?, 'increment', ?, ?, ?)`,
		name, nextSeq, blob, manifestJSON); err != nil {
		return wrapDBError("insert increment", err)
	}
	return nil
}

// LoadFull returns name's most recently saved full blob.
func (s *Store) LoadFull(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT blob FROM document_blobs WHERE doc_name = ? AND kind = 'full' ORDER BY id DESC LIMIT 1`, name)
	if err := row.Scan(&blob); err != nil {
		return nil, wrapDBErrorf(err, "load full blob for %s", name)
	}
	return blob, nil
}

// LoadIncrements returns every increment for name since the full save,
// oldest first.
func (s *Store) LoadIncrements(ctx context.Context, name string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT blob FROM document_blobs WHERE doc_name = ? AND kind = 'increment' ORDER BY seq ASC`, name)
	if err != nil {
		return nil, wrapDBError("query increments", err)
	}
	defer func() { _ = rows.Close() }()

	var blobs [][]byte
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, wrapDBError("scan increment", err)
		}
		blobs = append(blobs, blob)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate increments", err)
	}
	return blobs, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return wrapDBError("close database", err)
	}
	return nil
}
