// Package storage defines the pluggable persistence backend a document
// store can be saved to and loaded from, plus the SQLite connection
// string helper shared by the sqlite backend.
//
// Grounded on the teacher's internal/storage.Storage interface shape (a
// narrow interface in the parent package, concrete backends in
// subpackages): here the interface is narrowed from full issue-tracker
// CRUD down to the two operations spec §6 actually names at the
// persistence boundary — a full blob and an appended incremental blob —
// since this core only owns save/load, not a query surface of its own.
package storage

import (
	"context"

	"github.com/localfirst/crdtdoc/internal/export"
)

// Backend persists and retrieves the opaque byte blobs produced by
// document.Save / document.SaveIncremental (spec §6 "Persisted state
// layout"), independent of which medium backs a given document.
type Backend interface {
	// SaveFull writes blob as the document's full save, replacing any
	// prior full save and any incremental blobs recorded after it.
	SaveFull(ctx context.Context, name string, blob []byte, manifest *export.Manifest) error

	// AppendIncremental appends blob as one SaveIncremental call's
	// output, after the most recent full save.
	AppendIncremental(ctx context.Context, name string, blob []byte, manifest *export.Manifest) error

	// LoadFull returns the most recently saved full blob for name.
	LoadFull(ctx context.Context, name string) ([]byte, error)

	// LoadIncrements returns every incremental blob recorded since the
	// most recent full save, oldest first.
	LoadIncrements(ctx context.Context, name string) ([][]byte, error)

	// Close releases any resources (open files, database handles) the
	// backend holds.
	Close() error
}
