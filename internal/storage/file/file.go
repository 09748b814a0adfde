// Package file implements the default flat-file storage.Backend: one
// directory per document, a full-save blob, a numbered sequence of
// incremental blobs, and a JSON manifest beside each (internal/export),
// all writes guarded by an exclusive internal/lockfile flock so two
// processes never interleave a save.
//
// Grounded on the teacher's export-then-manifest write pattern
// (internal/export) and its advisory-lock-guarded single-writer model
// (internal/lockfile, adapted from the teacher's daemon lock), combined
// into the one flat-file backend SPEC_FULL.md names.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/localfirst/crdtdoc/internal/export"
	"github.com/localfirst/crdtdoc/internal/lockfile"
	"github.com/localfirst/crdtdoc/internal/storage"
)

var _ storage.Backend = (*Store)(nil)

const (
	fullBlobName  = "full.bin"
	incrementsDir = "increments"
	lockName      = ".lock"
)

// Store is a storage.Backend rooted at a directory; each document name
// gets its own subdirectory.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating it if necessary.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) docDir(name string) string { return filepath.Join(s.root, name) }

// withLock acquires an exclusive, blocking lock on name's lock file for
// the duration of f (spec §5 "Shared-resource policy"). SaveFull and
// AppendIncremental run under it; LoadFull and LoadIncrements read
// without taking the lock.
func (s *Store) withLock(name string, f func(dir string) error) error {
	dir := s.docDir(name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	lockPath := filepath.Join(dir, lockName)
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600) // #nosec G304 - path built from storage root + name
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lf.Close() }()

	if err := lockfile.FlockExclusiveBlocking(lf); err != nil {
		return fmt.Errorf("lock document: %w", err)
	}
	defer func() { _ = lockfile.FlockUnlock(lf) }()

	return f(dir)
}

// SaveFull writes blob as the full save, truncating any previously
// recorded increments (spec §6: a fresh full save supersedes them).
func (s *Store) SaveFull(_ context.Context, name string, blob []byte, manifest *export.Manifest) error {
	return s.withLock(name, func(dir string) error {
		if err := os.RemoveAll(filepath.Join(dir, incrementsDir)); err != nil {
			return fmt.Errorf("clear increments: %w", err)
		}
		path := filepath.Join(dir, fullBlobName)
		if err := atomicWrite(path, blob); err != nil {
			return err
		}
		manifest.Incremental = false
		return export.WriteManifest(path, manifest)
	})
}

// AppendIncremental writes blob as the next increment in sequence.
func (s *Store) AppendIncremental(_ context.Context, name string, blob []byte, manifest *export.Manifest) error {
	return s.withLock(name, func(dir string) error {
		incDir := filepath.Join(dir, incrementsDir)
		if err := os.MkdirAll(incDir, 0o700); err != nil {
			return fmt.Errorf("create increments dir: %w", err)
		}
		n, err := nextIncrementSeq(incDir)
		if err != nil {
			return err
		}
		path := filepath.Join(incDir, fmt.Sprintf("%06d.bin", n))
		if err := atomicWrite(path, blob); err != nil {
			return err
		}
		manifest.Incremental = true
		return export.WriteManifest(path, manifest)
	})
}

// LoadFull returns the document's full saved blob.
func (s *Store) LoadFull(_ context.Context, name string) ([]byte, error) {
	path := filepath.Join(s.docDir(name), fullBlobName)
	data, err := os.ReadFile(path) // #nosec G304 - path built from storage root + name
	if err != nil {
		return nil, fmt.Errorf("read full blob: %w", err)
	}
	return data, nil
}

// LoadIncrements returns every increment recorded since the full save,
// oldest first.
func (s *Store) LoadIncrements(_ context.Context, name string) ([][]byte, error) {
	incDir := filepath.Join(s.docDir(name), incrementsDir)
	entries, err := os.ReadDir(incDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list increments: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".bin") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	blobs := make([][]byte, 0, len(names))
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(incDir, n)) // #nosec G304 - name from os.ReadDir of incDir
		if err != nil {
			return nil, fmt.Errorf("read increment %s: %w", n, err)
		}
		blobs = append(blobs, data)
	}
	return blobs, nil
}

// Close is a no-op for the file backend: there is no open handle to
// release between calls (each operation opens, locks, and closes its
// own lock file).
func (s *Store) Close() error { return nil }

func nextIncrementSeq(incDir string) (int, error) {
	entries, err := os.ReadDir(incDir)
	if err != nil {
		return 0, fmt.Errorf("list increments: %w", err)
	}
	max := 0
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".bin")
		if n, err := strconv.Atoi(name); err == nil && n > max {
			max = n
		}
	}
	return max + 1, nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace blob file: %w", err)
	}
	return os.Chmod(path, 0o600)
}
