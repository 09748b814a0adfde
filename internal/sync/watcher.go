// Package sync watches a directory for dropped-in incremental change
// batches (the same blob format document.SaveIncremental produces) and
// feeds each one to Document.ApplyChanges as it appears, exercising
// spec §4.5's causal-readiness queue continuously instead of only on an
// explicit CLI invocation.
//
// Grounded on the teacher's cmd/bd/list.go watchIssues: an
// fsnotify.Watcher on one directory, a debounce timer coalescing rapid
// write bursts into one re-read. The read itself is wrapped in
// cenkalti/backoff (the teacher's internal/storage/dolt retry pattern,
// newServerRetryBackoff) bounded to a few seconds, since a file can be
// observed mid-write by the producer on the other end of a shared sync
// directory.
package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/localfirst/crdtdoc/internal/document"
)

// readRetryMaxElapsed bounds how long Watcher retries reading a batch
// file that keeps failing (e.g. still being written by the producer).
const readRetryMaxElapsed = 5 * time.Second

// defaultDebounce coalesces a burst of filesystem events for the same
// file into a single apply.
const defaultDebounce = 200 * time.Millisecond

// AppliedFunc is called after each observed batch file is processed,
// successfully or not, so a caller (CLI or test) can report progress.
type AppliedFunc func(path string, err error)

// Watcher applies incremental batch files dropped into a directory to
// one Document, in the order the filesystem reports them.
type Watcher struct {
	doc      *document.Document
	dir      string
	debounce time.Duration
	onApply  AppliedFunc

	// mu guards doc: the watcher goroutine and any other goroutine that
	// mutates doc directly must serialize through it, since a Document
	// is not safe for concurrent mutation (spec §5). Grounded on the
	// teacher's storeMutex ("Protects store access from background
	// goroutine") in cmd/bd/main.go.
	mu *sync.Mutex
}

// NewWatcher returns a Watcher over dir, applying batches to doc. mu, if
// non-nil, is locked around every apply; pass the same mutex the rest of
// the program uses to guard doc so the watcher goroutine never races a
// foreground mutation.
func NewWatcher(doc *document.Document, dir string, mu *sync.Mutex, onApply AppliedFunc) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create sync dir: %w", err)
	}
	return &Watcher{doc: doc, dir: dir, debounce: defaultDebounce, onApply: onApply, mu: mu}, nil
}

// Run watches the directory until ctx is canceled or an unrecoverable
// watcher error occurs. It applies every regular file already present
// in the directory once at startup, then reacts to further writes.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch sync dir: %w", err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("list sync dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.apply(filepath.Join(w.dir, e.Name()))
		}
	}

	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path := event.Name
			if t, exists := pending[path]; exists {
				t.Stop()
			}
			pending[path] = time.AfterFunc(w.debounce, func() { w.apply(path) })
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if w.onApply != nil {
				w.onApply("", fmt.Errorf("fsnotify: %w", watchErr))
			}
		}
	}
}

func (w *Watcher) apply(path string) {
	data, err := readWithBackoff(path)
	if err == nil {
		if w.mu != nil {
			w.mu.Lock()
		}
		err = w.doc.LoadIncremental(data)
		if w.mu != nil {
			w.mu.Unlock()
		}
	}
	if w.onApply != nil {
		w.onApply(path, err)
	}
}

// readWithBackoff retries a non-existent-or-empty read for up to
// readRetryMaxElapsed, to tolerate observing a batch file mid-write by
// its producer; a read that succeeds but whose content is malformed is
// surfaced immediately from the caller's Decode failure, not retried
// here, since that error will not resolve on its own.
func readWithBackoff(path string) ([]byte, error) {
	var data []byte
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = readRetryMaxElapsed

	op := func() error {
		d, err := os.ReadFile(path) // #nosec G304 - path observed from a directory this process watches
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return err // retryable: producer may still be writing via rename
			}
			return backoff.Permanent(err)
		}
		if len(d) == 0 {
			return errors.New("empty batch file")
		}
		data = d
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("read batch file %s: %w", path, err)
	}
	return data, nil
}
