// Package lockfile provides cross-platform advisory file locking used to
// guard a single on-disk document's writes against concurrent saves from
// more than one process (spec §5 "Shared-resource policy").
package lockfile

import "errors"

// ErrLocked is returned when an exclusive lock cannot be acquired because
// another process already holds it.
var ErrLocked = errStoreLocked

// ErrLockBusy is returned when a non-blocking lock request loses to a
// conflicting lock (shared vs exclusive, or exclusive vs exclusive).
var ErrLockBusy = errors.New("lock busy: held by another process")

// IsLocked reports whether err indicates the store lock is already held.
func IsLocked(err error) bool {
	return err == errStoreLocked
}
