package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExclusiveLockExcludesSecondHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.lock")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	f1, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f1.Close()

	require.NoError(t, FlockExclusiveBlocking(f1))
	defer FlockUnlock(f1)

	f2, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f2.Close()

	err = FlockExclusiveNonBlocking(f2)
	require.Error(t, err)
	require.True(t, IsLocked(err))
}

func TestUnlockAllowsSubsequentLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.lock")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, FlockExclusiveBlocking(f))
	require.NoError(t, FlockUnlock(f))
	require.NoError(t, FlockExclusiveNonBlocking(f))
	require.NoError(t, FlockUnlock(f))
}
