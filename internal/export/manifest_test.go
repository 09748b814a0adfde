package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndReadManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	blobPath := filepath.Join(dir, "doc.bin")

	want := NewManifest("deadbeef", []string{"aaaa", "bbbb"}, 3, false)
	require.NoError(t, WriteManifest(blobPath, want))

	got, err := ReadManifest(blobPath)
	require.NoError(t, err)
	require.Equal(t, want.Actor, got.Actor)
	require.Equal(t, want.Heads, got.Heads)
	require.Equal(t, want.Watermark, got.Watermark)
	require.Equal(t, want.Incremental, got.Incremental)
}

func TestManifestPathStripsExtension(t *testing.T) {
	require.Equal(t, filepath.Join("a", "b.manifest.json"), manifestPathFor(filepath.Join("a", "b.bin")))
	require.Equal(t, filepath.Join("a", "b.incr.manifest.json"), manifestPathFor(filepath.Join("a", "b.incr.bin")))
}

func TestReadManifestMissingFile(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}
