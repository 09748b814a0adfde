package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRememberAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.toml")

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Empty(t, reg.Documents)

	docDir := t.TempDir()
	require.NoError(t, reg.Remember(path, docDir, "deadbeef"))

	reloaded, err := LoadRegistry(path)
	require.NoError(t, err)
	entry, ok := reloaded.Lookup(docDir)
	require.True(t, ok)
	require.Equal(t, "deadbeef", entry.ActorIDHex)
}

func TestRegistryRememberUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.toml")
	docDir := t.TempDir()

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	require.NoError(t, reg.Remember(path, docDir, "first"))
	require.NoError(t, reg.Remember(path, docDir, "second"))

	require.Len(t, reg.Documents, 1)
	entry, ok := reg.Lookup(docDir)
	require.True(t, ok)
	require.Equal(t, "second", entry.ActorIDHex)
}

func TestRegistryRecentOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.toml")
	a, b := t.TempDir(), t.TempDir()

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	require.NoError(t, reg.Remember(path, a, "a"))
	require.NoError(t, reg.Remember(path, b, "b"))

	recent := reg.Recent()
	require.Len(t, recent, 2)
	require.Equal(t, "b", recent[0].ActorIDHex)
}
