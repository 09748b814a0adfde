package file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localfirst/crdtdoc/internal/export"
)

func TestStoreSaveFullAndLoad(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	manifest := export.NewManifest("actor1", []string{"hash1"}, 1, false)
	require.NoError(t, store.SaveFull(ctx, "mydoc", []byte("full-blob"), manifest))

	got, err := store.LoadFull(ctx, "mydoc")
	require.NoError(t, err)
	require.Equal(t, []byte("full-blob"), got)
}

func TestStoreAppendIncrementalOrdersBySeq(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	manifest := export.NewManifest("actor1", nil, 0, false)
	require.NoError(t, store.SaveFull(ctx, "mydoc", []byte("full"), manifest))
	require.NoError(t, store.AppendIncremental(ctx, "mydoc", []byte("inc1"), manifest))
	require.NoError(t, store.AppendIncremental(ctx, "mydoc", []byte("inc2"), manifest))

	incs, err := store.LoadIncrements(ctx, "mydoc")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("inc1"), []byte("inc2")}, incs)
}

func TestStoreSaveFullClearsPriorIncrements(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	manifest := export.NewManifest("actor1", nil, 0, false)
	require.NoError(t, store.SaveFull(ctx, "mydoc", []byte("full"), manifest))
	require.NoError(t, store.AppendIncremental(ctx, "mydoc", []byte("inc1"), manifest))

	require.NoError(t, store.SaveFull(ctx, "mydoc", []byte("full2"), manifest))

	incs, err := store.LoadIncrements(ctx, "mydoc")
	require.NoError(t, err)
	require.Empty(t, incs)
}

func TestStoreLoadFullMissingDocReturnsError(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadFull(ctx, "nope")
	require.Error(t, err)
}

func TestStoreLoadIncrementsMissingDirReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	incs, err := store.LoadIncrements(ctx, "nope")
	require.NoError(t, err)
	require.Empty(t, incs)
}
