package history

import (
	"testing"

	"github.com/localfirst/crdtdoc/internal/change"
	"github.com/localfirst/crdtdoc/internal/docerr"
	"github.com/localfirst/crdtdoc/internal/op"
	"github.com/stretchr/testify/require"
)

func idWithCounter(actor int, counter uint64) op.ID {
	return op.ID{Counter: counter, Actor: actor}
}

func mkChange(actor int, seq uint64, startOp uint64, nOps int, deps ...Hash) *change.Change {
	c := &change.Change{ActorIdx: actor, Seq: seq, StartOp: startOp, Deps: deps}
	c.Hash[0] = byte(actor)
	c.Hash[1] = byte(seq)
	for i := 0; i < nOps; i++ {
		c.Ops = append(c.Ops, nil)
	}
	return c
}

func TestAddBatchAppliesReadyChangeAndUpdatesFrontier(t *testing.T) {
	h := New()
	c1 := mkChange(0, 1, 1, 3)

	var installed []Hash
	err := h.AddBatch([]*change.Change{c1}, func(c *change.Change) error {
		installed = append(installed, c.Hash)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []Hash{c1.Hash}, installed)
	require.True(t, h.Contains(c1.Hash))
	require.Equal(t, []Hash{c1.Hash}, h.Heads())
	require.Equal(t, uint64(3), h.MaxOp())
}

func TestAddBatchQueuesUntilDepsArrive(t *testing.T) {
	h := New()
	c1 := mkChange(0, 1, 1, 2)
	c2 := mkChange(0, 2, 3, 2, c1.Hash)

	var installedOrder []Hash
	install := func(c *change.Change) error {
		installedOrder = append(installedOrder, c.Hash)
		return nil
	}

	require.NoError(t, h.AddBatch([]*change.Change{c2}, install))
	require.False(t, h.Contains(c2.Hash), "c2 should be queued, not applied, before its dep arrives")

	require.NoError(t, h.AddBatch([]*change.Change{c1}, install))
	require.True(t, h.Contains(c1.Hash))
	require.True(t, h.Contains(c2.Hash), "c2 should drain from the queue once c1 is recorded")
	require.Equal(t, []Hash{c1.Hash, c2.Hash}, installedOrder)
	require.Equal(t, []Hash{c2.Hash}, h.Heads(), "c1 should no longer be a head once c2 depends on it")
}

func TestAddBatchRejectsDuplicateSeq(t *testing.T) {
	h := New()
	c1 := mkChange(0, 1, 1, 1)
	require.NoError(t, h.AddBatch([]*change.Change{c1}, func(*change.Change) error { return nil }))

	replay := mkChange(0, 1, 1, 1)
	replay.Hash[2] = 0xff // same actor and seq as c1, different content
	err := h.AddBatch([]*change.Change{replay}, func(*change.Change) error { return nil })
	require.ErrorIs(t, err, docerr.ErrDuplicateSeqNumber)
}

func TestSkipsAlreadySeenChange(t *testing.T) {
	h := New()
	c1 := mkChange(0, 1, 1, 1)
	calls := 0
	install := func(*change.Change) error { calls++; return nil }
	require.NoError(t, h.AddBatch([]*change.Change{c1}, install))
	require.NoError(t, h.AddBatch([]*change.Change{c1}, install))
	require.Equal(t, 1, calls, "an already-recorded hash must not be re-installed")
}

func TestGetChangesFastAndSlowPathsAgree(t *testing.T) {
	h := New()
	c1 := mkChange(0, 1, 1, 1)
	c2 := mkChange(0, 2, 2, 1, c1.Hash)
	c3 := mkChange(1, 1, 1, 1, c1.Hash)
	install := func(*change.Change) error { return nil }
	require.NoError(t, h.AddBatch([]*change.Change{c1, c2, c3}, install))

	fast := h.GetChanges(nil)
	require.Len(t, fast, 3)

	sinceC1 := h.GetChanges([]Hash{c1.Hash})
	gotHashes := make(map[Hash]bool)
	for _, c := range sinceC1 {
		gotHashes[c.Hash] = true
	}
	require.False(t, gotHashes[c1.Hash])
	require.True(t, gotHashes[c2.Hash])
	require.True(t, gotHashes[c3.Hash])
	require.Equal(t, h.getChangesSlow([]Hash{c1.Hash}), sinceC1)
	require.Equal(t, h.getChangesSlow(nil), fast)
}

func TestFilterChangesRemovesAncestors(t *testing.T) {
	h := New()
	c1 := mkChange(0, 1, 1, 1)
	c2 := mkChange(0, 2, 2, 1, c1.Hash)
	install := func(*change.Change) error { return nil }
	require.NoError(t, h.AddBatch([]*change.Change{c1, c2}, install))

	s := map[Hash]bool{c1.Hash: true, c2.Hash: true}
	filtered := h.FilterChanges([]Hash{c2.Hash}, s)
	require.Empty(t, filtered, "both changes are ancestors of c2's own head")
}

func TestChangesAddedByStopsAtKnownHistory(t *testing.T) {
	self := New()
	c1 := mkChange(0, 1, 1, 1)
	install := func(*change.Change) error { return nil }
	require.NoError(t, self.AddBatch([]*change.Change{c1}, install))

	c2 := mkChange(1, 1, 1, 1, c1.Hash)
	peerChanges := map[Hash]*change.Change{c1.Hash: c1, c2.Hash: c2}
	lookup := func(h Hash) (*change.Change, bool) { c, ok := peerChanges[h]; return c, ok }

	added := self.ChangesAddedBy([]Hash{c2.Hash}, lookup)
	require.Len(t, added, 1)
	require.Equal(t, c2.Hash, added[0].Hash)
}

func TestSinceWatermarkAndAdvance(t *testing.T) {
	h := New()
	c1 := mkChange(0, 1, 1, 1)
	install := func(*change.Change) error { return nil }
	require.NoError(t, h.AddBatch([]*change.Change{c1}, install))

	require.Len(t, h.SinceWatermark(), 1)
	h.AdvanceWatermark()
	require.Empty(t, h.SinceWatermark())

	c2 := mkChange(0, 2, 2, 1, c1.Hash)
	require.NoError(t, h.AddBatch([]*change.Change{c2}, install))
	require.Len(t, h.SinceWatermark(), 1)
	require.Equal(t, c2.Hash, h.SinceWatermark()[0].Hash)
}

func TestClockAtReflectsReachableChanges(t *testing.T) {
	h := New()
	c1 := mkChange(0, 1, 1, 3)
	c2 := mkChange(1, 1, 1, 2, c1.Hash)
	install := func(*change.Change) error { return nil }
	require.NoError(t, h.AddBatch([]*change.Change{c1, c2}, install))

	clockAtC1 := h.ClockAt([]Hash{c1.Hash})
	require.True(t, clockAtC1.Covers(idWithCounter(0, 3)))
	require.False(t, clockAtC1.Covers(idWithCounter(1, 1)))

	clockAtC2 := h.ClockAt([]Hash{c2.Hash})
	require.True(t, clockAtC2.Covers(idWithCounter(0, 3)))
	require.True(t, clockAtC2.Covers(idWithCounter(1, 2)))
}
