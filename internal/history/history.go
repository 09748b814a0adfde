// Package history implements the append-only change log and frontier
// tracking of spec §3.5: the history vector, the hash index, per-actor
// change positions, the current frontier ("heads"), and the causal
// readiness queue described in spec §4.5.
//
// The ancestor-walk helpers here (ancestorClosure, ChangesAddedBy) are
// grounded on the same shape as the teacher's dependency-tree walk in
// its former internal/deps package: collect a "keep" set by following
// parent/dependency links from a starting frontier, memoized against
// revisits. Everything else in that file was specific to the teacher's
// issue hierarchy and terminal rendering and had no home here; see
// DESIGN.md.
package history

import (
	"sort"
	"strconv"

	"github.com/localfirst/crdtdoc/internal/change"
	"github.com/localfirst/crdtdoc/internal/docerr"
	"github.com/localfirst/crdtdoc/internal/op"
)

type Hash = change.Hash

// History owns the append-only log of applied changes plus the
// frontier and per-actor bookkeeping needed to accept new ones.
type History struct {
	log     []*change.Change
	index   map[Hash]int
	states  map[int][]int // actor idx -> indices into log, in seq order
	frontier map[Hash]struct{}
	maxOp   uint64
	queue   []*change.Change
	watermark int // count of log entries already covered by a prior Save, SaveIncremental or Load
}

// New returns an empty history.
func New() *History {
	return &History{
		index:    make(map[Hash]int),
		states:   make(map[int][]int),
		frontier: make(map[Hash]struct{}),
	}
}

// Len returns the number of changes recorded so far.
func (h *History) Len() int { return len(h.log) }

// MaxOp returns the greatest op-id counter observed, used to assign
// fresh op ids to new local transactions.
func (h *History) MaxOp() uint64 { return h.maxOp }

// Contains reports whether hash is already recorded in history.
func (h *History) Contains(hash Hash) bool {
	_, ok := h.index[hash]
	return ok
}

// ChangeByHash returns the recorded change with the given hash.
func (h *History) ChangeByHash(hash Hash) (*change.Change, bool) {
	idx, ok := h.index[hash]
	if !ok {
		return nil, false
	}
	return h.log[idx], true
}

// SeqCount returns the number of changes already recorded from actor,
// used to reject a replayed or reused seq number (spec §4.5 step 2).
func (h *History) SeqCount(actorIdx int) uint64 {
	return uint64(len(h.states[actorIdx]))
}

// Heads returns the current frontier, sorted lexicographically by hash
// for deterministic output (spec §4.6 get_heads).
func (h *History) Heads() []Hash {
	out := make([]Hash, 0, len(h.frontier))
	for hash := range h.frontier {
		out = append(out, hash)
	}
	sortHashes(out)
	return out
}

func sortHashes(hs []Hash) {
	sort.Slice(hs, func(i, j int) bool { return change.HashString(hs[i]) < change.HashString(hs[j]) })
}

func depsReady(h *History, c *change.Change) bool {
	for _, d := range c.Deps {
		if !h.Contains(d) {
			return false
		}
	}
	return true
}

// AddBatch runs the spec §4.5 ingestion procedure over a batch of
// changes: skip already-seen, reject duplicate seq numbers, apply
// causally-ready changes immediately (via install), and enqueue the
// rest. After the batch, it repeatedly drains the queue until a full
// pass makes no progress.
func (h *History) AddBatch(changes []*change.Change, install func(*change.Change) error) error {
	for _, c := range changes {
		if h.Contains(c.Hash) {
			continue
		}
		if c.Seq <= h.SeqCount(c.ActorIdx) {
			return docerr.DuplicateSeqNumber(actorLabel(c.ActorIdx), c.Seq)
		}
		if depsReady(h, c) {
			if err := h.apply(c, install); err != nil {
				return err
			}
		} else {
			h.queue = append(h.queue, c)
		}
	}
	for {
		progressed, err := h.drainOnce(install)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

func (h *History) drainOnce(install func(*change.Change) error) (bool, error) {
	var remaining []*change.Change
	progressed := false
	for _, c := range h.queue {
		if depsReady(h, c) {
			if err := h.apply(c, install); err != nil {
				return false, err
			}
			progressed = true
		} else {
			remaining = append(remaining, c)
		}
	}
	h.queue = remaining
	return progressed, nil
}

func actorLabel(actorIdx int) string {
	return "actor#" + strconv.Itoa(actorIdx)
}

// apply installs c's operations into the op tree via install, then
// records c in history and updates the frontier (spec §4.5 Apply).
func (h *History) apply(c *change.Change, install func(*change.Change) error) error {
	if install != nil {
		if err := install(c); err != nil {
			return err
		}
	}
	h.Record(c)
	return nil
}

// Record appends c to history and updates the hash index, per-actor
// states, max_op, and frontier. It does not install c's operations
// into any op tree; callers that bypass AddBatch (e.g. a just-built
// local transaction) call this directly after installing the ops
// themselves.
func (h *History) Record(c *change.Change) {
	idx := len(h.log)
	h.log = append(h.log, c)
	h.index[c.Hash] = idx
	h.states[c.ActorIdx] = append(h.states[c.ActorIdx], idx)

	if last := lastOpCounter(c); last > h.maxOp {
		h.maxOp = last
	}
	for _, d := range c.Deps {
		delete(h.frontier, d)
	}
	h.frontier[c.Hash] = struct{}{}
}

func lastOpCounter(c *change.Change) uint64 {
	if len(c.Ops) == 0 {
		return c.StartOp
	}
	return c.StartOp + uint64(len(c.Ops)) - 1
}

// GetMissingDeps returns, sorted, every hash referenced as a dep by a
// queued change or by heads that is neither in history nor itself
// queued (spec §4.6).
func (h *History) GetMissingDeps(heads []Hash) []Hash {
	queued := make(map[Hash]bool, len(h.queue))
	for _, c := range h.queue {
		queued[c.Hash] = true
	}
	missing := make(map[Hash]bool)
	consider := func(hash Hash) {
		if !h.Contains(hash) && !queued[hash] {
			missing[hash] = true
		}
	}
	for _, c := range h.queue {
		for _, d := range c.Deps {
			consider(d)
		}
	}
	for _, hd := range heads {
		consider(hd)
	}
	out := make([]Hash, 0, len(missing))
	for hash := range missing {
		out = append(out, hash)
	}
	sortHashes(out)
	return out
}

// GetChanges returns the changes in history not implied by haveDeps,
// using the fast path of spec §4.6 when every entry of haveDeps is
// known, falling back to the slow ancestor-closure path otherwise.
func (h *History) GetChanges(haveDeps []Hash) []*change.Change {
	if fast, ok := h.getChangesFast(haveDeps); ok {
		return fast
	}
	return h.getChangesSlow(haveDeps)
}

func (h *History) getChangesFast(haveDeps []Hash) ([]*change.Change, bool) {
	minIdx := len(h.log)
	known := make(map[Hash]bool, len(haveDeps))
	for _, d := range haveDeps {
		idx, ok := h.index[d]
		if !ok {
			return nil, false
		}
		known[d] = true
		if idx < minIdx {
			minIdx = idx
		}
	}
	if len(haveDeps) == 0 {
		minIdx = -1
	}
	var out []*change.Change
	seenHeads := make(map[Hash]bool)
	for i := minIdx + 1; i < len(h.log); i++ {
		c := h.log[i]
		ready := true
		for _, d := range c.Deps {
			if !known[d] {
				ready = false
				break
			}
		}
		if !ready {
			return nil, false
		}
		known[c.Hash] = true
		out = append(out, c)
	}
	for hd := range h.frontier {
		if known[hd] {
			seenHeads[hd] = true
		}
	}
	if len(seenHeads) != len(h.frontier) {
		return nil, false
	}
	return out, true
}

func (h *History) getChangesSlow(haveDeps []Hash) []*change.Change {
	closure := h.ancestorClosure(haveDeps)
	var out []*change.Change
	for i, c := range h.log {
		if !closure[i] {
			out = append(out, c)
		}
	}
	return out
}

// ancestorClosure returns, by log index, every change reachable by
// walking Deps backward from heads (heads themselves included).
func (h *History) ancestorClosure(heads []Hash) map[int]bool {
	seen := make(map[int]bool)
	var visit func(hash Hash)
	visit = func(hash Hash) {
		idx, ok := h.index[hash]
		if !ok || seen[idx] {
			return
		}
		seen[idx] = true
		for _, d := range h.log[idx].Deps {
			visit(d)
		}
	}
	for _, hd := range heads {
		visit(hd)
	}
	return seen
}

// ChangesAddedBy returns the changes reachable from otherHeads (using
// otherLookup to resolve a hash to its Change, since otherHeads may
// belong to a peer whose changes are not yet in this history) that
// this history does not already contain, in reverse-discovery order
// (spec §4.6 get_changes_added / §9: not a strict topological order).
func (h *History) ChangesAddedBy(otherHeads []Hash, otherLookup func(Hash) (*change.Change, bool)) []*change.Change {
	visited := make(map[Hash]bool)
	var order []*change.Change
	var visit func(hash Hash)
	visit = func(hash Hash) {
		if visited[hash] || h.Contains(hash) {
			return
		}
		visited[hash] = true
		c, ok := otherLookup(hash)
		if !ok {
			return
		}
		for _, d := range c.Deps {
			visit(d)
		}
		order = append(order, c)
	}
	for _, hd := range otherHeads {
		visit(hd)
	}
	return order
}

// FilterChanges removes from s every hash that is an ancestor of heads
// (spec §4.6 filter_changes).
func (h *History) FilterChanges(heads []Hash, s map[Hash]bool) map[Hash]bool {
	closure := h.ancestorClosure(heads)
	ancestorHashes := make(map[Hash]bool, len(closure))
	for idx := range closure {
		ancestorHashes[h.log[idx].Hash] = true
	}
	out := make(map[Hash]bool, len(s))
	for hash := range s {
		if !ancestorHashes[hash] {
			out[hash] = true
		}
	}
	return out
}

// ClockAt computes the vector clock of the historical frontier heads
// (spec §4.4 clock_at): a DFS over changes reachable from heads, taking
// for each actor the greatest op counter among start_op+len-1 across
// reached changes.
func (h *History) ClockAt(heads []Hash) op.Clock {
	clock := make(op.Clock)
	closure := h.ancestorClosure(heads)
	for idx := range closure {
		c := h.log[idx]
		clock.Observe(c.ActorIdx, lastOpCounter(c))
	}
	return clock
}

// SinceWatermark returns every change appended since the last
// AdvanceWatermark call, the basis of Document.SaveIncremental (spec
// §4.8, SUPPLEMENTED FEATURES).
func (h *History) SinceWatermark() []*change.Change {
	if h.watermark >= len(h.log) {
		return nil
	}
	return append([]*change.Change(nil), h.log[h.watermark:]...)
}

// AdvanceWatermark marks every change currently in history as covered
// by a save; Document calls it after Save, SaveIncremental and Load.
func (h *History) AdvanceWatermark() {
	h.watermark = len(h.log)
}

// Watermark reports the current watermark position, for persistence.
func (h *History) Watermark() int { return h.watermark }

// SetWatermark restores a watermark read back from persisted state.
func (h *History) SetWatermark(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(h.log) {
		n = len(h.log)
	}
	h.watermark = n
}

// All returns every recorded change, in application order.
func (h *History) All() []*change.Change {
	return append([]*change.Change(nil), h.log...)
}

// Clone returns an independent copy of h, used by Document.Fork. Past
// Change records are treated as immutable once recorded and are shared
// by reference between the original and the clone; only the bookkeeping
// that future appends mutate (the log slice header, the indices, the
// frontier, the queue) is deep-copied.
func (h *History) Clone() *History {
	out := &History{
		log:       append([]*change.Change(nil), h.log...),
		index:     make(map[Hash]int, len(h.index)),
		states:    make(map[int][]int, len(h.states)),
		frontier:  make(map[Hash]struct{}, len(h.frontier)),
		maxOp:     h.maxOp,
		watermark: h.watermark,
	}
	for k, v := range h.index {
		out.index[k] = v
	}
	for k, v := range h.states {
		out.states[k] = append([]int(nil), v...)
	}
	for k := range h.frontier {
		out.frontier[k] = struct{}{}
	}
	if len(h.queue) > 0 {
		out.queue = append([]*change.Change(nil), h.queue...)
	}
	return out
}
