// Package query implements the read side of the document model: finding
// where a new operation belongs in an object's op tree (spec §4.3 RGA
// placement) and reducing the op tree's ops down to the values callers
// see (spec §4.4 Keys/Prop/Nth/Len/ListVals and their historical "_At"
// forms).
package query

import (
	"sort"

	"github.com/localfirst/crdtdoc/internal/op"
	"github.com/localfirst/crdtdoc/internal/optree"
)

// KeyResolver turns an interned map-key index back into its string, so
// Seek and the map-reading queries can compare keys without reaching
// into the document's key cache directly.
type KeyResolver func(idx int) string

// Placement is where a new operation belongs: its position within the
// object's ops slice, and the currently-visible operations it
// supersedes (its Pred, for a locally-originated op that hasn't been
// assigned one yet).
type Placement struct {
	Pos  int
	Pred []*op.Op
}

// Seek finds the insertion point for o within obj (spec §4.3). For a
// sequence-inserting op, Pred is always empty: an insertion anchors to
// an existing element but does not overwrite it. For any other op
// (a map write, or an update to an existing list/text element), Pred is
// every currently-visible operation already at that key, which the
// caller supersedes by recording them as o's predecessors and linking
// o into each of their Succ sets. For a map key, a counter whose only
// successors are Inc ops still counts as visible, and Inc ops are never
// predecessors, so every Inc names the counter itself.
func Seek(tree *optree.OpTree, order op.Order, resolve KeyResolver, obj op.ObjID, o *op.Op) Placement {
	ops := tree.Ops(obj)
	if o.Key.Kind == op.KeySeq {
		if o.Insert {
			return Placement{Pos: seekInsertPos(ops, o.Key.Elem, o.ID, order)}
		}
		return seekSeqUpdate(ops, o.Key.Elem)
	}
	return seekMapWrite(ops, resolve, resolve(o.Key.MapKeyIdx))
}

// runEnd returns the index just past the run starting at the inserting
// op ops[i]: that op plus every contiguous non-inserting op that
// targets the element it introduces.
func runEnd(ops []*op.Op, i int) int {
	j := i + 1
	for j < len(ops) && !ops[j].Insert {
		j++
	}
	return j
}

func indexOfInsert(ops []*op.Op, elem op.ElemID) (int, bool) {
	for i, o := range ops {
		if o.Insert && o.ID == elem {
			return i, true
		}
	}
	return 0, false
}

// seekInsertPos implements the RGA placement rule: siblings anchored at
// the same reference element are ordered from the highest Lamport id to
// the lowest, so a new insert walks past every sibling that should sort
// before it (those with a greater id) and stops at the first that
// should sort after (a lesser id, or the end of the reference's
// children).
func seekInsertPos(ops []*op.Op, refElem op.ElemID, newID op.ID, order op.Order) int {
	i := 0
	if !op.IsHead(refElem) {
		idx, ok := indexOfInsert(ops, refElem)
		if !ok {
			return len(ops)
		}
		i = runEnd(ops, idx)
	}
	for i < len(ops) {
		cur := ops[i]
		if !cur.Insert || cur.Key.Kind != op.KeySeq || cur.Key.Elem != refElem {
			break
		}
		if order.Less(newID, cur.ID) {
			i = runEnd(ops, i)
			continue
		}
		break
	}
	return i
}

// seekSeqUpdate places a non-inserting sequence op (Set/Del/Inc against
// an existing element) at the end of that element's run, superseding
// whichever of the run's operations are currently visible.
func seekSeqUpdate(ops []*op.Op, targetElem op.ElemID) Placement {
	idx, ok := indexOfInsert(ops, targetElem)
	if !ok {
		return Placement{Pos: len(ops)}
	}
	end := runEnd(ops, idx)
	var pred []*op.Op
	for i := idx; i < end; i++ {
		if ops[i].Visible() {
			pred = append(pred, ops[i])
		}
	}
	return Placement{Pos: end, Pred: pred}
}

// seekMapWrite places a map op after any existing run of ops sharing
// the same key (spec §3.3: map ops are ordered by key string), or at
// the sorted position for a key seen for the first time.
func seekMapWrite(ops []*op.Op, resolve KeyResolver, key string) Placement {
	i := 0
	for i < len(ops) {
		k := resolve(ops[i].Key.MapKeyIdx)
		if k == key {
			start := i
			for i < len(ops) && resolve(ops[i].Key.MapKeyIdx) == key {
				i++
			}
			var pred []*op.Op
			for j := start; j < i; j++ {
				o := ops[j]
				if o.Action.IsInc() {
					continue
				}
				live := o.Visible()
				if o.Action.IsSet() && o.Action.Set.Kind == op.ScalarCounter {
					incs := 0
					for _, r := range ops[start:i] {
						if r.Action.IsInc() && r.HasPred(o.ID) {
							incs++
						}
					}
					live = len(o.Succ) == incs
				}
				if live {
					pred = append(pred, o)
				}
			}
			return Placement{Pos: i, Pred: pred}
		}
		if k > key {
			return Placement{Pos: i}
		}
		i++
	}
	return Placement{Pos: i}
}

// Value is one reported (possibly conflicting) value at a key or list
// position: the op that set it and its resolved value. For counters,
// Value already folds in every Inc consumed by that Set. Elem is only
// meaningful for list/text reads: the element id new inserts/updates
// must address to land at this position, which is the run's leading
// insert op id (not necessarily Op.ID, when Op is a later update).
type Value struct {
	Op    *op.Op
	Value interface{}
	Elem  op.ElemID
}

// visible reports whether o contributes to the read at clock. A nil
// clock means "now": visibility degenerates to "no successors at all".
// Inc successors never hide a counter on their own; see counterValue.
func visible(o *op.Op, clock op.Clock) bool {
	if clock == nil {
		return len(o.Succ) == 0
	}
	if !clock.Covers(o.ID) {
		return false
	}
	for _, s := range o.Succ {
		if clock.Covers(s) {
			return false
		}
	}
	return true
}

// counterValue folds every Inc op naming base in its Pred into base's
// running total, and reports whether base is still visible: a Del or a
// conflicting Set among its successors supersedes it, but a consumed
// Inc does not (spec §4.4 counter semantics).
func counterValue(tree *optree.OpTree, base *op.Op, clock op.Clock) (value int64, ok bool) {
	if !base.Action.IsSet() || base.Action.Set.Kind != op.ScalarCounter {
		return 0, false
	}
	if clock != nil && !clock.Covers(base.ID) {
		return 0, false
	}
	total := base.Action.Set.I
	for _, sid := range base.Succ {
		s, found := tree.Lookup(sid)
		if !found {
			continue
		}
		if clock != nil && !clock.Covers(sid) {
			continue
		}
		switch {
		case s.Action.IsInc():
			total += s.Action.IncDelta
		case s.Action.IsDel(), s.Action.IsSet(), s.Action.IsMake():
			return 0, false
		}
	}
	return total, true
}

// valueOf resolves a single base (non-Inc) op to its reported value,
// folding counter deltas in. ok is false when the op is not visible at
// clock, or is an Inc that is always folded into its base rather than
// reported on its own.
func valueOf(tree *optree.OpTree, o *op.Op, clock op.Clock) (interface{}, bool) {
	if o.Action.IsInc() {
		return nil, false
	}
	if o.Action.IsSet() && o.Action.Set.Kind == op.ScalarCounter {
		v, ok := counterValue(tree, o, clock)
		if !ok {
			return nil, false
		}
		return v, true
	}
	if !visible(o, clock) {
		return nil, false
	}
	if o.Action.IsMake() {
		return o.ID, true
	}
	return o.Action.Set.Interface(), true
}

// entriesAt reduces a run of ops sharing one key/element to their
// visible values, ordered ascending by Lamport id so the last entry is
// the most recently written ("last writer wins" per spec §4.4).
func entriesAt(tree *optree.OpTree, order op.Order, ops []*op.Op, clock op.Clock) []Value {
	var out []Value
	for _, o := range ops {
		if v, ok := valueOf(tree, o, clock); ok {
			out = append(out, Value{Op: o, Value: v})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return order.Less(out[i].Op.ID, out[j].Op.ID)
	})
	return out
}

// Keys returns the distinct map keys of obj that currently have at
// least one visible value, in key-string order.
func Keys(tree *optree.OpTree, resolve KeyResolver, obj op.ObjID) []string {
	return KeysAt(tree, resolve, obj, nil)
}

// KeysAt is the historical form of Keys, as of clock.
func KeysAt(tree *optree.OpTree, resolve KeyResolver, obj op.ObjID, clock op.Clock) []string {
	ops := tree.Ops(obj)
	var out []string
	i := 0
	for i < len(ops) {
		key := resolve(ops[i].Key.MapKeyIdx)
		j := i
		hasVisible := false
		for j < len(ops) && resolve(ops[j].Key.MapKeyIdx) == key {
			if _, ok := valueOf(tree, ops[j], clock); ok {
				hasVisible = true
			}
			j++
		}
		if hasVisible {
			out = append(out, key)
		}
		i = j
	}
	return out
}

// Prop returns every currently visible value at obj's map key, in
// ascending Lamport order; more than one entry means a conflict.
func Prop(tree *optree.OpTree, order op.Order, resolve KeyResolver, obj op.ObjID, key string) []Value {
	return PropAt(tree, order, resolve, obj, key, nil)
}

// PropAt is the historical form of Prop, as of clock.
func PropAt(tree *optree.OpTree, order op.Order, resolve KeyResolver, obj op.ObjID, key string, clock op.Clock) []Value {
	ops := tree.Ops(obj)
	var group []*op.Op
	for _, o := range ops {
		if resolve(o.Key.MapKeyIdx) == key {
			group = append(group, o)
		}
	}
	return entriesAt(tree, order, group, clock)
}

// elements walks obj's ops slice and returns one run of ops per
// sequence element, in position order.
func elements(ops []*op.Op) [][]*op.Op {
	var runs [][]*op.Op
	i := 0
	for i < len(ops) {
		if !ops[i].Insert {
			i++
			continue
		}
		end := runEnd(ops, i)
		runs = append(runs, ops[i:end])
		i = end
	}
	return runs
}

// Nth returns the winning value of the n-th currently visible element
// of a list/text object, and the op that established its element id
// (needed to target further updates or inserts at that position).
func Nth(tree *optree.OpTree, order op.Order, obj op.ObjID, n int) (Value, bool) {
	return NthAt(tree, order, obj, n, nil)
}

// NthAt is the historical form of Nth, as of clock.
func NthAt(tree *optree.OpTree, order op.Order, obj op.ObjID, n int, clock op.Clock) (Value, bool) {
	if n < 0 {
		return Value{}, false
	}
	idx := 0
	for _, run := range elements(tree.Ops(obj)) {
		vals := entriesAt(tree, order, run, clock)
		if len(vals) == 0 {
			continue
		}
		if idx == n {
			winner := vals[len(vals)-1]
			winner.Elem = run[0].ID
			return winner, true
		}
		idx++
	}
	return Value{}, false
}

// Len returns the count of currently visible elements of a list/text
// object.
func Len(tree *optree.OpTree, order op.Order, obj op.ObjID) int {
	return LenAt(tree, order, obj, nil)
}

// LenAt is the historical form of Len, as of clock.
func LenAt(tree *optree.OpTree, order op.Order, obj op.ObjID, clock op.Clock) int {
	n := 0
	for _, run := range elements(tree.Ops(obj)) {
		if len(entriesAt(tree, order, run, clock)) > 0 {
			n++
		}
	}
	return n
}

// ListVals returns the winning value of every currently visible element
// of a list/text object, in position order.
func ListVals(tree *optree.OpTree, order op.Order, obj op.ObjID) []Value {
	return ListValsAt(tree, order, obj, nil)
}

// ListValsAt is the historical form of ListVals, as of clock.
func ListValsAt(tree *optree.OpTree, order op.Order, obj op.ObjID, clock op.Clock) []Value {
	var out []Value
	for _, run := range elements(tree.Ops(obj)) {
		vals := entriesAt(tree, order, run, clock)
		if len(vals) > 0 {
			winner := vals[len(vals)-1]
			winner.Elem = run[0].ID
			out = append(out, winner)
		}
	}
	return out
}
