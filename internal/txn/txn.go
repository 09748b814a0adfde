// Package txn implements the transaction of spec §4.7: a scratch batch
// of operations applied immediately to the op tree as they are
// created, with deterministic rollback. Remote changes are installed by
// internal/document, not through this package.
package txn

import (
	"time"

	"github.com/localfirst/crdtdoc/internal/actorid"
	"github.com/localfirst/crdtdoc/internal/change"
	"github.com/localfirst/crdtdoc/internal/docerr"
	"github.com/localfirst/crdtdoc/internal/op"
	"github.com/localfirst/crdtdoc/internal/optree"
	"github.com/localfirst/crdtdoc/internal/query"
)

// undoEntry reverses one applyNewOp call on Rollback.
type undoEntry struct {
	op       *op.Op
	pred     []*op.Op
	inserted bool
}

// Transaction buffers a batch of operations against one op tree, in
// the actor/counter space of one actor, finalizing as a single Change
// on Commit (spec §4.7).
type Transaction struct {
	tree      *optree.OpTree
	order     op.Order
	keys      *actorid.Cache[string]
	actorIdx  int
	startOp   uint64
	nextOp    uint64
	seq       uint64
	deps      []change.Hash
	message   string
	changeIdx int
	ops       []*op.Op
	undo      []undoEntry
	done      bool
}

// New opens a transaction. startOp is the first op-id counter this
// transaction will assign (typically history.MaxOp()+1); changeIdx is
// the history index the resulting change will occupy (typically
// history.Len(), valid because the single-threaded model guarantees
// nothing else commits in between).
func New(tree *optree.OpTree, order op.Order, keys *actorid.Cache[string], actorIdx int, seq uint64, startOp uint64, changeIdx int, deps []change.Hash) *Transaction {
	return &Transaction{
		tree:      tree,
		order:     order,
		keys:      keys,
		actorIdx:  actorIdx,
		startOp:   startOp,
		nextOp:    startOp,
		seq:       seq,
		deps:      deps,
		changeIdx: changeIdx,
	}
}

// SetMessage attaches a free-text message to the change this
// transaction will produce.
func (t *Transaction) SetMessage(msg string) { t.message = msg }

func (t *Transaction) resolve(idx int) string { return t.keys.Value(idx) }

// applyNewOp assigns a fresh id to a locally-originated op, seeks its
// placement, wires pred/succ against the currently visible state, and
// installs it (unless it is a Del, which is never stored).
func (t *Transaction) applyNewOp(obj op.ObjID, key op.Key, insert bool, action op.Action) *op.Op {
	o := &op.Op{
		ID:     op.ID{Counter: t.nextOp, Actor: t.actorIdx},
		Change: t.changeIdx,
		Obj:    obj,
		Key:    key,
		Action: action,
		Insert: insert,
	}
	t.nextOp++

	place := query.Seek(t.tree, t.order, t.resolve, obj, o)
	for _, p := range place.Pred {
		p.AddSucc(o.ID)
		o.Pred = append(o.Pred, p.ID)
	}
	inserted := !action.IsDel()
	if inserted {
		t.tree.InsertAt(obj, place.Pos, o)
	}
	t.undo = append(t.undo, undoEntry{op: o, pred: place.Pred, inserted: inserted})
	t.ops = append(t.ops, o)
	return o
}

// currentScalar returns the single visible scalar at a map key, if
// there is exactly one and it came from a plain Set (not a counter),
// used by Set's no-op short-circuit (spec §4.4 edge cases, scenario S1).
func (t *Transaction) currentScalar(obj op.ObjID, key string) (op.Scalar, bool) {
	vals := query.Prop(t.tree, t.order, t.resolve, obj, key)
	if len(vals) != 1 {
		return op.Scalar{}, false
	}
	if !vals[0].Op.Action.IsSet() || vals[0].Op.Action.Set.Kind == op.ScalarCounter {
		return op.Scalar{}, false
	}
	return vals[0].Op.Action.Set, true
}

// Set writes a scalar at a map key. If the key's current single
// winning value already equals v, no new op is created and ok is
// false (spec §4.4: "returns no new object id").
func (t *Transaction) Set(obj op.ObjID, key string, v op.Scalar) (id op.ID, ok bool) {
	if cur, has := t.currentScalar(obj, key); has && cur.Equal(v) {
		return op.ID{}, false
	}
	o := t.applyNewOp(obj, op.MapKey(t.keys.Intern(key)), false, op.SetAction(v))
	return o.ID, true
}

// MakeObject creates a nested object at a map key and returns its id.
func (t *Transaction) MakeObject(obj op.ObjID, key string, kind op.Kind) op.ObjID {
	o := t.applyNewOp(obj, op.MapKey(t.keys.Intern(key)), false, op.MakeAction(kind))
	return o.ID
}

// Del deletes the current value(s) at a map key.
func (t *Transaction) Del(obj op.ObjID, key string) {
	t.applyNewOp(obj, op.MapKey(t.keys.Intern(key)), false, op.DelAction())
}

// Inc increments a counter at a map key by delta.
func (t *Transaction) Inc(obj op.ObjID, key string, delta int64) {
	t.applyNewOp(obj, op.MapKey(t.keys.Intern(key)), false, op.IncAction(delta))
}

// InsertScalar inserts a new list/text element immediately after
// after (op.Head for the beginning) and returns its element id.
func (t *Transaction) InsertScalar(list op.ObjID, after op.ElemID, v op.Scalar) op.ElemID {
	o := t.applyNewOp(list, op.SeqKey(after), true, op.SetAction(v))
	return o.ID
}

// InsertObject inserts a new nested object as a list/text element.
func (t *Transaction) InsertObject(list op.ObjID, after op.ElemID, kind op.Kind) (op.ElemID, op.ObjID) {
	o := t.applyNewOp(list, op.SeqKey(after), true, op.MakeAction(kind))
	return o.ID, o.ID
}

// SetAt updates an existing list/text element in place.
func (t *Transaction) SetAt(list op.ObjID, elem op.ElemID, v op.Scalar) {
	t.applyNewOp(list, op.SeqKey(elem), false, op.SetAction(v))
}

// DelAt deletes an existing list/text element.
func (t *Transaction) DelAt(list op.ObjID, elem op.ElemID) {
	t.applyNewOp(list, op.SeqKey(elem), false, op.DelAction())
}

// Splice inserts values in order immediately after after, returning
// each new element's id (spec §4.8 splice/splice_text).
func (t *Transaction) Splice(list op.ObjID, after op.ElemID, values []op.Scalar) []op.ElemID {
	ids := make([]op.ElemID, len(values))
	cursor := after
	for i, v := range values {
		id := t.InsertScalar(list, cursor, v)
		ids[i] = id
		cursor = id
	}
	return ids
}

// Rollback undoes every op this transaction has applied, in reverse
// order: removing inserted ops from the tree and erasing the succ
// entries they added to their predecessors (spec §4.7).
func (t *Transaction) Rollback() {
	if t.done {
		return
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		e := t.undo[i]
		if e.inserted {
			if pos, ok := t.tree.IndexOf(e.op.Obj, e.op.ID); ok {
				t.tree.RemoveAt(e.op.Obj, pos)
			}
		}
		for _, p := range e.pred {
			p.Succ = removeID(p.Succ, e.op.ID)
		}
	}
	t.ops = nil
	t.undo = nil
	t.done = true
}

func removeID(ids []op.ID, target op.ID) []op.ID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// Empty reports whether no operation was buffered (e.g. every Set call
// short-circuited as a no-op): committing an empty transaction would
// produce a change with no effect, which callers typically skip.
func (t *Transaction) Empty() bool { return len(t.ops) == 0 }

// Commit finalizes the buffered ops into a Change, encodes it, and
// marks the transaction done. It does not touch history; callers
// record the returned change via history.Record (local commits already
// own the document's history instance).
func (t *Transaction) Commit(actors *actorid.Cache[actorid.ActorID], when int64) (*change.Change, error) {
	if t.done {
		return nil, docerr.Fail("transaction already finalized")
	}
	c := &change.Change{
		ActorIdx: t.actorIdx,
		Seq:      t.seq,
		StartOp:  t.startOp,
		Time:     time.Unix(0, when).UTC(),
		Message:  t.message,
		Deps:     t.deps,
		Ops:      t.ops,
	}
	if err := change.Encode(c, actors, t.keys); err != nil {
		return nil, err
	}
	t.done = true
	return c, nil
}
