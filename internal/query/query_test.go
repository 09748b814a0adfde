package query

import (
	"testing"

	"github.com/localfirst/crdtdoc/internal/actorid"
	"github.com/localfirst/crdtdoc/internal/op"
	"github.com/localfirst/crdtdoc/internal/optree"
)

type fixture struct {
	tree    *optree.OpTree
	order   op.Order
	keys    *actorid.Cache[string]
	actors  *actorid.Cache[actorid.ActorID]
	counter uint64
}

func newFixture() *fixture {
	actors := actorid.NewCache[actorid.ActorID]()
	actors.Intern("actor-a")
	actors.Intern("actor-b")
	order := op.Order{Actors: actors}
	return &fixture{
		tree:   optree.New(order),
		order:  order,
		keys:   actorid.NewCache[string](),
		actors: actors,
	}
}

func (f *fixture) resolve(idx int) string { return f.keys.Value(idx) }

func (f *fixture) id(actor int, counter uint64) op.ID {
	return op.ID{Counter: counter, Actor: actor}
}

// put inserts o by running Seek first, wiring Pred/Succ exactly as the
// apply pipeline would.
func (f *fixture) put(obj op.ObjID, o *op.Op) {
	place := Seek(f.tree, f.order, f.resolve, obj, o)
	for _, p := range place.Pred {
		p.AddSucc(o.ID)
		o.Pred = append(o.Pred, p.ID)
	}
	f.tree.InsertAt(obj, place.Pos, o)
}

func (f *fixture) mapSet(obj op.ObjID, actor int, counter uint64, key string, v interface{}) *op.Op {
	idx := f.keys.Intern(key)
	o := &op.Op{ID: f.id(actor, counter), Obj: obj, Key: op.MapKey(idx), Action: op.SetAction(op.ScalarOf(v))}
	f.put(obj, o)
	return o
}

func TestSeekMapWriteSupersedesPriorVisibleValue(t *testing.T) {
	f := newFixture()
	first := f.mapSet(op.Root, 0, 1, "name", "alice")
	second := f.mapSet(op.Root, 0, 2, "name", "bob")

	if first.Visible() {
		t.Fatalf("expected first write to be superseded")
	}
	if !second.Visible() {
		t.Fatalf("expected second write to remain visible")
	}
	vals := Prop(f.tree, f.order, f.resolve, op.Root, "name")
	if len(vals) != 1 || vals[0].Value != "bob" {
		t.Fatalf("expected single winning value 'bob', got %v", vals)
	}
}

func TestPropReportsConcurrentConflictWithWinnerLast(t *testing.T) {
	f := newFixture()
	idx := f.keys.Intern("color")
	a := &op.Op{ID: f.id(0, 1), Obj: op.Root, Key: op.MapKey(idx), Action: op.SetAction(op.ScalarOf("red"))}
	b := &op.Op{ID: f.id(1, 1), Obj: op.Root, Key: op.MapKey(idx), Action: op.SetAction(op.ScalarOf("blue"))}
	f.tree.InsertAt(op.Root, 0, a)
	f.tree.InsertAt(op.Root, 1, b)

	vals := Prop(f.tree, f.order, f.resolve, op.Root, "color")
	if len(vals) != 2 {
		t.Fatalf("expected both concurrent writes to be reported, got %v", vals)
	}
	if vals[len(vals)-1].Op.ID != b.ID {
		t.Fatalf("expected higher Lamport id to be last (the winner)")
	}
}

func TestKeysOnlyListsKeysWithVisibleValues(t *testing.T) {
	f := newFixture()
	f.mapSet(op.Root, 0, 1, "a", "x")
	first := f.mapSet(op.Root, 0, 2, "b", "y")
	f.mapSet(op.Root, 0, 3, "b", "z")
	_ = first

	keys := Keys(f.tree, f.resolve, op.Root)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("expected keys [a b], got %v", keys)
	}
}

func TestListInsertOrderingNewestSiblingFirst(t *testing.T) {
	f := newFixture()
	listID := f.id(0, 1)
	mk := &op.Op{ID: listID, Obj: op.Root, Key: op.MapKey(f.keys.Intern("items")), Action: op.MakeAction(op.KindList)}
	f.put(op.Root, mk)

	first := &op.Op{ID: f.id(0, 2), Obj: listID, Key: op.SeqKey(op.Head), Insert: true, Action: op.SetAction(op.ScalarOf("a"))}
	f.put(listID, first)

	second := &op.Op{ID: f.id(0, 3), Obj: listID, Key: op.SeqKey(op.Head), Insert: true, Action: op.SetAction(op.ScalarOf("b"))}
	f.put(listID, second)

	vals := ListVals(f.tree, f.order, listID)
	if len(vals) != 2 || vals[0].Value != "b" || vals[1].Value != "a" {
		t.Fatalf("expected newest insert at Head to land first, got %v", vals)
	}
}

func TestListUpdateSupersedesElementAndLenTracksDeletes(t *testing.T) {
	f := newFixture()
	listID := f.id(0, 1)
	mk := &op.Op{ID: listID, Obj: op.Root, Key: op.MapKey(f.keys.Intern("items")), Action: op.MakeAction(op.KindList)}
	f.put(op.Root, mk)

	a := &op.Op{ID: f.id(0, 2), Obj: listID, Key: op.SeqKey(op.Head), Insert: true, Action: op.SetAction(op.ScalarOf("a"))}
	f.put(listID, a)
	b := &op.Op{ID: f.id(0, 3), Obj: listID, Key: op.SeqKey(a.ID), Insert: true, Action: op.SetAction(op.ScalarOf("b"))}
	f.put(listID, b)

	if Len(f.tree, f.order, listID) != 2 {
		t.Fatalf("expected length 2 before update")
	}

	upd := &op.Op{ID: f.id(0, 4), Obj: listID, Key: op.SeqKey(a.ID), Action: op.SetAction(op.ScalarOf("a2"))}
	f.put(listID, upd)

	if a.Visible() {
		t.Fatalf("expected original element op to be superseded by its update")
	}
	vals := ListVals(f.tree, f.order, listID)
	if len(vals) != 2 || vals[0].Value != "a2" {
		t.Fatalf("expected updated value 'a2' at position 0, got %v", vals)
	}

	del := &op.Op{ID: f.id(0, 5), Obj: listID, Key: op.SeqKey(a.ID), Action: op.DelAction()}
	place := Seek(f.tree, f.order, f.resolve, listID, del)
	for _, p := range place.Pred {
		p.AddSucc(del.ID)
	}
	if Len(f.tree, f.order, listID) != 1 {
		t.Fatalf("expected delete to drop the element from Len")
	}
}

func TestCounterAccumulatesIncAndIsHiddenBySet(t *testing.T) {
	f := newFixture()
	idx := f.keys.Intern("score")
	base := &op.Op{ID: f.id(0, 1), Obj: op.Root, Key: op.MapKey(idx), Action: op.SetAction(op.CounterScalar(10))}
	f.put(op.Root, base)

	inc1 := &op.Op{ID: f.id(0, 2), Obj: op.Root, Key: op.MapKey(idx), Action: op.IncAction(5), Pred: []op.ID{base.ID}}
	base.AddSucc(inc1.ID)
	f.tree.InsertAt(op.Root, len(f.tree.Ops(op.Root)), inc1)

	inc2 := &op.Op{ID: f.id(1, 1), Obj: op.Root, Key: op.MapKey(idx), Action: op.IncAction(2), Pred: []op.ID{base.ID}}
	base.AddSucc(inc2.ID)
	f.tree.InsertAt(op.Root, len(f.tree.Ops(op.Root)), inc2)

	vals := Prop(f.tree, f.order, f.resolve, op.Root, "score")
	if len(vals) != 1 || vals[0].Value != int64(17) {
		t.Fatalf("expected counter folded to 17, got %v", vals)
	}

	overwrite := &op.Op{ID: f.id(0, 3), Obj: op.Root, Key: op.MapKey(idx), Action: op.SetAction(op.ScalarOf("reset")), Pred: []op.ID{base.ID}}
	base.AddSucc(overwrite.ID)
	f.tree.InsertAt(op.Root, len(f.tree.Ops(op.Root)), overwrite)

	vals = Prop(f.tree, f.order, f.resolve, op.Root, "score")
	if len(vals) != 1 || vals[0].Value != "reset" {
		t.Fatalf("expected counter superseded by the conflicting set's own value, got %v", vals)
	}
}

func TestPropAtHonoursHistoricalClock(t *testing.T) {
	f := newFixture()
	idx := f.keys.Intern("name")
	first := &op.Op{ID: f.id(0, 1), Obj: op.Root, Key: op.MapKey(idx), Action: op.SetAction(op.ScalarOf("alice"))}
	f.tree.InsertAt(op.Root, 0, first)
	clockBefore := op.Clock{0: 1}

	second := &op.Op{ID: f.id(0, 2), Obj: op.Root, Key: op.MapKey(idx), Action: op.SetAction(op.ScalarOf("bob")), Pred: []op.ID{first.ID}}
	first.AddSucc(second.ID)
	f.tree.InsertAt(op.Root, 1, second)

	valsNow := Prop(f.tree, f.order, f.resolve, op.Root, "name")
	if len(valsNow) != 1 || valsNow[0].Value != "bob" {
		t.Fatalf("expected current value 'bob', got %v", valsNow)
	}

	valsThen := PropAt(f.tree, f.order, f.resolve, op.Root, "name", clockBefore)
	if len(valsThen) != 1 || valsThen[0].Value != "alice" {
		t.Fatalf("expected historical value 'alice' at clock before the second write, got %v", valsThen)
	}
}
