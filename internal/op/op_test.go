package op

import (
	"testing"

	"github.com/localfirst/crdtdoc/internal/actorid"
)

func newOrder(t *testing.T, actors ...string) (Order, map[string]int) {
	t.Helper()
	cache := actorid.NewCache[actorid.ActorID]()
	idx := make(map[string]int, len(actors))
	for _, a := range actors {
		idx[a] = cache.Intern(actorid.ActorID(a))
	}
	return Order{Actors: cache}, idx
}

func TestOrderLessByCounterFirst(t *testing.T) {
	ord, idx := newOrder(t, "aaaa", "bbbb")
	x := ID{Counter: 1, Actor: idx["bbbb"]}
	y := ID{Counter: 2, Actor: idx["aaaa"]}
	if !ord.Less(x, y) {
		t.Fatalf("expected lower counter to sort first regardless of actor")
	}
}

func TestOrderTieBreaksOnActorBytes(t *testing.T) {
	ord, idx := newOrder(t, "bbbb", "aaaa") // interned in this order: b=0, a=1
	x := ID{Counter: 5, Actor: idx["bbbb"]}
	y := ID{Counter: 5, Actor: idx["aaaa"]}
	// "aaaa" < "bbbb" lexicographically, regardless of intern order.
	if !ord.Less(y, x) {
		t.Fatalf("expected actor 'aaaa' to sort before 'bbbb' on a counter tie")
	}
	if ord.Compare(x, y) != 1 {
		t.Fatalf("expected Compare(bbbb, aaaa) == 1")
	}
}

func TestAddSuccIsIdempotentAndHidesOp(t *testing.T) {
	o := &Op{ID: ID{Counter: 1, Actor: 0}}
	succ := ID{Counter: 2, Actor: 0}

	o.AddSucc(succ)
	o.AddSucc(succ)

	if len(o.Succ) != 1 {
		t.Fatalf("expected AddSucc to be idempotent, got %d entries", len(o.Succ))
	}
	if o.Visible() {
		t.Fatalf("op with a successor must not be visible")
	}
}

func TestScalarEqual(t *testing.T) {
	a := ScalarOf("hello")
	b := ScalarOf("hello")
	c := ScalarOf("world")
	if !a.Equal(b) {
		t.Fatalf("expected equal scalars to compare equal")
	}
	if a.Equal(c) {
		t.Fatalf("expected different scalars to compare unequal")
	}
	if a.Equal(ScalarOf(int64(1))) {
		t.Fatalf("expected different kinds to compare unequal")
	}
}

func TestCounterScalarInterface(t *testing.T) {
	s := CounterScalar(10)
	if s.Interface().(int64) != 10 {
		t.Fatalf("expected counter scalar to expose its int64 value")
	}
}

func TestFormatParseObjIDRoundTrip(t *testing.T) {
	ord, idx := newOrder(t, "aaaa")
	id := ID{Counter: 7, Actor: idx["aaaa"]}

	s := FormatObjID(id, ord.Actors)
	back, err := ParseObjID(s, ord.Actors)
	if err != nil {
		t.Fatalf("ParseObjID: %v", err)
	}
	if back.Counter != id.Counter || ord.Actors.Value(back.Actor) != ord.Actors.Value(id.Actor) {
		t.Fatalf("round trip mismatch: got %v, want %v", back, id)
	}
}

func TestFormatObjIDRootSentinel(t *testing.T) {
	ord, _ := newOrder(t)
	if got := FormatObjID(Root, ord.Actors); got != "_root" {
		t.Fatalf("expected _root, got %q", got)
	}
	if got := FormatElemID(Head, ord.Actors); got != "_head" {
		t.Fatalf("expected _head, got %q", got)
	}
}

func TestParseObjIDRejectsMalformed(t *testing.T) {
	ord, _ := newOrder(t)
	if _, err := ParseObjID("not-a-valid-id", ord.Actors); err == nil {
		t.Fatalf("expected an error for a malformed object id")
	}
}
