// Package op defines the operation record — the atomic, immutable unit of
// change in the document (spec §3.2) — and the Lamport total order over op
// ids (spec §3.1).
package op

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/localfirst/crdtdoc/internal/actorid"
	"github.com/localfirst/crdtdoc/internal/docerr"
)

// ID is an operation id: the pair (counter, actor index) from spec §3.1.
// Actor is a dense index into the document's actor cache, not the raw
// actor bytes; ordering that needs to break ties on actor identity must
// go through an Order, which knows how to resolve indices back to bytes.
type ID struct {
	Counter uint64
	Actor   int
}

// Zero reports whether id is the zero value, used internally before a
// real id is assigned to it.
func (id ID) Zero() bool {
	return id.Counter == 0 && id.Actor == 0
}

// Root is the sentinel ObjID of the document root, which is always a map.
var Root = ID{}

// Head is the sentinel ElemID meaning "before the first element" of a
// list or text object.
var Head = ID{}

// ObjID identifies the object an operation targets: either Root or the id
// of the operation that created the object.
type ObjID = ID

// ElemID identifies a list/text element: either Head or the id of the
// operation that first inserted the element.
type ElemID = ID

// Clock maps actor index to the greatest op counter observed at some
// historical frontier (spec §4.4 "At clock" visibility). A nil or empty
// Clock covers nothing; current-state reads use nil and visibility
// degenerates to "no successors".
type Clock map[int]uint64

// Covers reports whether id was already visible at the frontier this
// clock describes.
func (c Clock) Covers(id ID) bool {
	if c == nil {
		return false
	}
	return id.Counter <= c[id.Actor]
}

// Observe records that counter is the highest seen so far for actor,
// growing the clock monotonically.
func (c Clock) Observe(actor int, counter uint64) {
	if cur, ok := c[actor]; !ok || counter > cur {
		c[actor] = counter
	}
}

// IsRoot reports whether obj is the document root sentinel.
func IsRoot(obj ObjID) bool { return obj == Root }

// IsHead reports whether elem is the HEAD sentinel.
func IsHead(elem ElemID) bool { return elem == Head }

// Order resolves the Lamport total order on op ids (spec §3.1): primarily
// by counter, tie-broken by byte-lexicographic comparison of the
// *uninterned* actor bytes. It is a thin view over the document's actor
// cache and holds no state of its own.
type Order struct {
	Actors *actorid.Cache[actorid.ActorID]
}

// Less reports whether a sorts strictly before b in Lamport order.
func (o Order) Less(a, b ID) bool {
	if a.Counter != b.Counter {
		return a.Counter < b.Counter
	}
	if a.Actor == b.Actor {
		return false
	}
	return o.Actors.Value(a.Actor) < o.Actors.Value(b.Actor)
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater
// than b in Lamport order.
func (o Order) Compare(a, b ID) int {
	if a == b {
		return 0
	}
	if o.Less(a, b) {
		return -1
	}
	return 1
}

// KeyKind distinguishes a map-keyed operation from a sequence-keyed one.
type KeyKind int

const (
	KeyMap KeyKind = iota
	KeySeq
)

// Key is the target key of an operation within its object: either an
// interned map-key string index, or the element id of the list/text
// element being targeted (spec §3.2).
type Key struct {
	Kind KeyKind
	// MapKeyIdx is valid when Kind == KeyMap: the index into the
	// document's map-key string cache.
	MapKeyIdx int
	// Elem is valid when Kind == KeySeq: the targeted element id, or
	// Head to mean "insert at the beginning".
	Elem ElemID
}

// MapKey builds a map-keyed Key from an interned string index.
func MapKey(idx int) Key { return Key{Kind: KeyMap, MapKeyIdx: idx} }

// SeqKey builds a sequence-keyed Key targeting elem.
func SeqKey(elem ElemID) Key { return Key{Kind: KeySeq, Elem: elem} }

// Kind is the object variant created by a Make action.
type Kind int

const (
	KindMap Kind = iota
	KindTable
	KindList
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindTable:
		return "table"
	case KindList:
		return "list"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// ScalarKind is the type tag of a Set action's value.
type ScalarKind int

const (
	ScalarNull ScalarKind = iota
	ScalarBool
	ScalarInt
	ScalarFloat
	ScalarString
	ScalarBytes
	ScalarCounter
	ScalarTimestamp
)

// Scalar is a leaf value that can be written by a Set action. Exactly one
// of the typed fields is meaningful, selected by Kind.
type Scalar struct {
	Kind ScalarKind
	B    bool
	I    int64
	F    float64
	S    string
	Bin  []byte
}

func ScalarOf(v interface{}) Scalar {
	switch t := v.(type) {
	case nil:
		return Scalar{Kind: ScalarNull}
	case bool:
		return Scalar{Kind: ScalarBool, B: t}
	case int:
		return Scalar{Kind: ScalarInt, I: int64(t)}
	case int64:
		return Scalar{Kind: ScalarInt, I: t}
	case float64:
		return Scalar{Kind: ScalarFloat, F: t}
	case string:
		return Scalar{Kind: ScalarString, S: t}
	case []byte:
		return Scalar{Kind: ScalarBytes, Bin: t}
	default:
		return Scalar{Kind: ScalarString, S: ""}
	}
}

// CounterScalar builds the Set(Counter(v0)) scalar spec §3.2 describes.
func CounterScalar(v0 int64) Scalar {
	return Scalar{Kind: ScalarCounter, I: v0}
}

// Interface returns the scalar's value as a plain Go value, the form
// handed back to callers of Document read operations.
func (s Scalar) Interface() interface{} {
	switch s.Kind {
	case ScalarNull:
		return nil
	case ScalarBool:
		return s.B
	case ScalarInt, ScalarCounter, ScalarTimestamp:
		return s.I
	case ScalarFloat:
		return s.F
	case ScalarString:
		return s.S
	case ScalarBytes:
		return s.Bin
	default:
		return nil
	}
}

// Equal reports whether two scalars carry the same value, used by
// Document.Set's no-op short-circuit (spec §4.4 edge cases).
func (s Scalar) Equal(o Scalar) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case ScalarNull:
		return true
	case ScalarBool:
		return s.B == o.B
	case ScalarInt, ScalarCounter, ScalarTimestamp:
		return s.I == o.I
	case ScalarFloat:
		return s.F == o.F
	case ScalarString:
		return s.S == o.S
	case ScalarBytes:
		return string(s.Bin) == string(o.Bin)
	}
	return false
}

// ActionKind is the closed set of operation actions (spec §3.2, §9
// "closed variant type").
type ActionKind int

const (
	ActionMake ActionKind = iota
	ActionSet
	ActionInc
	ActionDel
)

// Action is the closed variant of what an operation does. Exactly the
// fields relevant to Kind are meaningful.
type Action struct {
	Kind ActionKind
	// Make is valid when Kind == ActionMake.
	Make Kind
	// Set is valid when Kind == ActionSet.
	Set Scalar
	// IncDelta is valid when Kind == ActionInc.
	IncDelta int64
}

func MakeAction(k Kind) Action        { return Action{Kind: ActionMake, Make: k} }
func SetAction(v Scalar) Action       { return Action{Kind: ActionSet, Set: v} }
func IncAction(delta int64) Action    { return Action{Kind: ActionInc, IncDelta: delta} }
func DelAction() Action               { return Action{Kind: ActionDel} }
func (a Action) IsMake() bool         { return a.Kind == ActionMake }
func (a Action) IsDel() bool          { return a.Kind == ActionDel }
func (a Action) IsInc() bool          { return a.Kind == ActionInc }
func (a Action) IsSet() bool          { return a.Kind == ActionSet }
func (a Action) IsInsertable() bool   { return true }

// Op is the immutable (aside from Succ) description of one CRDT action
// (spec §3.2).
type Op struct {
	ID     ID
	Change int // index into the document's history
	Obj    ObjID
	Key    Key
	Action Action
	// Pred holds the op ids this op overwrites/deletes: the prior
	// visible operations at the same (Obj, Key) when this op was
	// created.
	Pred []ID
	// Insert is only meaningful for list/text ops: true means this op
	// inserts a new element (whose element id equals ID) rather than
	// modifying an existing one.
	Insert bool
	// Succ holds the op ids that supersede this one, the inverse of
	// Pred (spec §3.2 invariant). It is the one mutable field and is
	// maintained as later operations are inserted.
	Succ []ID
}

// Visible reports whether op currently contributes to the document under
// plain (non-counter) visibility rules: no successor at all.
func (o *Op) Visible() bool {
	return len(o.Succ) == 0
}

// HasSucc reports whether id is already recorded in o.Succ.
func (o *Op) HasSucc(id ID) bool {
	for _, s := range o.Succ {
		if s == id {
			return true
		}
	}
	return false
}

// AddSucc records id as a new successor of o, preserving the pred/succ
// symmetry invariant (spec §3.2). It is idempotent.
func (o *Op) AddSucc(id ID) {
	if !o.HasSucc(id) {
		o.Succ = append(o.Succ, id)
	}
}

// HasPred reports whether id appears in o.Pred.
func (o *Op) HasPred(id ID) bool {
	for _, p := range o.Pred {
		if p == id {
			return true
		}
	}
	return false
}

// ElemID returns the element id this op establishes when it is an
// inserting list/text operation: its own id.
func (o *Op) ElemID() ElemID {
	return o.ID
}

// FormatObjID renders an object id in the exported string form of spec
// §6: "_root" for the document root, otherwise "<counter>@<hex(actor
// bytes)>".
func FormatObjID(id ObjID, actors *actorid.Cache[actorid.ActorID]) string {
	return formatID(id, actors, "_root")
}

// FormatElemID renders an element id the same way, using "_head" for
// the HEAD sentinel.
func FormatElemID(id ElemID, actors *actorid.Cache[actorid.ActorID]) string {
	return formatID(id, actors, "_head")
}

func formatID(id ID, actors *actorid.Cache[actorid.ActorID], zeroName string) string {
	if id.Zero() {
		return zeroName
	}
	actor := actors.Value(id.Actor)
	return fmt.Sprintf("%d@%s", id.Counter, actor.Hex())
}

// ParseObjID parses the exported form of FormatObjID, interning the
// actor bytes into actors if this is the first time they are seen.
func ParseObjID(s string, actors *actorid.Cache[actorid.ActorID]) (ObjID, error) {
	return parseID(s, actors, "_root")
}

// ParseElemID parses the exported form of FormatElemID.
func ParseElemID(s string, actors *actorid.Cache[actorid.ActorID]) (ElemID, error) {
	return parseID(s, actors, "_head")
}

func parseID(s string, actors *actorid.Cache[actorid.ActorID], zeroName string) (ID, error) {
	if s == zeroName {
		return ID{}, nil
	}
	counterStr, hexActor, ok := strings.Cut(s, "@")
	if !ok {
		return ID{}, docerr.InvalidOpID(s)
	}
	counter, err := strconv.ParseUint(counterStr, 10, 64)
	if err != nil {
		return ID{}, docerr.InvalidOpID(s)
	}
	actor, err := actorid.ParseHex(hexActor)
	if err != nil || len(actor) == 0 {
		return ID{}, docerr.InvalidOpID(s)
	}
	return ID{Counter: counter, Actor: actors.Intern(actor)}, nil
}
