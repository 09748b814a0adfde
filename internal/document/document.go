// Package document implements the document façade of spec §4.8: the
// single entry point wrapping the interned caches, op tree, and
// history, exposing the mutation shortcuts, historical reads,
// persistence, and sync operations a caller uses instead of touching
// the lower layers directly.
//
// A Document is not safe for concurrent mutation (spec §5): it follows
// the same single-threaded cooperative model as every layer beneath
// it, grounded throughout on the teacher's synchronous, lock-free
// command handlers in cmd/bd.
package document

import (
	"strings"
	"time"

	"github.com/localfirst/crdtdoc/internal/actorid"
	"github.com/localfirst/crdtdoc/internal/change"
	"github.com/localfirst/crdtdoc/internal/docerr"
	"github.com/localfirst/crdtdoc/internal/history"
	"github.com/localfirst/crdtdoc/internal/op"
	"github.com/localfirst/crdtdoc/internal/optree"
	"github.com/localfirst/crdtdoc/internal/query"
	"github.com/localfirst/crdtdoc/internal/txn"
)

// Hash identifies a change, as exposed by the sync operations.
type Hash = change.Hash

// Value is one (possibly conflicting) value at a key or list position,
// re-exported from internal/query for callers that only import document.
type Value = query.Value

// Document owns one replica's view of a CRDT document: its interned
// actor/key caches, its op tree, and its history. All mutation and
// read operations go through it (spec §5 "owned by the document and
// mutated only through it").
type Document struct {
	actors *actorid.Cache[actorid.ActorID]
	keys   *actorid.Cache[string]
	order  op.Order
	tree   *optree.OpTree
	hist   *history.History
	self   int
}

// New creates an empty document owned by actor self.
func New(self actorid.ActorID) *Document {
	actors := actorid.NewCache[actorid.ActorID]()
	selfIdx := actors.Intern(self)
	order := op.Order{Actors: actors}
	return &Document{
		actors: actors,
		keys:   actorid.NewCache[string](),
		order:  order,
		tree:   optree.New(order),
		hist:   history.New(),
		self:   selfIdx,
	}
}

func (d *Document) resolveKey(idx int) string { return d.keys.Value(idx) }

// Actor returns the local actor identity, or "" if the document was
// created via Fork and has not yet had SetActor called.
func (d *Document) Actor() actorid.ActorID {
	if d.self < 0 {
		return ""
	}
	return d.actors.Value(d.self)
}

// ActorAt resolves a change's ActorIdx back to the actor identity it
// was interned from, for display purposes (e.g. docctl log).
func (d *Document) ActorAt(idx int) actorid.ActorID {
	return d.actors.Value(idx)
}

// SetActor assigns the local actor identity. Required exactly once on
// a Document returned by Fork, whose actor identity starts cleared
// (spec §4.8 fork: "deep copy with actor cleared, the new owner must
// pick one"); calling it on a document that already has an actor is a
// programming error.
func (d *Document) SetActor(id actorid.ActorID) error {
	if d.self >= 0 {
		return docerr.Fail("document already has an actor identity")
	}
	d.self = d.actors.Intern(id)
	return nil
}

func (d *Document) requireActor() error {
	if d.self < 0 {
		return docerr.Fail("document has no actor identity; call SetActor first")
	}
	return nil
}

// beginTxn opens a transaction stamped with the current frontier as
// its dependencies (spec §5: "the change's deps is exactly the
// frontier at tx() time").
func (d *Document) beginTxn() *txn.Transaction {
	seq := d.hist.SeqCount(d.self) + 1
	startOp := d.hist.MaxOp() + 1
	return txn.New(d.tree, d.order, d.keys, d.self, seq, startOp, d.hist.Len(), d.hist.Heads())
}

// finish commits a non-empty transaction and records the resulting
// change in history, or rolls back and reports no-op for an empty one
// (spec §4.4 edge case: a Set that changes nothing produces no change).
func (d *Document) finish(tx *txn.Transaction) (*change.Change, error) {
	if tx.Empty() {
		tx.Rollback()
		return nil, nil
	}
	c, err := tx.Commit(d.actors, time.Now().UnixNano())
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	d.hist.Record(c)
	return c, nil
}

// elemAt resolves a 0-based list/text index to the element id a new
// insert should anchor after: Head for index 0, otherwise the element
// id reported by the preceding visible position.
func (d *Document) elemAt(list op.ObjID, index int, clock op.Clock) (op.ElemID, error) {
	if index == 0 {
		return op.Head, nil
	}
	v, ok := query.NthAt(d.tree, d.order, list, index-1, clock)
	if !ok {
		return op.ElemID{}, docerr.Fail("list index out of range")
	}
	return v.Elem, nil
}

// elemOf resolves a 0-based index to the element id of the element
// itself (for update/delete, not insert-after).
func (d *Document) elemOf(list op.ObjID, index int, clock op.Clock) (op.ElemID, error) {
	v, ok := query.NthAt(d.tree, d.order, list, index, clock)
	if !ok {
		return op.ElemID{}, docerr.Fail("list index out of range")
	}
	return v.Elem, nil
}

// ---- Mutation shortcuts (spec §4.8) ----

// Set writes a scalar at obj's map key. ok is false when the value
// already equals the current winning value, in which case no new
// operation or change is produced (spec §8 scenario S1).
func (d *Document) Set(obj op.ObjID, key string, v interface{}) (op.ID, bool, error) {
	if err := d.requireActor(); err != nil {
		return op.ID{}, false, err
	}
	tx := d.beginTxn()
	id, ok := tx.Set(obj, key, op.ScalarOf(v))
	if !ok {
		tx.Rollback()
		return op.ID{}, false, nil
	}
	if _, err := d.finish(tx); err != nil {
		return op.ID{}, false, err
	}
	return id, true, nil
}

// SetCounter writes a Counter(v0) scalar at obj's map key (spec §3.2:
// Set(Counter) establishes the base an Inc accumulates against). Set
// cannot express this itself since it takes a plain interface{} value.
func (d *Document) SetCounter(obj op.ObjID, key string, v0 int64) (op.ID, bool, error) {
	if err := d.requireActor(); err != nil {
		return op.ID{}, false, err
	}
	tx := d.beginTxn()
	id, ok := tx.Set(obj, key, op.CounterScalar(v0))
	if !ok {
		tx.Rollback()
		return op.ID{}, false, nil
	}
	if _, err := d.finish(tx); err != nil {
		return op.ID{}, false, err
	}
	return id, true, nil
}

// MakeObject creates a nested map/list/text/table object at obj's map
// key. This is the plumbing the six named façade operations rely on
// to grow the object graph; the spec's shorthand list names only the
// leaf read/write operations, but creating nested objects is implied
// by every scenario that uses one (S2, S3).
func (d *Document) MakeObject(obj op.ObjID, key string, kind op.Kind) (op.ObjID, error) {
	if err := d.requireActor(); err != nil {
		return op.ObjID{}, err
	}
	tx := d.beginTxn()
	id := tx.MakeObject(obj, key, kind)
	if _, err := d.finish(tx); err != nil {
		return op.ObjID{}, err
	}
	return id, nil
}

// Del deletes the current value(s) at obj's map key.
func (d *Document) Del(obj op.ObjID, key string) error {
	if err := d.requireActor(); err != nil {
		return err
	}
	tx := d.beginTxn()
	tx.Del(obj, key)
	_, err := d.finish(tx)
	return err
}

// Inc increments a counter at obj's map key by delta (spec §8 S4).
func (d *Document) Inc(obj op.ObjID, key string, delta int64) error {
	if err := d.requireActor(); err != nil {
		return err
	}
	tx := d.beginTxn()
	tx.Inc(obj, key, delta)
	_, err := d.finish(tx)
	return err
}

// Insert inserts a scalar value into a list at index, shifting nothing
// (RGA insertion is purely additive): the new element becomes visible
// at that position immediately (spec §8 S2).
func (d *Document) Insert(list op.ObjID, index int, v interface{}) (op.ElemID, error) {
	if err := d.requireActor(); err != nil {
		return op.ElemID{}, err
	}
	after, err := d.elemAt(list, index, nil)
	if err != nil {
		return op.ElemID{}, err
	}
	tx := d.beginTxn()
	id := tx.InsertScalar(list, after, op.ScalarOf(v))
	if _, err := d.finish(tx); err != nil {
		return op.ElemID{}, err
	}
	return id, nil
}

// InsertObject inserts a nested object into a list at index.
func (d *Document) InsertObject(list op.ObjID, index int, kind op.Kind) (op.ElemID, op.ObjID, error) {
	if err := d.requireActor(); err != nil {
		return op.ElemID{}, op.ObjID{}, err
	}
	after, err := d.elemAt(list, index, nil)
	if err != nil {
		return op.ElemID{}, op.ObjID{}, err
	}
	tx := d.beginTxn()
	elem, obj := tx.InsertObject(list, after, kind)
	if _, err := d.finish(tx); err != nil {
		return op.ElemID{}, op.ObjID{}, err
	}
	return elem, obj, nil
}

// DelAt deletes the list/text element currently visible at index.
func (d *Document) DelAt(list op.ObjID, index int) error {
	if err := d.requireActor(); err != nil {
		return err
	}
	elem, err := d.elemOf(list, index, nil)
	if err != nil {
		return err
	}
	tx := d.beginTxn()
	tx.DelAt(list, elem)
	_, err = d.finish(tx)
	return err
}

// Splice inserts values into a list immediately after index-1 (Head
// when index is 0), each anchored to the previous, returning their
// element ids in order.
func (d *Document) Splice(list op.ObjID, index int, values []interface{}) ([]op.ElemID, error) {
	if err := d.requireActor(); err != nil {
		return nil, err
	}
	after, err := d.elemAt(list, index, nil)
	if err != nil {
		return nil, err
	}
	scalars := make([]op.Scalar, len(values))
	for i, v := range values {
		scalars[i] = op.ScalarOf(v)
	}
	tx := d.beginTxn()
	ids := tx.Splice(list, after, scalars)
	if _, err := d.finish(tx); err != nil {
		return nil, err
	}
	return ids, nil
}

// SpliceText inserts s into a text object immediately after index-1,
// one character at a time, matching the RGA text model where each
// character is its own addressable element (spec §8 S3).
func (d *Document) SpliceText(text op.ObjID, index int, s string) ([]op.ElemID, error) {
	values := make([]interface{}, 0, len(s))
	for _, r := range s {
		values = append(values, string(r))
	}
	return d.Splice(text, index, values)
}

// ---- Reads (spec §4.8) and their historical "_At" forms ----

// Keys returns obj's map keys that currently have a visible value.
func (d *Document) Keys(obj op.ObjID) []string {
	return query.Keys(d.tree, d.resolveKey, obj)
}

// KeysAt is the historical form of Keys, as of heads.
func (d *Document) KeysAt(obj op.ObjID, heads []Hash) []string {
	return query.KeysAt(d.tree, d.resolveKey, obj, d.hist.ClockAt(heads))
}

// Value returns the single winning value at obj's map key and the op
// id that established it (spec §8 S1: "value(root, 'a') = (1, opid)").
func (d *Document) Value(obj op.ObjID, key string) (interface{}, op.ID, bool) {
	return pickWinner(query.Prop(d.tree, d.order, d.resolveKey, obj, key))
}

// ValueAt is the historical form of Value, as of heads.
func (d *Document) ValueAt(obj op.ObjID, key string, heads []Hash) (interface{}, op.ID, bool) {
	clock := d.hist.ClockAt(heads)
	return pickWinner(query.PropAt(d.tree, d.order, d.resolveKey, obj, key, clock))
}

func pickWinner(vals []Value) (interface{}, op.ID, bool) {
	if len(vals) == 0 {
		return nil, op.ID{}, false
	}
	w := vals[len(vals)-1]
	return w.Value, w.Op.ID, true
}

// Values returns every currently visible value at obj's map key: more
// than one entry is a concurrent conflict, which spec §7 treats as
// first-class rather than an error.
func (d *Document) Values(obj op.ObjID, key string) []Value {
	return query.Prop(d.tree, d.order, d.resolveKey, obj, key)
}

// ValuesAt is the historical form of Values, as of heads.
func (d *Document) ValuesAt(obj op.ObjID, key string, heads []Hash) []Value {
	return query.PropAt(d.tree, d.order, d.resolveKey, obj, key, d.hist.ClockAt(heads))
}

// Length returns the number of currently visible elements of a
// list/text object.
func (d *Document) Length(obj op.ObjID) int {
	return query.Len(d.tree, d.order, obj)
}

// LengthAt is the historical form of Length, as of heads (spec §8 S6).
func (d *Document) LengthAt(obj op.ObjID, heads []Hash) int {
	return query.LenAt(d.tree, d.order, obj, d.hist.ClockAt(heads))
}

// ListValues returns the winning value at each currently visible
// position of a list/text object, in order.
func (d *Document) ListValues(obj op.ObjID) []Value {
	return query.ListVals(d.tree, d.order, obj)
}

// ListValuesAt is the historical form of ListValues, as of heads.
func (d *Document) ListValuesAt(obj op.ObjID, heads []Hash) []Value {
	return query.ListValsAt(d.tree, d.order, obj, d.hist.ClockAt(heads))
}

// Text concatenates the winning values of a text object's elements
// into a string.
func (d *Document) Text(obj op.ObjID) string {
	return joinText(query.ListVals(d.tree, d.order, obj))
}

// TextAt is the historical form of Text, as of heads (spec §8 S3).
func (d *Document) TextAt(obj op.ObjID, heads []Hash) string {
	return joinText(query.ListValsAt(d.tree, d.order, obj, d.hist.ClockAt(heads)))
}

func joinText(vals []Value) string {
	var b strings.Builder
	for _, v := range vals {
		if s, ok := v.Value.(string); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}

// ---- Sync (spec §4.8) ----

// GetHeads returns the document's current frontier.
func (d *Document) GetHeads() []Hash { return d.hist.Heads() }

// GetMissingDeps returns the dependencies referenced by heads or by
// queued changes that this document has neither recorded nor queued.
func (d *Document) GetMissingDeps(heads []Hash) []Hash { return d.hist.GetMissingDeps(heads) }

// GetChanges returns the changes in history not implied by haveDeps.
func (d *Document) GetChanges(haveDeps []Hash) []*change.Change { return d.hist.GetChanges(haveDeps) }

// GetChangesAdded returns the changes reachable from otherHeads (via
// otherLookup, since they may not belong to this document) that this
// document does not already have.
func (d *Document) GetChangesAdded(otherHeads []Hash, otherLookup func(Hash) (*change.Change, bool)) []*change.Change {
	return d.hist.ChangesAddedBy(otherHeads, otherLookup)
}

// installChange installs one already-decoded change's operations into
// the op tree. Per the Open Question decision recorded in DESIGN.md,
// placement and pred/succ are always recomputed from the currently
// visible state via query.Seek rather than trusted from the change's
// decoded Pred fields: causal-readiness already guarantees they agree,
// and recomputing avoids a second placement code path.
func (d *Document) installChange(c *change.Change, changeIdx int) error {
	for _, o := range c.Ops {
		o.Change = changeIdx
		place := query.Seek(d.tree, d.order, d.resolveKey, o.Obj, o)
		o.Pred = nil
		for _, p := range place.Pred {
			p.AddSucc(o.ID)
			o.Pred = append(o.Pred, p.ID)
		}
		if !o.Action.IsDel() {
			d.tree.InsertAt(o.Obj, place.Pos, o)
		}
	}
	return nil
}

// ApplyChanges runs changes through the causal-readiness ingestion
// pipeline (spec §4.5): causally-ready changes install immediately,
// the rest queue until their dependencies arrive.
func (d *Document) ApplyChanges(changes []*change.Change) error {
	install := func(c *change.Change) error {
		return d.installChange(c, d.hist.Len())
	}
	return d.hist.AddBatch(changes, install)
}

// Merge pulls every change from other that this document does not
// already have and applies it. Symmetric convergence (spec §8 S5)
// requires calling Merge on both documents; Merge never mutates other.
func (d *Document) Merge(other *Document) error {
	changes := other.hist.GetChanges(d.hist.Heads())
	local := make([]*change.Change, 0, len(changes))
	for _, c := range changes {
		lc, err := change.Decode(c.Raw, d.actors, d.keys)
		if err != nil {
			return err
		}
		local = append(local, lc)
	}
	return d.ApplyChanges(local)
}

// ---- Persistence (spec §4.8, §6) ----

// Save encodes every recorded change into a single byte blob and
// advances the incremental-save watermark, so a subsequent
// SaveIncremental only returns changes recorded after this call.
func (d *Document) Save() ([]byte, error) {
	data, err := encodeChangeLog(d.hist.All())
	if err != nil {
		return nil, err
	}
	d.hist.AdvanceWatermark()
	return data, nil
}

// SaveIncremental encodes every change recorded since the last Save or
// SaveIncremental call, and advances the watermark on success (spec
// §5: "save_incremental reads and updates the persisted-frontier
// watermark on success").
func (d *Document) SaveIncremental() ([]byte, error) {
	data, err := encodeChangeLog(d.hist.SinceWatermark())
	if err != nil {
		return nil, err
	}
	d.hist.AdvanceWatermark()
	return data, nil
}

// LoadIncremental decodes a blob produced by Save or SaveIncremental
// and applies its changes to this document (spec §8 incremental
// equivalence).
func (d *Document) LoadIncremental(data []byte) error {
	raws, err := decodeChangeLog(data)
	if err != nil {
		return err
	}
	changes := make([]*change.Change, 0, len(raws))
	for _, raw := range raws {
		c, err := change.Decode(raw, d.actors, d.keys)
		if err != nil {
			return err
		}
		changes = append(changes, c)
	}
	return d.ApplyChanges(changes)
}

// Load reconstructs a document from a blob produced by Save, owned by
// actor self.
func Load(data []byte, self actorid.ActorID) (*Document, error) {
	d := New(self)
	if err := d.LoadIncremental(data); err != nil {
		return nil, err
	}
	d.hist.AdvanceWatermark()
	return d, nil
}

// ---- Fork and object-id import/export (spec §4.8) ----

// Fork returns an independent deep copy of the document with its actor
// identity cleared; the caller must call SetActor before mutating it
// (spec §5 "fork produces an independent copy with the actor identity
// cleared").
func (d *Document) Fork() *Document {
	actors := d.actors.Clone()
	order := op.Order{Actors: actors}
	return &Document{
		actors: actors,
		keys:   d.keys.Clone(),
		order:  order,
		tree:   d.tree.Clone(order),
		hist:   d.hist.Clone(),
		self:   -1,
	}
}

// FormatObjID renders obj in the exported string form (spec §6).
func (d *Document) FormatObjID(obj op.ObjID) string { return op.FormatObjID(obj, d.actors) }

// FormatElemID renders elem in the exported string form.
func (d *Document) FormatElemID(elem op.ElemID) string { return op.FormatElemID(elem, d.actors) }

// ParseObjID parses the exported string form of an object id, interning
// its actor bytes if this is the first time they are seen.
func (d *Document) ParseObjID(s string) (op.ObjID, error) { return op.ParseObjID(s, d.actors) }

// ParseElemID parses the exported string form of an element id.
func (d *Document) ParseElemID(s string) (op.ElemID, error) { return op.ParseElemID(s, d.actors) }

// Root is the document root object id, always a map.
var Root = op.Root

// Head is the list/text "before the first element" sentinel.
var Head = op.Head
