// Package change implements the Change record of spec §3.4: a causally
// tagged batch of operations from one actor, plus the conversion to and
// from the wire form internal/codec hashes and persists.
package change

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/localfirst/crdtdoc/internal/actorid"
	"github.com/localfirst/crdtdoc/internal/codec"
	"github.com/localfirst/crdtdoc/internal/op"
)

// Hash is a change's content digest.
type Hash = codec.Hash

// Change is one causally-tagged batch of operations (spec §3.4).
type Change struct {
	ActorIdx int
	Seq      uint64
	StartOp  uint64
	Time     time.Time
	Message  string
	Deps     []Hash
	Ops      []*op.Op
	Hash     Hash
	// Raw is the canonical encoded form, preserved so SaveIncremental can
	// concatenate already-hashed bytes without re-encoding (spec §6).
	Raw []byte
}

// HasDep reports whether h is among c's direct dependencies.
func (c *Change) HasDep(h Hash) bool {
	for _, d := range c.Deps {
		if d == h {
			return true
		}
	}
	return false
}

// Encode canonically encodes c using actors/keys to export its
// actor-index and map-key references, stamping c.Hash and c.Raw.
func Encode(c *Change, actors *actorid.Cache[actorid.ActorID], keys *actorid.Cache[string]) error {
	wc := codec.WireChange{
		Actor:   actors.Value(c.ActorIdx).Hex(),
		Seq:     c.Seq,
		StartOp: c.StartOp,
		Time:    c.Time.UnixNano(),
		Message: c.Message,
		Deps:    sortedHashStrings(c.Deps),
	}
	for _, o := range c.Ops {
		wo, err := toWireOp(o, actors, keys)
		if err != nil {
			return err
		}
		wc.Ops = append(wc.Ops, wo)
	}
	raw, hash, err := codec.Encode(wc)
	if err != nil {
		return err
	}
	c.Raw = raw
	c.Hash = hash
	return nil
}

// Decode parses a single encoded change, interning any actor/map-key
// references it introduces into actors/keys. Each op's id is assigned
// from StartOp and the op's position in the change.
func Decode(raw []byte, actors *actorid.Cache[actorid.ActorID], keys *actorid.Cache[string]) (*Change, error) {
	wc, err := codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	actorID, err := actorid.ParseHex(wc.Actor)
	if err != nil {
		return nil, fmt.Errorf("change: bad actor: %w", err)
	}
	c := &Change{
		ActorIdx: actors.Intern(actorID),
		Seq:      wc.Seq,
		StartOp:  wc.StartOp,
		Time:     time.Unix(0, wc.Time).UTC(),
		Message:  wc.Message,
		Raw:      raw,
	}
	_, c.Hash, _ = codec.Encode(wc)
	for _, d := range wc.Deps {
		h, err := ParseHash(d)
		if err != nil {
			return nil, err
		}
		c.Deps = append(c.Deps, h)
	}
	for i, wo := range wc.Ops {
		o, err := fromWireOp(wo, actors, keys)
		if err != nil {
			return nil, err
		}
		o.ID = op.ID{Counter: c.StartOp + uint64(i), Actor: c.ActorIdx}
		c.Ops = append(c.Ops, o)
	}
	return c, nil
}

func toWireOp(o *op.Op, actors *actorid.Cache[actorid.ActorID], keys *actorid.Cache[string]) (codec.WireOp, error) {
	wo := codec.WireOp{
		Counter: o.ID.Counter,
		Obj:     op.FormatObjID(o.Obj, actors),
		IsSeq:   o.Key.Kind == op.KeySeq,
		Insert:  o.Insert,
		Action:  byte(o.Action.Kind),
	}
	if o.Key.Kind == op.KeyMap {
		wo.MapKey = keys.Value(o.Key.MapKeyIdx)
	} else {
		wo.SeqElem = op.FormatElemID(o.Key.Elem, actors)
	}
	switch o.Action.Kind {
	case op.ActionMake:
		wo.MakeKind = byte(o.Action.Make)
	case op.ActionSet:
		wo.ScalarKind = byte(o.Action.Set.Kind)
		wo.ScalarBool = o.Action.Set.B
		wo.ScalarInt = o.Action.Set.I
		wo.ScalarFloat = o.Action.Set.F
		wo.ScalarStr = o.Action.Set.S
		wo.ScalarBin = o.Action.Set.Bin
	case op.ActionInc:
		wo.IncDelta = o.Action.IncDelta
	}
	for _, p := range o.Pred {
		wo.Pred = append(wo.Pred, op.FormatObjID(p, actors))
	}
	return wo, nil
}

func fromWireOp(wo codec.WireOp, actors *actorid.Cache[actorid.ActorID], keys *actorid.Cache[string]) (*op.Op, error) {
	obj, err := op.ParseObjID(wo.Obj, actors)
	if err != nil {
		return nil, err
	}
	o := &op.Op{Obj: obj, Insert: wo.Insert}
	if wo.IsSeq {
		elem, err := op.ParseElemID(wo.SeqElem, actors)
		if err != nil {
			return nil, err
		}
		o.Key = op.SeqKey(elem)
	} else {
		o.Key = op.MapKey(keys.Intern(wo.MapKey))
	}
	switch op.ActionKind(wo.Action) {
	case op.ActionMake:
		o.Action = op.MakeAction(op.Kind(wo.MakeKind))
	case op.ActionSet:
		o.Action = op.SetAction(op.Scalar{
			Kind: op.ScalarKind(wo.ScalarKind),
			B:    wo.ScalarBool,
			I:    wo.ScalarInt,
			F:    wo.ScalarFloat,
			S:    wo.ScalarStr,
			Bin:  wo.ScalarBin,
		})
	case op.ActionInc:
		o.Action = op.IncAction(wo.IncDelta)
	case op.ActionDel:
		o.Action = op.DelAction()
	}
	for _, p := range wo.Pred {
		id, err := op.ParseObjID(p, actors)
		if err != nil {
			return nil, err
		}
		o.Pred = append(o.Pred, id)
	}
	return o, nil
}

func sortedHashStrings(hs []Hash) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = HashString(h)
	}
	sort.Strings(out)
	return out
}

func HashString(h Hash) string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses the hex form produced by HashString.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return Hash{}, fmt.Errorf("change: bad dep hash %q", s)
	}
	copy(h[:], b)
	return h, nil
}
