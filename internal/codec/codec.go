// Package codec is the canonical-encoding collaborator spec §6 treats as
// an opaque external boundary: "decode(bytes) -> Change records",
// "encode(...) -> bytes", same logical state always producing identical
// bytes. A production codec (columnar op streams, a real container
// format) is explicitly out of scope (spec §1); this is a minimal
// stand-in sufficient to produce stable change hashes and persisted
// bytes. No library in the retrieval pack offers a ready deterministic
// structured codec without running code generation this exercise
// forbids (protobuf/flatbuffers appear only as transitive dolt
// dependencies, pulled in by generated bindings we cannot regenerate),
// so this hand-rolled length-prefixed binary form is used instead — see
// DESIGN.md.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Hash is a change's 32-byte content digest (spec §3.1).
type Hash [32]byte

// WireOp is the exported, actor-index-free form of an operation: object
// and predecessor references are the §6 exported id strings so a
// change is meaningful independent of any one document's interned
// indices.
type WireOp struct {
	Counter  uint64
	Obj      string
	IsSeq    bool
	MapKey   string
	SeqElem  string
	Insert   bool
	Action   byte // mirrors op.ActionKind
	MakeKind byte // mirrors op.Kind, valid when Action == make
	ScalarKind byte // mirrors op.ScalarKind, valid when Action == set
	ScalarBool bool
	ScalarInt  int64
	ScalarFloat float64
	ScalarStr  string
	ScalarBin  []byte
	IncDelta   int64
	Pred       []string
}

// WireChange is the exported form of a Change (spec §3.4), ready to
// hash and persist.
type WireChange struct {
	Actor   string
	Seq     uint64
	StartOp uint64
	Time    int64
	Message string
	Deps    []string
	Ops     []WireOp
}

const magic = "cdoc1\n"

// Encode produces the canonical bytes for c and the hash of that form.
// Equal WireChange values always produce identical bytes: every
// variable-length field is length-prefixed and field order follows the
// struct definition, so there is no map iteration or padding to vary.
func Encode(c WireChange) ([]byte, Hash, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	writeString(&buf, c.Actor)
	writeUvarint(&buf, c.Seq)
	writeUvarint(&buf, c.StartOp)
	writeVarint(&buf, c.Time)
	writeString(&buf, c.Message)
	writeUvarint(&buf, uint64(len(c.Deps)))
	for _, d := range c.Deps {
		writeString(&buf, d)
	}
	writeUvarint(&buf, uint64(len(c.Ops)))
	for _, o := range c.Ops {
		writeOp(&buf, o)
	}
	out := buf.Bytes()
	return out, sha256.Sum256(out), nil
}

func writeOp(buf *bytes.Buffer, o WireOp) {
	writeUvarint(buf, o.Counter)
	writeString(buf, o.Obj)
	buf.WriteByte(boolByte(o.IsSeq))
	writeString(buf, o.MapKey)
	writeString(buf, o.SeqElem)
	buf.WriteByte(boolByte(o.Insert))
	buf.WriteByte(o.Action)
	buf.WriteByte(o.MakeKind)
	buf.WriteByte(o.ScalarKind)
	buf.WriteByte(boolByte(o.ScalarBool))
	writeVarint(buf, o.ScalarInt)
	var fbits [8]byte
	binary.BigEndian.PutUint64(fbits[:], math.Float64bits(o.ScalarFloat))
	buf.Write(fbits[:])
	writeString(buf, o.ScalarStr)
	writeBytes(buf, o.ScalarBin)
	writeVarint(buf, o.IncDelta)
	writeUvarint(buf, uint64(len(o.Pred)))
	for _, p := range o.Pred {
		writeString(buf, p)
	}
}

// Decode parses bytes produced by Encode. It fails closed: any
// truncation or malformed length prefix is reported rather than
// guessed at (spec §7: codec failures surface, document state
// unchanged).
func Decode(data []byte) (WireChange, error) {
	r := bytes.NewReader(data)
	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(r, hdr); err != nil || string(hdr) != magic {
		return WireChange{}, fmt.Errorf("codec: bad magic")
	}
	var c WireChange
	var err error
	if c.Actor, err = readString(r); err != nil {
		return WireChange{}, err
	}
	if c.Seq, err = readUvarint(r); err != nil {
		return WireChange{}, err
	}
	if c.StartOp, err = readUvarint(r); err != nil {
		return WireChange{}, err
	}
	if c.Time, err = readVarint(r); err != nil {
		return WireChange{}, err
	}
	if c.Message, err = readString(r); err != nil {
		return WireChange{}, err
	}
	nDeps, err := readUvarint(r)
	if err != nil {
		return WireChange{}, err
	}
	if nDeps > 0 {
		c.Deps = make([]string, nDeps)
	}
	for i := range c.Deps {
		if c.Deps[i], err = readString(r); err != nil {
			return WireChange{}, err
		}
	}
	nOps, err := readUvarint(r)
	if err != nil {
		return WireChange{}, err
	}
	if nOps > 0 {
		c.Ops = make([]WireOp, nOps)
	}
	for i := range c.Ops {
		if c.Ops[i], err = readOp(r); err != nil {
			return WireChange{}, err
		}
	}
	return c, nil
}

func readOp(r *bytes.Reader) (WireOp, error) {
	var o WireOp
	var err error
	if o.Counter, err = readUvarint(r); err != nil {
		return o, err
	}
	if o.Obj, err = readString(r); err != nil {
		return o, err
	}
	isSeq, err := r.ReadByte()
	if err != nil {
		return o, err
	}
	o.IsSeq = isSeq != 0
	if o.MapKey, err = readString(r); err != nil {
		return o, err
	}
	if o.SeqElem, err = readString(r); err != nil {
		return o, err
	}
	ins, err := r.ReadByte()
	if err != nil {
		return o, err
	}
	o.Insert = ins != 0
	if o.Action, err = r.ReadByte(); err != nil {
		return o, err
	}
	if o.MakeKind, err = r.ReadByte(); err != nil {
		return o, err
	}
	if o.ScalarKind, err = r.ReadByte(); err != nil {
		return o, err
	}
	sb, err := r.ReadByte()
	if err != nil {
		return o, err
	}
	o.ScalarBool = sb != 0
	if o.ScalarInt, err = readVarint(r); err != nil {
		return o, err
	}
	var fbits [8]byte
	if _, err = io.ReadFull(r, fbits[:]); err != nil {
		return o, err
	}
	o.ScalarFloat = math.Float64frombits(binary.BigEndian.Uint64(fbits[:]))
	if o.ScalarStr, err = readString(r); err != nil {
		return o, err
	}
	if o.ScalarBin, err = readBytes(r); err != nil {
		return o, err
	}
	if o.IncDelta, err = readVarint(r); err != nil {
		return o, err
	}
	nPred, err := readUvarint(r)
	if err != nil {
		return o, err
	}
	if nPred > 0 {
		o.Pred = make([]string, nPred)
	}
	for i := range o.Pred {
		if o.Pred[i], err = readString(r); err != nil {
			return o, err
		}
	}
	return o, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func readVarint(r *bytes.Reader) (int64, error) {
	return binary.ReadVarint(r)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("codec: truncated field: %w", err)
	}
	return b, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
