package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleChange() WireChange {
	return WireChange{
		Actor:   "abcd1234",
		Seq:     1,
		StartOp: 1,
		Time:    1700000000,
		Message: "initial",
		Deps:    nil,
		Ops: []WireOp{
			{
				Counter:    1,
				Obj:        "_root",
				IsSeq:      false,
				MapKey:     "name",
				Action:     1,
				ScalarKind: 4,
				ScalarStr:  "alice",
			},
			{
				Counter:  2,
				Obj:      "_root",
				IsSeq:    true,
				SeqElem:  "_head",
				Insert:   true,
				Action:   0,
				MakeKind: 2,
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := sampleChange()
	bytes1, hash1, err := Encode(c)
	require.NoError(t, err)

	decoded, err := Decode(bytes1)
	require.NoError(t, err)
	require.Equal(t, c, decoded)

	bytes2, hash2, err := Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, bytes1, bytes2)
	require.Equal(t, hash1, hash2)
}

func TestEncodeIsDeterministicAcrossCalls(t *testing.T) {
	c := sampleChange()
	_, h1, err := Encode(c)
	require.NoError(t, err)
	_, h2, err := Encode(c)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestEncodeDiffersOnContentChange(t *testing.T) {
	c := sampleChange()
	_, h1, _ := Encode(c)
	c.Message = "different"
	_, h2, _ := Encode(c)
	require.NotEqual(t, h1, h2)
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	c := sampleChange()
	raw, _, err := Encode(c)
	require.NoError(t, err)

	_, err = Decode(raw[:len(raw)-3])
	require.Error(t, err)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("not a real change blob"))
	require.Error(t, err)
}
