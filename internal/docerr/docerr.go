// Package docerr defines the boundary errors spec §6/§7 names: the
// small set of conditions a caller of the document façade can observe,
// as opposed to internal invariant failures. It follows the same
// sentinel + fmt.Errorf("%w", ...) wrapping convention as
// internal/storage/sqlite/errors.go.
package docerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is against these, never string matching.
var (
	// ErrDuplicateSeqNumber means a remote change reused an actor's seq.
	ErrDuplicateSeqNumber = errors.New("duplicate seq number")
	// ErrInvalidOpID means an exported object/op id string could not be parsed.
	ErrInvalidOpID = errors.New("invalid op id")
	// ErrInvalidSeq means a seq number refers to unknown actor state.
	ErrInvalidSeq = errors.New("invalid seq")
	// ErrDecode means the codec collaborator failed to decode a blob.
	ErrDecode = errors.New("decode failed")
	// ErrEncode means the codec collaborator failed to encode a blob.
	ErrEncode = errors.New("encode failed")
	// ErrFail marks an internal invariant violation that should be impossible.
	ErrFail = errors.New("internal invariant violation")
)

// DuplicateSeqNumber wraps ErrDuplicateSeqNumber with the offending
// actor/seq pair (spec §4.5 step 2).
func DuplicateSeqNumber(actor string, seq uint64) error {
	return fmt.Errorf("change %s/%d: %w", actor, seq, ErrDuplicateSeqNumber)
}

// InvalidOpID wraps ErrInvalidOpID with the string that failed to parse.
func InvalidOpID(s string) error {
	return fmt.Errorf("%q: %w", s, ErrInvalidOpID)
}

// InvalidSeq wraps ErrInvalidSeq with the offending actor/seq pair.
func InvalidSeq(actor string, seq uint64) error {
	return fmt.Errorf("change %s/%d: %w", actor, seq, ErrInvalidSeq)
}

// Decode wraps ErrDecode with context from the codec collaborator.
func Decode(err error) error {
	return fmt.Errorf("decode: %w: %v", ErrDecode, err)
}

// Encode wraps ErrEncode with context from the codec collaborator.
func Encode(err error) error {
	return fmt.Errorf("encode: %w: %v", ErrEncode, err)
}

// Fail wraps ErrFail with a description of the invariant that broke.
func Fail(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrFail)
}

// IsDuplicateSeqNumber reports whether err is or wraps ErrDuplicateSeqNumber.
func IsDuplicateSeqNumber(err error) bool { return errors.Is(err, ErrDuplicateSeqNumber) }

// IsInvalidOpID reports whether err is or wraps ErrInvalidOpID.
func IsInvalidOpID(err error) bool { return errors.Is(err, ErrInvalidOpID) }
