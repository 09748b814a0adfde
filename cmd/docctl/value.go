package main

import (
	"fmt"
	"strconv"

	"github.com/localfirst/crdtdoc/internal/document"
)

// parseValue converts a command-line argument to the scalar type the
// document's op.Scalar encoding understands, trying int64, then bool,
// falling back to a plain string. "--string" forces string
// interpretation for a value that would otherwise parse as a number.
func parseValue(raw string, forceString bool) interface{} {
	if forceString {
		return raw
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// formatValues renders the (possibly conflicting) values at a key or
// list position for display: the single value, or, when more than one
// survives concurrently, the first of them followed by the number of
// conflicting values. The other values are not printed.
func formatValues(values []document.Value) string {
	if len(values) == 0 {
		return "<absent>"
	}
	if len(values) == 1 {
		return fmt.Sprintf("%v", values[0].Value)
	}
	out := fmt.Sprintf("%v (conflict, %d values)", values[0].Value, len(values))
	return out
}
