// Package actorid provides the interned caches the document keeps for actor
// ids and map-key strings (spec §4.1), plus helpers for minting and
// formatting actor ids (spec §3.1).
package actorid

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// ActorID is an opaque replica identifier, typically 16 random bytes.
type ActorID string

// New mints a fresh random actor id the way a new replica would on first
// run: 16 random bytes, the same width uuid.NewRandom produces.
func New() (ActorID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return ActorID(u[:]), nil
}

// Hex renders an actor id as lowercase hex, the form used by exported
// object id strings ("<counter>@<hex(actor bytes)>") and by Change.Actor
// when changes are persisted.
func (a ActorID) Hex() string {
	return hex.EncodeToString([]byte(a))
}

// ParseHex parses the hex form produced by Hex back into an ActorID.
func ParseHex(s string) (ActorID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	return ActorID(b), nil
}

// Cache interns values of type T to small dense integers. Indices are
// stable for the life of the cache and are never reused or evicted (spec
// §3.6: "entries are never evicted").
//
// A Cache is not safe for concurrent use, matching the document's
// single-threaded cooperative model (spec §5).
type Cache[T comparable] struct {
	byValue map[T]int
	byIndex []T
}

// NewCache returns an empty interning cache.
func NewCache[T comparable]() *Cache[T] {
	return &Cache[T]{byValue: make(map[T]int)}
}

// Intern returns the dense index for v, inserting it if this is the first
// time v has been seen.
func (c *Cache[T]) Intern(v T) int {
	if idx, ok := c.byValue[v]; ok {
		return idx
	}
	idx := len(c.byIndex)
	c.byIndex = append(c.byIndex, v)
	c.byValue[v] = idx
	return idx
}

// Lookup returns the index for v without inserting it.
func (c *Cache[T]) Lookup(v T) (int, bool) {
	idx, ok := c.byValue[v]
	return idx, ok
}

// Value returns the value interned at idx. It panics if idx is out of
// range, which indicates an internal invariant violation (an op
// referencing an index never assigned by this cache).
func (c *Cache[T]) Value(idx int) T {
	return c.byIndex[idx]
}

// Len returns the number of distinct values interned so far.
func (c *Cache[T]) Len() int {
	return len(c.byIndex)
}

// Clone returns an independent copy of the cache, used by Document.Fork.
func (c *Cache[T]) Clone() *Cache[T] {
	out := &Cache[T]{
		byValue: make(map[T]int, len(c.byValue)),
		byIndex: make([]T, len(c.byIndex)),
	}
	copy(out.byIndex, c.byIndex)
	for k, v := range c.byValue {
		out.byValue[k] = v
	}
	return out
}
