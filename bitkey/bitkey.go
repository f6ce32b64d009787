// Package bitkey provides BitKey, an immutable bitmask over column positions.
//
// Headers use a BitKey to record which star columns they constrain, and the
// grouping-set loader uses one per row to record which columns are rolled up.
package bitkey

import (
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// BitKey is an immutable set of bit positions. The zero value is empty.
// Mutating methods return a new BitKey.
type BitKey struct {
	b *bitset.BitSet
}

// New returns a BitKey with the given positions set.
func New(positions ...int) BitKey {
	if len(positions) == 0 {
		return BitKey{}
	}
	b := bitset.New(0)
	for _, p := range positions {
		if p < 0 {
			continue
		}
		b.Set(uint(p))
	}
	return BitKey{b: b}
}

// Set returns a copy of k with position p set.
func (k BitKey) Set(p int) BitKey {
	b := k.clone()
	b.Set(uint(p))
	return BitKey{b: b}
}

// Clear returns a copy of k with position p cleared.
func (k BitKey) Clear(p int) BitKey {
	if !k.Test(p) {
		return k
	}
	b := k.clone()
	b.Clear(uint(p))
	return BitKey{b: b}
}

// Test reports whether position p is set.
func (k BitKey) Test(p int) bool {
	if k.b == nil || p < 0 {
		return false
	}
	return k.b.Test(uint(p))
}

// IsEmpty reports whether no position is set.
func (k BitKey) IsEmpty() bool {
	return k.b == nil || k.b.None()
}

// Cardinality returns the number of set positions.
func (k BitKey) Cardinality() int {
	if k.b == nil {
		return 0
	}
	return int(k.b.Count())
}

// Equal reports whether k and o have the same positions set, regardless of
// the capacity of the underlying sets.
func (k BitKey) Equal(o BitKey) bool {
	return k.IsSubsetOf(o) && o.IsSubsetOf(k)
}

// IsSubsetOf reports whether every position of k is also set in o.
func (k BitKey) IsSubsetOf(o BitKey) bool {
	if k.IsEmpty() {
		return true
	}
	if o.b == nil {
		return false
	}
	return o.b.IsSuperSet(k.b)
}

// Union returns the positions set in k or o.
func (k BitKey) Union(o BitKey) BitKey {
	switch {
	case k.b == nil:
		return o
	case o.b == nil:
		return k
	}
	return BitKey{b: k.b.Union(o.b)}
}

// Positions returns the set positions in ascending order.
func (k BitKey) Positions() []int {
	if k.b == nil {
		return nil
	}
	out := make([]int, 0, k.b.Count())
	for i, ok := k.b.NextSet(0); ok; i, ok = k.b.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// String renders the key as "{0,3,5}". Equal keys render identically, so the
// string is usable as a map key.
func (k BitKey) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, p := range k.Positions() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(p))
	}
	sb.WriteByte('}')
	return sb.String()
}

func (k BitKey) clone() *bitset.BitSet {
	if k.b == nil {
		return bitset.New(0)
	}
	return k.b.Clone()
}
