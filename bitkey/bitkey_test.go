package bitkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitKey_SetAndTest(t *testing.T) {
	k := New(0, 3)
	k2 := k.Set(70)

	assert.True(t, k.Test(0))
	assert.True(t, k.Test(3))
	assert.False(t, k.Test(70), "Set must not mutate the receiver")
	assert.True(t, k2.Test(70))
	assert.Equal(t, []int{0, 3, 70}, k2.Positions())
	assert.Equal(t, 3, k2.Cardinality())
}

func TestBitKey_EqualIgnoresCapacity(t *testing.T) {
	a := New(1, 2)
	b := New(1, 2, 200).Clear(200)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.String(), b.String())
	assert.True(t, BitKey{}.Equal(New()))
}

func TestBitKey_Subset(t *testing.T) {
	assert.True(t, New(1).IsSubsetOf(New(1, 2)))
	assert.False(t, New(1, 3).IsSubsetOf(New(1, 2)))
	assert.True(t, BitKey{}.IsSubsetOf(BitKey{}))
	assert.False(t, New(0).IsSubsetOf(BitKey{}))
}

func TestBitKey_Union(t *testing.T) {
	u := New(0).Union(New(5))
	assert.Equal(t, "{0,5}", u.String())
	assert.Equal(t, "{}", BitKey{}.String())
	assert.True(t, BitKey{}.IsEmpty())
}
