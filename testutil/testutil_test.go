package testutil

import (
	"testing"

	"github.com/hupe1980/aggcache/model"
	"github.com/hupe1980/aggcache/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCells(t *testing.T) {
	rng := NewRNG(4711)

	cells := rng.Cells(50, 2, 10)

	assert.Len(t, cells, 50)
	seen := make(map[string]struct{})
	for _, c := range cells {
		require.Len(t, c.Coords, 2)
		k := c.Coords[0].String() + "|" + c.Coords[1].String()
		assert.NotContains(t, seen, k)
		seen[k] = struct{}{}
	}
}

func TestCellsCappedAtPossible(t *testing.T) {
	rng := NewRNG(1)

	assert.Len(t, rng.Cells(100, 2, 3), 9)
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	c1 := rng.Cells(5, 3, 4)

	rng.Reset()
	c2 := rng.Cells(5, 3, 4)

	assert.Equal(t, c1, c2)
}

func TestBodyAndValues(t *testing.T) {
	b := Body(t, model.Integer,
		Cell(10, model.Int(1997), model.String("Drink")),
		Cell(20, model.Int(1997), model.String("Food")),
	)

	assert.Equal(t, segment.Dense, b.Representation())
	assert.Equal(t, map[string]model.Value{
		"1997|Drink": model.Int(10),
		"1997|Food":  model.Int(20),
	}, Values(b))
}
