package testutil

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/hupe1980/aggcache/model"
	"github.com/hupe1980/aggcache/segment"
	"github.com/stretchr/testify/require"
)

// Fixture identity shared by every header built through this package.
const (
	SchemaName     = "FoodMart"
	SchemaChecksum = "c0ffee"
	CubeName       = "Sales"
	FactTable      = "sales_fact_1997"
)

// Params returns header parameters for measure over columns.
func Params(measure string, columns ...segment.Column) segment.HeaderParams {
	return segment.HeaderParams{
		SchemaName:     SchemaName,
		SchemaChecksum: SchemaChecksum,
		CubeName:       CubeName,
		MeasureName:    measure,
		FactTable:      FactTable,
		Columns:        columns,
	}
}

// Header builds a header for measure over columns and fails the test on error.
func Header(tb testing.TB, measure string, columns ...segment.Column) *segment.Header {
	tb.Helper()
	h, err := segment.NewHeader(Params(measure, columns...))
	require.NoError(tb, err)
	return h
}

// FactCell is one loaded cell addressed by its column values.
type FactCell struct {
	Coords []model.Value
	Value  model.Value
}

// Cell returns a cell holding value at coords. Value may be an int, int64,
// float64, string or model.Value.
func Cell(value any, coords ...model.Value) FactCell {
	return FactCell{Coords: coords, Value: ToValue(value)}
}

// ToValue converts a Go literal to a model.Value.
func ToValue(v any) model.Value {
	switch x := v.(type) {
	case model.Value:
		return x
	case int:
		return model.Int(int64(x))
	case int64:
		return model.Int(x)
	case float64:
		return model.Float(x)
	case string:
		return model.String(x)
	case []byte:
		return model.Bytes(x)
	case bool:
		return model.Bool(x)
	case nil:
		return model.Null()
	default:
		panic("testutil: unsupported value type")
	}
}

// Body builds a body whose axes are exactly the values the cells use. The
// representation follows segment.DefaultThresholds.
func Body(tb testing.TB, datatype model.Datatype, cells ...FactCell) *segment.Body {
	tb.Helper()
	return BodyWithThresholds(tb, datatype, segment.DefaultThresholds(), cells...)
}

// BodyWithThresholds is Body with explicit thresholds.
func BodyWithThresholds(tb testing.TB, datatype model.Datatype, t segment.Thresholds, cells ...FactCell) *segment.Body {
	tb.Helper()
	require.NotEmpty(tb, cells, "testutil: at least one cell is required to infer the axes")

	dims := len(cells[0].Coords)
	values := make([][]model.Value, dims)
	for _, c := range cells {
		require.Len(tb, c.Coords, dims)
		for i, v := range c.Coords {
			values[i] = append(values[i], v)
		}
	}
	axes := make([]*segment.Axis, dims)
	for i := range axes {
		axes[i] = segment.NewAxis(values[i], false)
	}
	return BodyOnAxes(tb, axes, datatype, t, cells...)
}

// BodyOnAxes builds a body over the given axes.
func BodyOnAxes(tb testing.TB, axes []*segment.Axis, datatype model.Datatype, t segment.Thresholds, cells ...FactCell) *segment.Body {
	tb.Helper()
	m := make(map[segment.CellKey]model.Value, len(cells))
	for _, c := range cells {
		ords := make([]int, len(c.Coords))
		for i, v := range c.Coords {
			o, ok := axes[i].Ordinal(v)
			require.Truef(tb, ok, "testutil: %s is not on axis %d", v, i)
			ords[i] = o
		}
		m[segment.NewCellKey(ords...)] = c.Value
	}
	b, err := segment.BuildBody(axes, m, datatype, t)
	require.NoError(tb, err)
	return b
}

// Values returns the body's loaded cells keyed by their column values
// rendered as strings, which makes bodies with different axes comparable.
func Values(b *segment.Body) map[string]model.Value {
	out := make(map[string]model.Value)
	axes := b.Axes()
	b.ForEach(func(k segment.CellKey, v model.Value) bool {
		key := ""
		for i, o := range k.Ordinals() {
			val, _ := axes[i].Value(o)
			if i > 0 {
				key += "|"
			}
			key += val.String()
		}
		out[key] = v
		return true
	})
	return out
}

// RNG generates reproducible random facts. It is safe for concurrent use.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Cells generates n cells with distinct coordinates over dims integer
// columns, each with values in [0, cardinality). Cell values are floats in
// [0, 100). n is capped at cardinality^dims.
func (r *RNG) Cells(n, dims, cardinality int) []FactCell {
	r.mu.Lock()
	defer r.mu.Unlock()

	possible := 1
	for range dims {
		possible *= cardinality
	}
	n = min(n, possible)

	seen := make(map[int]struct{}, n)
	out := make([]FactCell, 0, n)
	for len(out) < n {
		idx := r.rand.Intn(possible)
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		coords := make([]model.Value, dims)
		rest := idx
		for d := dims - 1; d >= 0; d-- {
			coords[d] = model.Int(int64(rest % cardinality))
			rest /= cardinality
		}
		out = append(out, FactCell{Coords: coords, Value: model.Float(r.rand.Float64() * 100)})
	}
	return out
}

// Shuffle returns a shuffled copy of s.
func Shuffle[T any](r *RNG, s []T) []T {
	out := append([]T(nil), s...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
