package rollup

import (
	"context"
	"testing"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/model"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	year   = "time.the_year"
	family = "product.product_family"
	state  = "store.store_state"
)

var (
	drink = model.String("Drink")
	food  = model.String("Food")
	nonC  = model.String("Non-Consumable")
	y1997 = model.Int(1997)
	y1998 = model.Int(1998)
)

func TestRollup_DropsColumn(t *testing.T) {
	h := testutil.Header(t, "Unit Sales",
		segment.NewColumn(year, 0, y1997),
		segment.NewColumn(family, 1, drink, food),
	)
	b := testutil.Body(t, model.Numeric,
		testutil.Cell(10, y1997, drink),
		testutil.Cell(20, y1997, food),
	)

	outH, outB, err := Rollup(context.Background(), []Source{{h, b}}, []string{year}, Options{Datatype: model.Numeric})
	require.NoError(t, err)

	assert.Equal(t, []string{year}, outH.ColumnExpressions())
	assert.True(t, outH.BitKey().Equal(bitkey.New(0)))
	assert.True(t, outH.SameFact(h))
	assert.Equal(t, map[string]model.Value{"1997": model.Int(30)}, testutil.Values(outB))
}

func TestRollup_OrderIndependent(t *testing.T) {
	rng := testutil.NewRNG(42)
	cells := rng.Cells(600, 3, 12)

	// Three overlapping sources over the same three columns.
	var sources []Source
	for _, window := range [][2]int{{0, 300}, {200, 500}, {400, 600}} {
		part := cells[window[0]:window[1]]
		var bs []model.Value
		for _, c := range part {
			bs = append(bs, c.Coords[1])
		}
		h := testutil.Header(t, "Store Sales",
			segment.NewWildcardColumn("a", 0),
			segment.NewColumn("b", 1, bs...),
			segment.NewWildcardColumn("c", 2),
		)
		sources = append(sources, Source{Header: h, Body: testutil.Body(t, model.Numeric, part...)})
	}

	opts := Options{Datatype: model.Numeric}
	wantH, wantB, err := Rollup(context.Background(), sources, []string{"a"}, opts)
	require.NoError(t, err)
	want := wantB.ValueMap()

	for range 10 {
		shuffled := testutil.Shuffle(rng, sources)
		gotH, gotB, err := Rollup(context.Background(), shuffled, []string{"a"}, opts)
		require.NoError(t, err)
		assert.True(t, wantH.Equal(gotH))
		assert.Equal(t, wantH.UniqueID(), gotH.UniqueID())
		assert.Equal(t, want, gotB.ValueMap())
	}
}

func TestRollup_DoesNotDoubleCount(t *testing.T) {
	a := Source{
		Header: testutil.Header(t, "Unit Sales",
			segment.NewColumn(year, 0, y1997),
			segment.NewColumn(family, 1, drink, food),
		),
		Body: testutil.Body(t, model.Integer,
			testutil.Cell(10, y1997, drink),
			testutil.Cell(20, y1997, food),
		),
	}
	b := Source{
		Header: testutil.Header(t, "Unit Sales",
			segment.NewColumn(year, 0, y1997),
			segment.NewColumn(family, 1, food, nonC),
		),
		Body: testutil.Body(t, model.Integer,
			testutil.Cell(20, y1997, food),
			testutil.Cell(5, y1997, nonC),
		),
	}

	outH, outB, err := Rollup(context.Background(), []Source{a, b}, []string{year}, Options{Datatype: model.Integer})
	require.NoError(t, err)

	assert.Equal(t, map[string]model.Value{"1997": model.Int(35)}, testutil.Values(outB))
	assert.Equal(t, []string{year}, outH.ColumnExpressions())
}

func TestRollup_Target(t *testing.T) {
	y1999 := model.Int(1999)
	all := Source{
		Header: testutil.Header(t, "Unit Sales",
			segment.NewColumn(year, 0, y1997),
			segment.NewWildcardColumn(family, 1),
		),
		Body: testutil.Body(t, model.Integer,
			testutil.Cell(10, y1997, drink),
			testutil.Cell(20, y1997, food),
		),
	}
	drinks := Source{
		Header: testutil.Header(t, "Unit Sales",
			segment.NewColumn(year, 0, y1997, y1999),
			segment.NewColumn(family, 1, drink),
		),
		Body: testutil.Body(t, model.Integer,
			testutil.Cell(10, y1997, drink),
			testutil.Cell(5, y1999, drink),
		),
	}
	target := testutil.Header(t, "Unit Sales", segment.NewColumn(year, 0, y1997))

	outH, outB, err := Rollup(context.Background(), []Source{all, drinks}, []string{year}, Options{
		Datatype: model.Integer,
		Target:   target,
	})
	require.NoError(t, err)
	assert.True(t, outH.Equal(target))
	assert.Equal(t, []model.Value{y1997}, outB.Axes()[0].Values())
	assert.Equal(t, map[string]model.Value{"1997": model.Int(30)}, testutil.Values(outB))

	t.Run("without target", func(t *testing.T) {
		outH, outB, err := Rollup(context.Background(), []Source{all, drinks}, []string{year}, Options{Datatype: model.Integer})
		require.NoError(t, err)
		col, _, _ := outH.Column(year)
		assert.Equal(t, []model.Value{y1997, y1999}, col.Values())
		assert.Equal(t, model.Int(5), testutil.Values(outB)["1999"])
	})
}

func TestRollup_DuplicateHeaders(t *testing.T) {
	h := testutil.Header(t, "Unit Sales",
		segment.NewColumn(year, 0, y1997),
		segment.NewColumn(family, 1, drink, food),
	)
	first := Source{Header: h, Body: testutil.Body(t, model.Integer,
		testutil.Cell(10, y1997, drink),
		testutil.Cell(20, y1997, food),
	)}
	second := Source{Header: h, Body: testutil.Body(t, model.Integer,
		testutil.Cell(12, y1997, drink),
	)}

	opts := Options{Datatype: model.Integer}
	_, want, err := Rollup(context.Background(), []Source{first, second}, []string{year}, opts)
	require.NoError(t, err)

	rng := testutil.NewRNG(3)
	for range 8 {
		_, got, err := Rollup(context.Background(), testutil.Shuffle(rng, []Source{first, second, first}), []string{year}, opts)
		require.NoError(t, err)
		assert.Equal(t, want.ValueMap(), got.ValueMap())
	}
}

func TestRollup_FamiliesAndWildcardToScalar(t *testing.T) {
	var sources []Source
	for i, f := range []model.Value{drink, food, nonC} {
		sources = append(sources, Source{
			Header: testutil.Header(t, "Unit Sales", segment.NewColumn(family, 0, f)),
			Body:   testutil.Body(t, model.Integer, testutil.Cell((i+1)*10, f)),
		})
	}
	sources = append(sources, Source{
		Header: testutil.Header(t, "Unit Sales", segment.NewWildcardColumn(family, 0)),
		Body: testutil.Body(t, model.Integer,
			testutil.Cell(10, drink),
			testutil.Cell(20, food),
			testutil.Cell(30, nonC),
		),
	})

	outH, outB, err := Rollup(context.Background(), sources, nil, Options{Datatype: model.Integer})
	require.NoError(t, err)

	assert.Empty(t, outH.Columns())
	assert.True(t, outH.BitKey().IsEmpty())
	assert.Equal(t, int64(1), outB.Size())
	v, ok := outB.Get()
	require.True(t, ok)
	assert.Equal(t, model.Int(60), v)
}

func TestRollup_NullAxis(t *testing.T) {
	nullOnly := Source{
		Header: testutil.Header(t, "Unit Sales", segment.NewWildcardColumn(family, 0)),
		Body: testutil.Body(t, model.Integer,
			testutil.Cell(7, model.Null()),
		),
	}
	require.True(t, nullOnly.Body.Axes()[0].ContainsNull())

	t.Run("null only", func(t *testing.T) {
		_, b, err := Rollup(context.Background(), []Source{nullOnly}, []string{family}, Options{Datatype: model.Integer})
		require.NoError(t, err)

		require.Len(t, b.Axes(), 1)
		assert.True(t, b.Axes()[0].ContainsNull())
		assert.Empty(t, b.Axes()[0].Values())
		v, ok := b.Get(0)
		require.True(t, ok)
		assert.Equal(t, model.Int(7), v)
	})

	t.Run("null and non-null", func(t *testing.T) {
		values := Source{
			Header: testutil.Header(t, "Unit Sales", segment.NewColumn(family, 0, drink)),
			Body:   testutil.Body(t, model.Integer, testutil.Cell(10, drink)),
		}

		h, b, err := Rollup(context.Background(), []Source{values, nullOnly}, []string{family}, Options{Datatype: model.Integer})
		require.NoError(t, err)

		col, _, ok := h.Column(family)
		require.True(t, ok)
		assert.True(t, col.IsWildcard())

		axis := b.Axes()[0]
		assert.True(t, axis.ContainsNull())
		assert.Equal(t, []model.Value{drink}, axis.Values())
		assert.Equal(t, map[string]model.Value{
			"Drink": model.Int(10),
			"#null": model.Int(7),
		}, testutil.Values(b))
	})
}

func TestRollup_ExcludedRegions(t *testing.T) {
	ca, or, wa := model.String("CA"), model.String("OR"), model.String("WA")

	params := testutil.Params("Unit Sales",
		segment.NewColumn(state, 0, ca, or, wa),
		segment.NewColumn(year, 1, y1997, y1998),
	)
	params.ExcludedRegions = []segment.Column{segment.NewColumn(state, 0, ca)}
	excl, err := segment.NewHeader(params)
	require.NoError(t, err)

	a := Source{
		Header: excl,
		Body: testutil.Body(t, model.Integer,
			testutil.Cell(100, ca, y1997), // excluded, must be ignored
			testutil.Cell(1, or, y1997),
			testutil.Cell(2, wa, y1998),
		),
	}
	b := Source{
		Header: testutil.Header(t, "Unit Sales",
			segment.NewColumn(state, 0, or),
			segment.NewColumn(year, 1, y1997, y1998),
		),
		Body: testutil.Body(t, model.Integer,
			testutil.Cell(1, or, y1997),
			testutil.Cell(4, or, y1998),
		),
	}

	h, body, err := Rollup(context.Background(), []Source{a, b}, []string{state}, Options{Datatype: model.Integer})
	require.NoError(t, err)

	region, ok := h.ExcludedRegion(state)
	require.True(t, ok)
	assert.Equal(t, []model.Value{ca}, region.Values())
	assert.Equal(t, map[string]model.Value{
		"OR": model.Int(5),
		"WA": model.Int(2),
	}, testutil.Values(body))

	t.Run("on dropped column", func(t *testing.T) {
		_, _, err := Rollup(context.Background(), []Source{a, b}, []string{year}, Options{Datatype: model.Integer})
		assert.ErrorIs(t, err, ErrInvariant)
	})
}

func TestRollup_Invariants(t *testing.T) {
	base := Source{
		Header: testutil.Header(t, "Unit Sales",
			segment.NewColumn(year, 0, y1997),
			segment.NewColumn(family, 1, drink),
		),
		Body: testutil.Body(t, model.Integer, testutil.Cell(1, y1997, drink)),
	}

	otherMeasure := Source{
		Header: testutil.Header(t, "Store Cost",
			segment.NewColumn(year, 0, y1997),
			segment.NewColumn(family, 1, drink),
		),
		Body: base.Body,
	}
	otherColumns := Source{
		Header: testutil.Header(t, "Unit Sales",
			segment.NewColumn(year, 0, y1997),
			segment.NewColumn(state, 2, model.String("CA")),
		),
		Body: base.Body,
	}
	predParams := testutil.Params("Unit Sales",
		segment.NewColumn(year, 0, y1997),
		segment.NewColumn(family, 1, drink),
	)
	predParams.CompoundPredicates = []string{"(time.quarter = Q1)"}
	predHeader, err := segment.NewHeader(predParams)
	require.NoError(t, err)
	otherPredicates := Source{Header: predHeader, Body: base.Body}

	tests := []struct {
		name    string
		sources []Source
		retain  []string
		opts    Options
	}{
		{name: "no sources", retain: []string{year}},
		{name: "different measure", sources: []Source{base, otherMeasure}, retain: []string{year}},
		{name: "different columns", sources: []Source{base, otherColumns}, retain: []string{year}},
		{name: "different predicates", sources: []Source{base, otherPredicates}, retain: []string{year}},
		{name: "unknown retained column", sources: []Source{base}, retain: []string{state}},
		{name: "missing body", sources: []Source{{Header: base.Header}}, retain: []string{year}},
		{name: "cache key hint", sources: []Source{base}, retain: []string{year}, opts: Options{CacheKeyHint: bitkey.New(1)}},
		{name: "target measure", sources: []Source{base}, retain: []string{year}, opts: Options{
			Target: testutil.Header(t, "Store Cost", segment.NewColumn(year, 0, y1997)),
		}},
		{name: "target columns", sources: []Source{base}, retain: []string{year}, opts: Options{
			Target: testutil.Header(t, "Unit Sales", segment.NewColumn(family, 1, drink)),
		}},
		{name: "target column count", sources: []Source{base}, retain: []string{year}, opts: Options{Target: base.Header}},
		{name: "target bit position", sources: []Source{base}, retain: []string{year}, opts: Options{
			Target: testutil.Header(t, "Unit Sales", segment.NewColumn(year, 4, y1997)),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Rollup(context.Background(), tt.sources, tt.retain, tt.opts)
			assert.ErrorIs(t, err, ErrInvariant)
		})
	}

	t.Run("matching cache key hint", func(t *testing.T) {
		_, _, err := Rollup(context.Background(), []Source{base}, []string{year}, Options{CacheKeyHint: bitkey.New(0)})
		assert.NoError(t, err)
	})
}

func TestRollup_NotRollable(t *testing.T) {
	h := testutil.Header(t, "Customer Count", segment.NewColumn(family, 0, drink, food))
	b := testutil.Body(t, model.Integer, testutil.Cell(3, drink), testutil.Cell(4, food))

	_, _, err := Rollup(context.Background(), []Source{{h, b}}, nil, Options{Aggregator: DistinctCount, Datatype: model.Integer})
	assert.ErrorIs(t, err, ErrNotRollable)
}

func TestRollup_Canceled(t *testing.T) {
	rng := testutil.NewRNG(7)
	cells := rng.Cells(2*checkEvery, 2, 100)
	h := testutil.Header(t, "Store Sales", segment.NewWildcardColumn("a", 0), segment.NewWildcardColumn("b", 1))
	b := testutil.Body(t, model.Numeric, cells...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Rollup(ctx, []Source{{h, b}}, []string{"a"}, Options{Datatype: model.Numeric})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRollup_Sparse(t *testing.T) {
	rng := testutil.NewRNG(3)
	cells := rng.Cells(3000, 2, 200)
	h := testutil.Header(t, "Store Sales", segment.NewWildcardColumn("a", 0), segment.NewWildcardColumn("b", 1))
	b := testutil.Body(t, model.Numeric, cells...)
	require.Equal(t, segment.Sparse, b.Representation())

	var want float64
	for _, c := range cells {
		f, _ := c.Value.AsFloat64()
		want += f
	}

	_, out, err := Rollup(context.Background(), []Source{{h, b}}, nil, Options{Datatype: model.Numeric})
	require.NoError(t, err)

	v, ok := out.Get()
	require.True(t, ok)
	got, _ := v.AsFloat64()
	assert.InDelta(t, want, got, 1e-6)
}
