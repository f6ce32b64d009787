package rollup

import (
	"math"
	"testing"

	"github.com/hupe1980/aggcache/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregators(t *testing.T) {
	ints := []model.Value{model.Int(3), model.Int(1), model.Int(2)}

	tests := []struct {
		agg      Aggregator
		values   []model.Value
		datatype model.Datatype
		want     model.Value
	}{
		{Sum, ints, model.Integer, model.Int(6)},
		{Count, ints, model.Integer, model.Int(6)},
		{Min, ints, model.Integer, model.Int(1)},
		{Max, ints, model.Integer, model.Int(3)},
		{Sum, []model.Value{model.Int(1), model.Float(0.5)}, model.Numeric, model.Float(1.5)},
		{Sum, ints, model.Numeric, model.Int(6)},
		{Max, []model.Value{model.String("a"), model.String("c")}, model.StringType, model.String("c")},
		{Sum, nil, model.Numeric, model.Null()},
	}

	for _, tt := range tests {
		t.Run(tt.agg.Name(), func(t *testing.T) {
			got, err := tt.agg.Rollup(tt.values, tt.datatype)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSum_OverflowFallsBackToFloat(t *testing.T) {
	got, err := Sum.Rollup([]model.Value{model.Int(math.MaxInt64), model.Int(1)}, model.Integer)
	require.NoError(t, err)

	assert.Equal(t, model.KindFloat, got.Kind())
}

func TestSum_RejectsNonNumeric(t *testing.T) {
	_, err := Sum.Rollup([]model.Value{model.String("x")}, model.Numeric)

	assert.ErrorIs(t, err, ErrInvariant)
}

func TestAggregatorByName(t *testing.T) {
	for _, name := range []string{"sum", "count", "min", "max", "distinct-count"} {
		agg, err := AggregatorByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, agg.Name())
	}

	_, err := AggregatorByName("median")
	assert.ErrorIs(t, err, ErrUnknownAggregator)
}
