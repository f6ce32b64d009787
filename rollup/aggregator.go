package rollup

import (
	"fmt"
	"math"

	"github.com/hupe1980/aggcache/model"
)

// Aggregator combines the values of several cells into one.
type Aggregator interface {
	// Name returns the aggregator's stable name.
	Name() string
	// Rollup combines values, which are never null. An empty input yields Null.
	Rollup(values []model.Value, datatype model.Datatype) (model.Value, error)
}

var (
	// Sum adds values.
	Sum Aggregator = sumAggregator{name: "sum"}
	// Count rolls up counts by adding them.
	Count Aggregator = sumAggregator{name: "count"}
	// Min keeps the smallest value.
	Min Aggregator = extremeAggregator{name: "min", sign: -1}
	// Max keeps the largest value.
	Max Aggregator = extremeAggregator{name: "max", sign: 1}
	// DistinctCount cannot be rolled up.
	DistinctCount Aggregator = distinctCountAggregator{}
)

// AggregatorByName returns a built-in aggregator.
func AggregatorByName(name string) (Aggregator, error) {
	switch name {
	case "sum":
		return Sum, nil
	case "count":
		return Count, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	case "distinct-count", "distinct count":
		return DistinctCount, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAggregator, name)
	}
}

type sumAggregator struct {
	name string
}

func (a sumAggregator) Name() string { return a.name }

func (a sumAggregator) Rollup(values []model.Value, datatype model.Datatype) (model.Value, error) {
	if len(values) == 0 {
		return model.Null(), nil
	}
	for _, v := range values {
		if !v.IsNumeric() {
			return model.Value{}, fmt.Errorf("%w: %s over %s value %s", ErrInvariant, a.name, v.Kind(), v)
		}
	}
	if !allInts(values) {
		if datatype != model.Numeric {
			return model.Value{}, fmt.Errorf("%w: %s over non-integer values for %s cells", ErrInvariant, a.name, datatype)
		}
		return model.Float(sumFloats(values)), nil
	}

	var sum int64
	for _, v := range values {
		i, _ := v.AsInt64()
		if (i > 0 && sum > math.MaxInt64-i) || (i < 0 && sum < math.MinInt64-i) {
			return model.Float(sumFloats(values)), nil
		}
		sum += i
	}
	return model.Int(sum), nil
}

func sumFloats(values []model.Value) float64 {
	var sum float64
	for _, v := range values {
		f, _ := v.AsFloat64()
		sum += f
	}
	return sum
}

func allInts(values []model.Value) bool {
	for _, v := range values {
		if v.Kind() != model.KindInt {
			return false
		}
	}
	return true
}

type extremeAggregator struct {
	name string
	sign int
}

func (a extremeAggregator) Name() string { return a.name }

func (a extremeAggregator) Rollup(values []model.Value, _ model.Datatype) (model.Value, error) {
	if len(values) == 0 {
		return model.Null(), nil
	}
	best := values[0]
	for _, v := range values[1:] {
		if model.Compare(v, best)*a.sign > 0 {
			best = v
		}
	}
	return best, nil
}

type distinctCountAggregator struct{}

func (distinctCountAggregator) Name() string { return "distinct-count" }

func (distinctCountAggregator) Rollup([]model.Value, model.Datatype) (model.Value, error) {
	return model.Value{}, ErrNotRollable
}
