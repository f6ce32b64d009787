package segment

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/aggcache/model"
)

// maxDenseCells is the hard ceiling on dense allocations; dense ordinals are
// stored in 32-bit roaring bitmaps.
const maxDenseCells = math.MaxInt32

const (
	// DefaultDensityThreshold is the default minimum density of a dense body.
	DefaultDensityThreshold = 0.5
	// DefaultSparseSegmentCountThreshold is the default maximum cell count of a
	// dense body.
	DefaultSparseSegmentCountThreshold = 1000
)

// Thresholds decide between the dense and sparse representations. The
// loader and the rollup engine must be given the same Thresholds so that
// loaded and rolled-up segments choose representations consistently.
type Thresholds struct {
	// DensityThreshold is the minimum fraction of loaded cells for a dense body.
	DensityThreshold float64
	// SparseSegmentCountThreshold is the maximum possible cell count of a
	// dense body.
	SparseSegmentCountThreshold int64
	// MaxDenseCells forces the sparse representation when the possible cell
	// count exceeds it. Zero means math.MaxInt32.
	MaxDenseCells int64
}

// DefaultThresholds returns the default tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DensityThreshold:            DefaultDensityThreshold,
		SparseSegmentCountThreshold: DefaultSparseSegmentCountThreshold,
		MaxDenseCells:               maxDenseCells,
	}
}

// Validate reports inconsistent thresholds.
func (t Thresholds) Validate() error {
	if t.DensityThreshold < 0 || t.DensityThreshold > 1 || math.IsNaN(t.DensityThreshold) {
		return fmt.Errorf("segment: density threshold %v out of [0, 1]", t.DensityThreshold)
	}
	if t.SparseSegmentCountThreshold < 0 {
		return fmt.Errorf("segment: sparse segment count threshold %d is negative", t.SparseSegmentCountThreshold)
	}
	if t.MaxDenseCells < 0 {
		return fmt.Errorf("segment: max dense cells %d is negative", t.MaxDenseCells)
	}
	return nil
}

func (t Thresholds) maxDense() int64 {
	if t.MaxDenseCells <= 0 || t.MaxDenseCells > maxDenseCells {
		return maxDenseCells
	}
	return t.MaxDenseCells
}

// PossibleCells returns the product of the cardinalities. ok is false when
// the product overflows int64, in which case the result is math.MaxInt64.
func PossibleCells(cardinalities []int) (int64, bool) {
	product := uint64(1)
	for _, c := range cardinalities {
		if c < 0 {
			return math.MaxInt64, false
		}
		hi, lo := bits.Mul64(product, uint64(c))
		if hi != 0 || lo > math.MaxInt64 {
			return math.MaxInt64, false
		}
		product = lo
	}
	return int64(product), true
}

// Choose picks the representation for a body with the given axis
// cardinalities and number of loaded cells.
//
// A possible cell count that overflows or exceeds MaxDenseCells forces
// Sparse. Otherwise the body is Dense when its density reaches
// DensityThreshold and its possible cell count does not exceed
// SparseSegmentCountThreshold.
func (t Thresholds) Choose(cardinalities []int, loaded int64) Representation {
	possible, ok := PossibleCells(cardinalities)
	if !ok || possible > t.maxDense() {
		return Sparse
	}
	if possible == 0 {
		return Dense
	}
	density := float64(loaded) / float64(possible)
	if density >= t.DensityThreshold && possible <= t.SparseSegmentCountThreshold {
		return Dense
	}
	return Sparse
}

// BuildBody builds a body from loaded cells. Null values count as not
// loaded. Dense bodies specialise to []int64 when every value is an Int and
// to []float64 when every value is numeric and datatype is Numeric.
func BuildBody(axes []*Axis, cells map[CellKey]model.Value, datatype model.Datatype, t Thresholds) (*Body, error) {
	lens := make([]int, len(axes))
	for i, a := range axes {
		lens[i] = a.Len()
	}

	var loaded int64
	allInt, allNumeric := true, true
	for _, v := range cells {
		if v.IsNull() {
			continue
		}
		loaded++
		if v.Kind() != model.KindInt {
			allInt = false
		}
		if !v.IsNumeric() {
			allNumeric = false
		}
	}

	if t.Choose(lens, loaded) == Sparse {
		return NewSparse(axes, cells)
	}

	b := newBody(StorageObjects, axes)
	nulls := roaring.New()
	nulls.AddRange(0, uint64(b.size))

	switch {
	case datatype != model.StringType && allInt:
		b.storage = StorageInts
		b.ints = make([]int64, b.size)
	case datatype == model.Numeric && allNumeric:
		b.storage = StorageFloats
		b.floats = make([]float64, b.size)
	default:
		b.objects = make([]model.Value, b.size)
	}

	for k, v := range cells {
		ords, err := b.checkKey(k)
		if err != nil {
			return nil, err
		}
		if v.IsNull() {
			continue
		}
		ord := b.ordinalOf(ords)
		switch b.storage {
		case StorageInts:
			b.ints[ord], _ = v.AsInt64()
		case StorageFloats:
			b.floats[ord], _ = v.AsFloat64()
		default:
			b.objects[ord] = v
		}
		nulls.Remove(uint32(ord))
	}
	nulls.RunOptimize()
	b.nulls = nulls
	return b, nil
}
